package trace

import (
	"fmt"
	"sort"
)

// ExportFormats lists the supported export encodings
var ExportFormats = []string{"json", "jaeger", "otlp"}

// Export converts a trace to one of the supported export shapes
func Export(t *Trace, format string) (any, error) {
	switch format {
	case "json", "":
		return t, nil
	case "jaeger":
		return ToJaeger(t), nil
	case "otlp", "otel":
		return ToOTLP(t, "crewview"), nil
	default:
		return nil, fmt.Errorf("unknown format: %s (supported: json, jaeger, otlp)", format)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToJaeger converts a trace to the Jaeger JSON model. Times are in microseconds.
func ToJaeger(t *Trace) map[string]any {
	spans := make([]map[string]any, 0, t.SpanCount())
	for _, fs := range Flatten(t.Roots) {
		s := fs.Span

		tags := []map[string]any{
			{"key": "span.kind", "type": "string", "value": s.Kind()},
			{"key": "status", "type": "string", "value": string(s.Status)},
		}
		if s.Status == StatusFailed {
			tags = append(tags, map[string]any{"key": "error", "type": "bool", "value": true})
		}
		for _, k := range sortedKeys(s.Attributes) {
			tags = append(tags, map[string]any{"key": k, "type": "string", "value": fmt.Sprint(s.Attributes[k])})
		}

		logs := make([]map[string]any, 0, len(s.Events))
		for _, ev := range s.Events {
			fields := []map[string]any{{"key": "event", "type": "string", "value": ev.Type}}
			for _, k := range sortedKeys(ev.Data) {
				fields = append(fields, map[string]any{"key": k, "type": "string", "value": fmt.Sprint(ev.Data[k])})
			}
			logs = append(logs, map[string]any{"timestamp": ev.Timestamp * 1000, "fields": fields})
		}

		span := map[string]any{
			"traceID":       t.ID,
			"spanID":        s.ID,
			"operationName": s.Name,
			"startTime":     s.StartTime * 1000,
			"duration":      s.DurationMs * 1000,
			"tags":          tags,
			"logs":          logs,
			"processID":     "p1",
			"references":    []map[string]any{},
		}
		if s.ParentID != "" {
			span["references"] = []map[string]any{
				{"refType": "CHILD_OF", "traceID": t.ID, "spanID": s.ParentID},
			}
		}
		spans = append(spans, span)
	}

	return map[string]any{
		"data": []map[string]any{{
			"traceID": t.ID,
			"spans":   spans,
			"processes": map[string]any{
				"p1": map[string]any{"serviceName": "crewview", "tags": []map[string]any{}},
			},
		}},
	}
}

// otlpValue wraps a Go value in an OTLP AnyValue
func otlpValue(v any) map[string]any {
	switch val := v.(type) {
	case string:
		return map[string]any{"stringValue": val}
	case bool:
		return map[string]any{"boolValue": val}
	case int:
		return map[string]any{"intValue": fmt.Sprint(val)}
	case int64:
		return map[string]any{"intValue": fmt.Sprint(val)}
	case float64:
		return map[string]any{"doubleValue": val}
	default:
		return map[string]any{"stringValue": fmt.Sprint(val)}
	}
}

func otlpAttributes(m map[string]any) []map[string]any {
	attrs := make([]map[string]any, 0, len(m))
	for _, k := range sortedKeys(m) {
		attrs = append(attrs, map[string]any{"key": k, "value": otlpValue(m[k])})
	}
	return attrs
}

// otlpStatus maps span status to OTLP status codes: 0 unset, 1 ok, 2 error
func otlpStatus(s Status) map[string]any {
	switch s {
	case StatusCompleted:
		return map[string]any{"code": 1}
	case StatusFailed:
		return map[string]any{"code": 2, "message": "failed"}
	default:
		return map[string]any{"code": 0}
	}
}

// ToOTLP converts a trace to the OTLP/JSON resourceSpans shape. Times are in nanoseconds.
func ToOTLP(t *Trace, serviceName string) map[string]any {
	spans := make([]map[string]any, 0, t.SpanCount())
	for _, fs := range Flatten(t.Roots) {
		s := fs.Span

		events := make([]map[string]any, 0, len(s.Events))
		for _, ev := range s.Events {
			events = append(events, map[string]any{
				"name":         ev.Type,
				"timeUnixNano": fmt.Sprint(ev.Timestamp * 1_000_000),
				"attributes":   otlpAttributes(ev.Data),
			})
		}

		attrs := otlpAttributes(s.Attributes)
		attrs = append(attrs, map[string]any{"key": "crewview.kind", "value": otlpValue(s.Kind())})

		span := map[string]any{
			"traceId":           t.ID,
			"spanId":            s.ID,
			"name":              s.Name,
			"startTimeUnixNano": fmt.Sprint(s.StartTime * 1_000_000),
			"attributes":        attrs,
			"events":            events,
			"status":            otlpStatus(s.Status),
		}
		if s.EndTime != nil {
			span["endTimeUnixNano"] = fmt.Sprint(*s.EndTime * 1_000_000)
		}
		if s.ParentID != "" {
			span["parentSpanId"] = s.ParentID
		}
		spans = append(spans, span)
	}

	return map[string]any{
		"resourceSpans": []map[string]any{{
			"resource": map[string]any{
				"attributes": []map[string]any{
					{"key": "service.name", "value": otlpValue(serviceName)},
				},
			},
			"scopeSpans": []map[string]any{{
				"scope": map[string]any{"name": serviceName},
				"spans": spans,
			}},
		}},
	}
}
