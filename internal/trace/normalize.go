package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

const defaultRootName = "Flow Execution"

// Normalizer converts backend trace payloads into canonical span trees.
// It never fails: malformed elements are skipped and logged.
type Normalizer struct {
	logger *zerolog.Logger
}

// NewNormalizer creates a normalizer that reports skipped elements to logger
func NewNormalizer(logger *zerolog.Logger) *Normalizer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Normalizer{logger: logger}
}

type rawObject map[string]json.RawMessage

// DecodeTraces accepts a `{status, traces:[...]}` envelope, a bare array of traces,
// or a single trace object, and normalizes every element. Objects that carry no
// trace fields, such as `{status:"error", message}`, yield no traces.
func (n *Normalizer) DecodeTraces(body []byte) []*Trace {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}

	var elems []json.RawMessage
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &elems); err != nil {
			n.logger.Warn().Err(err).Msg("trace list is not a valid array")
			return nil
		}
	case '{':
		var obj rawObject
		if err := json.Unmarshal(body, &obj); err != nil {
			n.logger.Warn().Err(err).Msg("trace payload is not a valid object")
			return nil
		}
		if list, ok := obj["traces"]; ok {
			if err := json.Unmarshal(list, &elems); err != nil {
				n.logger.Warn().Err(err).Msg("traces field is not an array")
				return nil
			}
		} else if isTraceShaped(obj) {
			elems = []json.RawMessage{body}
		} else {
			n.logger.Warn().
				Str("status", firstString(obj, "status")).
				Str("message", firstString(obj, "message", "detail", "error")).
				Msg("trace payload carries no traces")
			return nil
		}
	default:
		n.logger.Warn().Msg("trace payload is neither an object nor an array")
		return nil
	}

	traces := make([]*Trace, 0, len(elems))
	for i, elem := range elems {
		var obj rawObject
		if err := json.Unmarshal(elem, &obj); err != nil || (!isTraceShaped(obj) && firstString(obj, "id", "trace_id") == "") {
			n.logger.Warn().Int("index", i).Msg("skipping trace list element without id, spans, methods or start_time")
			continue
		}
		t := n.Normalize(elem)
		if t.ID == "" {
			t.ID = fmt.Sprintf("trace-%d", i)
		}
		traces = append(traces, t)
	}
	return traces
}

// isTraceShaped reports whether obj carries any field a trace is built from
func isTraceShaped(obj rawObject) bool {
	for _, k := range []string{"spans", "methods", "start_time"} {
		if v, ok := obj[k]; ok && !isNull(v) {
			return true
		}
	}
	return false
}

// Normalize converts one raw trace into a Trace with root spans
func (n *Normalizer) Normalize(raw []byte) *Trace {
	t := &Trace{Format: FormatEmpty, Status: StatusPending}

	var obj rawObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		n.logger.Warn().Err(err).Msg("skipping trace: not a JSON object")
		return t
	}

	t.ID = firstString(obj, "id", "trace_id")
	t.EntityID = firstString(obj, "flow_id", "crew_id")
	t.Name = firstString(obj, "flow_name", "crew_name", "name")
	if s := firstString(obj, "status"); s != "" {
		t.Status = ParseStatus(s)
	}
	if ms, ok := n.timestampField(obj, "start_time", t.ID); ok {
		t.StartTime = ms
	}
	if ms, ok := n.timestampField(obj, "end_time", t.ID); ok {
		end := ms
		t.EndTime = &end
	}
	t.Events = n.decodeEvents(obj["events"], t.ID)
	if meta := decodeMap(obj["metadata"]); meta != nil {
		t.Metadata = meta
	}

	var spans []*Span
	switch {
	case isNonEmptyArray(obj["spans"]):
		t.Format = FormatLegacy
		spans = n.legacySpans(obj["spans"], t.ID)
	case isNonEmptyObject(obj["methods"]):
		t.Format = FormatTelemetry
		spans = n.methodSpans(obj["methods"], t.ID)
	}

	if len(spans) == 0 && t.StartTime != 0 {
		t.Format = FormatSynthesized
		spans = []*Span{n.synthesizeRoot(t)}
		t.Events = nil
	}

	t.Roots = BuildTree(spans)
	n.fillBounds(t)
	return t
}

// synthesizeRoot builds the single span representing a trace without spans or methods
func (n *Normalizer) synthesizeRoot(t *Trace) *Span {
	name := t.Name
	if name == "" {
		name = defaultRootName
	}
	id := t.ID
	if id == "" {
		id = "root"
	}
	root := &Span{
		ID:        id,
		Name:      name,
		StartTime: t.StartTime,
		EndTime:   t.EndTime,
		Status:    t.Status,
		Events:    t.Events,
	}
	if t.EntityID != "" {
		root.Attributes = map[string]any{"entity_id": t.EntityID}
	}
	n.clamp(root)
	return root
}

// legacySpans decodes an already-canonical spans array, flattening nested children
func (n *Normalizer) legacySpans(data json.RawMessage, traceID string) []*Span {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		n.logger.Warn().Err(err).Str("trace_id", traceID).Msg("spans field is not an array")
		return nil
	}

	seen := make(map[string]bool)
	var out []*Span
	var visit func(elem json.RawMessage, parentID string)
	visit = func(elem json.RawMessage, parentID string) {
		var obj rawObject
		if err := json.Unmarshal(elem, &obj); err != nil {
			n.logger.Warn().Err(err).Str("trace_id", traceID).Msg("skipping malformed span")
			return
		}
		id := firstString(obj, "id", "span_id")
		if id == "" {
			n.logger.Warn().Str("trace_id", traceID).Msg("skipping span without id")
			return
		}

		if !seen[id] {
			seen[id] = true
			span := &Span{
				ID:         id,
				Name:       firstString(obj, "name"),
				ParentID:   firstString(obj, "parent_id"),
				Status:     ParseStatus(firstString(obj, "status")),
				Attributes: decodeMap(obj["attributes"]),
				Events:     n.decodeEvents(obj["events"], traceID),
			}
			if span.Name == "" {
				span.Name = id
			}
			if span.ParentID == "" {
				span.ParentID = parentID
			}
			if ms, ok := n.timestampField(obj, "start_time", traceID); ok {
				span.StartTime = ms
			}
			if ms, ok := n.timestampField(obj, "end_time", traceID); ok {
				end := ms
				span.EndTime = &end
			}
			n.clamp(span)
			out = append(out, span)
		}

		var children []json.RawMessage
		if raw, ok := obj["children"]; ok && isNonEmptyArray(raw) {
			if err := json.Unmarshal(raw, &children); err == nil {
				for _, child := range children {
					visit(child, id)
				}
			}
		}
	}

	for _, elem := range elems {
		visit(elem, "")
	}
	return out
}

// methodSpans projects telemetry method records into spans
func (n *Normalizer) methodSpans(data json.RawMessage, traceID string) []*Span {
	var methods map[string]json.RawMessage
	if err := json.Unmarshal(data, &methods); err != nil {
		n.logger.Warn().Err(err).Str("trace_id", traceID).Msg("methods field is not an object")
		return nil
	}

	keys := make([]string, 0, len(methods))
	for k := range methods {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*Span, 0, len(keys))
	for _, key := range keys {
		var obj rawObject
		if err := json.Unmarshal(methods[key], &obj); err != nil {
			n.logger.Warn().Err(err).Str("trace_id", traceID).Str("method", key).Msg("skipping malformed method")
			continue
		}
		id := firstString(obj, "id")
		name := firstString(obj, "name")
		start, hasStart := n.timestampField(obj, "start_time", traceID)
		if id == "" || name == "" || !hasStart {
			n.logger.Warn().
				Str("trace_id", traceID).
				Str("method", key).
				Msg("skipping method without id, name or start_time")
			continue
		}

		span := &Span{
			ID:         id,
			Name:       name,
			StartTime:  start,
			ParentID:   firstString(obj, "parent_id"),
			Attributes: decodeMap(obj["attributes"]),
			Events:     n.decodeEvents(obj["events"], traceID),
		}
		if ms, ok := n.timestampField(obj, "end_time", traceID); ok {
			end := ms
			span.EndTime = &end
		}
		if s := firstString(obj, "status"); s != "" {
			span.Status = ParseStatus(s)
		} else if span.EndTime != nil {
			span.Status = StatusCompleted
		} else {
			span.Status = StatusRunning
		}
		n.clamp(span)
		out = append(out, span)
	}
	return out
}

func (n *Normalizer) decodeEvents(data json.RawMessage, traceID string) []Event {
	if !isNonEmptyArray(data) {
		return nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		n.logger.Warn().Err(err).Str("trace_id", traceID).Msg("events field is not an array")
		return nil
	}

	events := make([]Event, 0, len(elems))
	for _, elem := range elems {
		var obj rawObject
		if err := json.Unmarshal(elem, &obj); err != nil {
			n.logger.Warn().Err(err).Str("trace_id", traceID).Msg("skipping malformed event")
			continue
		}
		typ := firstString(obj, "type")
		if typ == "" {
			n.logger.Warn().Str("trace_id", traceID).Msg("skipping event without type")
			continue
		}
		ev := Event{Type: typ, Data: decodeMap(obj["data"])}
		if ms, ok := n.timestampField(obj, "timestamp", traceID); ok {
			ev.Timestamp = ms
		}
		events = append(events, ev)
	}
	return events
}

func (n *Normalizer) timestampField(obj rawObject, key, traceID string) (int64, bool) {
	raw, ok := obj[key]
	if !ok || isNull(raw) {
		return 0, false
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	ms, err := ParseTimestamp(v)
	if err != nil {
		n.logger.Warn().Err(err).Str("trace_id", traceID).Str("field", key).Msg("ignoring unparseable timestamp")
		return 0, false
	}
	return ms, true
}

// clamp enforces end >= start and computes the derived duration
func (n *Normalizer) clamp(s *Span) {
	if s.EndTime != nil && s.StartTime != 0 && *s.EndTime < s.StartTime {
		n.logger.Warn().
			Str("span_id", s.ID).
			Int64("start_time", s.StartTime).
			Int64("end_time", *s.EndTime).
			Msg("span ends before it starts, clamping end time")
		end := s.StartTime
		s.EndTime = &end
	}
	s.DurationMs = duration(s.StartTime, s.EndTime)
}

// fillBounds derives trace start/end from its spans when the payload omitted them
func (n *Normalizer) fillBounds(t *Trace) {
	if len(t.Roots) == 0 {
		return
	}
	var minStart, maxEnd int64
	open := false
	Walk(t.Roots, func(s *Span) {
		if s.StartTime != 0 && (minStart == 0 || s.StartTime < minStart) {
			minStart = s.StartTime
		}
		if s.EndTime == nil {
			open = true
		} else if *s.EndTime > maxEnd {
			maxEnd = *s.EndTime
		}
	})
	if t.StartTime == 0 {
		t.StartTime = minStart
	}
	if t.EndTime == nil && !open && maxEnd != 0 && t.Status != StatusRunning {
		t.EndTime = &maxEnd
	}
}

func firstString(obj rawObject, keys ...string) string {
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok || isNull(raw) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s != "" {
				return s
			}
			continue
		}
		var num json.Number
		if err := json.Unmarshal(raw, &num); err == nil {
			return num.String()
		}
	}
	return ""
}

func decodeMap(raw json.RawMessage) map[string]any {
	if len(raw) == 0 || isNull(raw) {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func isNonEmptyArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) < 2 || raw[0] != '[' {
		return false
	}
	return len(bytes.TrimSpace(raw[1:len(raw)-1])) > 0
}

func isNonEmptyObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) < 2 || raw[0] != '{' {
		return false
	}
	return len(bytes.TrimSpace(raw[1:len(raw)-1])) > 0
}
