package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportSample() *Trace {
	end := int64(1500)
	root := &Span{ID: "r", Name: "Flow Execution", StartTime: 1000, EndTime: &end, DurationMs: 500, Status: StatusCompleted}
	child := &Span{ID: "c", Name: "write", ParentID: "r", StartTime: 1100, Status: StatusFailed, Depth: 1,
		Attributes: map[string]any{"b": 2.5, "a": "x"},
		Events:     []Event{{Type: "llm.started", Timestamp: 1200, Data: map[string]any{"model": "gpt"}}}}
	root.Children = []*Span{child}
	return &Trace{ID: "t1", Roots: []*Span{root}}
}

func TestToJaeger(t *testing.T) {
	out := ToJaeger(exportSample())

	data := out["data"].([]map[string]any)
	require.Len(t, data, 1)
	spans := data[0]["spans"].([]map[string]any)
	require.Len(t, spans, 2)

	root := spans[0]
	assert.Equal(t, "r", root["spanID"])
	assert.Equal(t, int64(1_000_000), root["startTime"])
	assert.Equal(t, int64(500_000), root["duration"])
	assert.Empty(t, root["references"])

	child := spans[1]
	refs := child["references"].([]map[string]any)
	require.Len(t, refs, 1)
	assert.Equal(t, "r", refs[0]["spanID"])

	tags := child["tags"].([]map[string]any)
	assert.Contains(t, tags, map[string]any{"key": "error", "type": "bool", "value": true})
	assert.Equal(t, "a", tags[3]["key"])
	assert.Len(t, child["logs"], 1)
}

func TestToOTLP(t *testing.T) {
	out := ToOTLP(exportSample(), "svc")

	rs := out["resourceSpans"].([]map[string]any)
	scope := rs[0]["scopeSpans"].([]map[string]any)
	spans := scope[0]["spans"].([]map[string]any)
	require.Len(t, spans, 2)

	root := spans[0]
	assert.Equal(t, "1000000000", root["startTimeUnixNano"])
	assert.Equal(t, "1500000000", root["endTimeUnixNano"])
	assert.Equal(t, map[string]any{"code": 1}, root["status"])
	assert.NotContains(t, root, "parentSpanId")

	child := spans[1]
	assert.Equal(t, "r", child["parentSpanId"])
	assert.NotContains(t, child, "endTimeUnixNano")
	assert.Equal(t, 2, child["status"].(map[string]any)["code"])
	attrs := child["attributes"].([]map[string]any)
	assert.Equal(t, map[string]any{"key": "a", "value": map[string]any{"stringValue": "x"}}, attrs[0])
	assert.Equal(t, map[string]any{"key": "b", "value": map[string]any{"doubleValue": 2.5}}, attrs[1])
}

func TestExportFormats(t *testing.T) {
	tr := exportSample()
	for _, f := range ExportFormats {
		out, err := Export(tr, f)
		require.NoError(t, err, f)
		assert.NotNil(t, out)
	}
	_, err := Export(tr, "zipkin")
	assert.Error(t, err)
}
