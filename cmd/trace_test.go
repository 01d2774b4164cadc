package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agenticgokit/crewview/internal/audit"
	"github.com/agenticgokit/crewview/internal/trace"
)

func TestPrintReport(t *testing.T) {
	const t0 = int64(1_700_000_000_000)
	end := t0 + 3000
	tr := &trace.Trace{
		ID:        "trace-1",
		StartTime: t0,
		EndTime:   &end,
		Events: []trace.Event{
			{Type: "llm.started", Timestamp: t0, Data: map[string]any{"agent_id": "researcher", "task_id": "t1", "model": "gpt-4o"}},
			{Type: "llm.completed", Timestamp: t0 + 1200, Data: map[string]any{"agent_id": "researcher", "task_id": "t1", "tokens": float64(42)}},
			{Type: "tool.started", Timestamp: t0 + 1300, Data: map[string]any{"agent_id": "researcher", "tool_name": "search"}},
		},
	}

	report := audit.Aggregate(tr.AllEvents(), audit.WindowOf(tr), time.Now())

	var buf bytes.Buffer
	printReport(&buf, tr, report)
	out := buf.String()

	assert.Contains(t, out, "Metrics for trace-1")
	assert.Contains(t, out, "LLM Calls:           1 (1 completed, 0 failed)")
	assert.Contains(t, out, "Tool Executions:     1 (0 completed, 0 failed)")
	assert.Contains(t, out, "Total Tokens:        42")
	assert.Contains(t, out, "gpt-4o")
	assert.Contains(t, out, "1200ms")
	assert.Contains(t, out, "in flight")
}
