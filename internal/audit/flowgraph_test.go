package audit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agenticgokit/crewview/internal/api"
	"github.com/agenticgokit/crewview/internal/trace"
)

func poemFlow() *api.FlowStructure {
	return &api.FlowStructure{
		ID:   "poem",
		Name: "Poem Flow",
		Methods: []api.FlowMethod{
			{ID: "generate_topic", Name: "Generate Topic", IsStart: true},
			{ID: "write_poem", Name: "Write Poem", IsListener: true, Dependencies: api.Dependencies{"generate_topic"}},
			{ID: "review", Name: "Review", IsListener: true, Dependencies: api.Dependencies{"write_poem", "human_feedback"}},
			{ID: "helper", Name: "Helper"},
		},
	}
}

func TestGenerateFlowGraph(t *testing.T) {
	out := GenerateFlowGraph(poemFlow(), nil)

	assert.Contains(t, out, "```mermaid")
	assert.Contains(t, out, `shape: stadium, label: "Generate Topic"`)
	assert.Contains(t, out, `shape: rect, label: "Write Poem"`)
	assert.Contains(t, out, `shape: rounded, label: "Helper"`)
	assert.Contains(t, out, `shape: diam, label: "human_feedback"`, "unknown dependencies become trigger nodes")
	assert.Equal(t, 3, strings.Count(out, "-->"))
	assert.Equal(t, 1, strings.Count(out, "style "), "only the start method is styled without live statuses")
}

func TestGenerateFlowGraphStatuses(t *testing.T) {
	out := GenerateFlowGraph(poemFlow(), map[string]trace.Status{
		"generate_topic": trace.StatusCompleted,
		"write_poem":     trace.StatusRunning,
		"review":         trace.StatusFailed,
	})

	assert.Contains(t, out, "fill:#e8f5e9")
	assert.Contains(t, out, "fill:#e1f5fe")
	assert.Contains(t, out, "fill:#ffebee")
	assert.NotContains(t, out, "fill:#fce4ec", "a live status replaces the start colour")
}

func TestGenerateFlowGraphEmpty(t *testing.T) {
	out := GenerateFlowGraph(&api.FlowStructure{ID: "empty"}, nil)
	assert.Contains(t, out, "flowchart")
	assert.NotContains(t, out, "-->")
}
