package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenticgokit/crewview/internal/api"
	"github.com/agenticgokit/crewview/internal/utils"
)

const suiteYAML = `
name: nightly
crews: [research, writer]
metrics: [goal_alignment, reasoning_efficiency]
iterations: 2
inputs:
  topic: AI safety
`

func TestParseConfig(t *testing.T) {
	suite, err := ParseConfig([]byte(suiteYAML))
	require.NoError(t, err)

	req := suite.Request()
	assert.Equal(t, "nightly", req.Name)
	assert.Equal(t, []string{"research", "writer"}, req.CrewIDs)
	assert.Equal(t, 2, req.Iterations)
	assert.Equal(t, DefaultAggregation, req.AggregationStrategy)
	assert.Equal(t, "AI safety", req.TestInputs["topic"])
}

func TestParseConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantField string
	}{
		{name: "missing name", yaml: "crews: [a]", wantField: "name"},
		{name: "no crews", yaml: "name: x", wantField: "crews"},
		{name: "empty crew id", yaml: "name: x\ncrews: ['']", wantField: "crews[0]"},
		{name: "negative iterations", yaml: "name: x\ncrews: [a]\niterations: -1", wantField: "iterations"},
		{name: "unknown aggregation", yaml: "name: x\ncrews: [a]\naggregation: median", wantField: "aggregation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			var ve *utils.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}

func resultsFixture(t *testing.T) *api.EvaluationResults {
	t.Helper()
	body := `{
		"evaluation_id": "ev-1",
		"results": {
			"agent_results": {
				"Writer": {"agent_id": "a2", "agent_role": "Writer", "overall_score": 4.5,
					"metrics": {"goal_alignment": {"score": 4.5, "feedback": "Average score across 2 evaluations"}},
					"task_count": 1, "feedback": ["goal_alignment: drifted from the brief"]},
				"Researcher": {"agent_id": "a1", "overall_score": 8.2,
					"metrics": {"goal_alignment": {"score": 8.0}, "reasoning_efficiency": {"score": 8.4}},
					"task_count": 2}
			},
			"summary": {"overall_score": 6.4, "total_agents": 2}
		},
		"summary": {"overall_score": 6.4, "agent_count": 2, "metric_count": 2, "iterations": 2}
	}`
	var res api.EvaluationResults
	require.NoError(t, json.Unmarshal([]byte(body), &res))
	return &res
}

func TestBuildReport(t *testing.T) {
	report, err := BuildReport(api.EvaluationRun{ID: "ev-1", Name: "nightly", Status: "completed"}, resultsFixture(t))
	require.NoError(t, err)

	require.Len(t, report.Agents, 2)
	assert.Equal(t, "Researcher", report.Agents[0].AgentRole)
	assert.Equal(t, "Writer", report.Agents[1].AgentRole)
	require.NotNil(t, report.Run.OverallScore)
	assert.InDelta(t, 6.4, *report.Run.OverallScore, 1e-9)
	assert.False(t, report.Passed(5))
	assert.True(t, report.Passed(4))
}

func TestBuildReportPending(t *testing.T) {
	report, err := BuildReport(api.EvaluationRun{ID: "ev-1", Status: "running"}, &api.EvaluationResults{Message: "Evaluation is running", Progress: 40})
	require.NoError(t, err)
	assert.Equal(t, "Evaluation is running", report.Pending)
	assert.Empty(t, report.Agents)
}

type fakeBackend struct {
	statuses []string
	polls    int
	created  api.EvaluationRequest
	results  *api.EvaluationResults
}

func (f *fakeBackend) CreateEvaluation(_ context.Context, req api.EvaluationRequest) (string, error) {
	f.created = req
	return "ev-1", nil
}

func (f *fakeBackend) GetEvaluation(_ context.Context, id string) (*api.EvaluationDetail, error) {
	status := f.statuses[len(f.statuses)-1]
	if f.polls < len(f.statuses) {
		status = f.statuses[f.polls]
	}
	f.polls++
	return &api.EvaluationDetail{Run: api.EvaluationRun{ID: id, Name: "nightly", Status: status, Progress: float64(f.polls * 10)}}, nil
}

func (f *fakeBackend) GetEvaluationResults(context.Context, string) (*api.EvaluationResults, error) {
	return f.results, nil
}

func TestRunnerWaitsForCompletion(t *testing.T) {
	backend := &fakeBackend{statuses: []string{"pending", "running", "completed"}, results: resultsFixture(t)}
	var progress []float64
	runner := NewRunner(backend, RunnerConfig{
		PollInterval: time.Millisecond,
		Timeout:      5 * time.Second,
		OnProgress:   func(run api.EvaluationRun) { progress = append(progress, run.Progress) },
	}, nil)

	suite, err := ParseConfig([]byte(suiteYAML))
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), suite)
	require.NoError(t, err)
	assert.Equal(t, "nightly", backend.created.Name)
	assert.Equal(t, 3, backend.polls)
	assert.Equal(t, []float64{10, 20, 30}, progress)
	assert.Len(t, report.Agents, 2)
}

func TestRunnerReportsFailure(t *testing.T) {
	backend := &fakeBackend{statuses: []string{"running", "failed"}}
	runner := NewRunner(backend, RunnerConfig{PollInterval: time.Millisecond}, nil)

	_, err := runner.Wait(context.Background(), "ev-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}

func TestRunnerHonoursContext(t *testing.T) {
	backend := &fakeBackend{statuses: []string{"running"}}
	runner := NewRunner(backend, RunnerConfig{PollInterval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.Wait(ctx, "ev-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReporterFormats(t *testing.T) {
	report, err := BuildReport(api.EvaluationRun{ID: "ev-1", Name: "nightly", Status: "completed", Iterations: 2}, resultsFixture(t))
	require.NoError(t, err)

	tests := []struct {
		format string
		want   []string
	}{
		{format: "console", want: []string{"EVALUATION: nightly", "Researcher", "goal_alignment", "8.4", "drifted from the brief"}},
		{format: "json", want: []string{`"agent_role": "Writer"`, `"task_count": 2`}},
		{format: "markdown", want: []string{"# Evaluation Report: nightly", "| Status | COMPLETED |", "## Researcher (8.2)", "| Goal Alignment | 8.0 |", "| Finished | n/a |"}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, NewReporter(tt.format).Generate(report, &buf))
			for _, want := range tt.want {
				assert.Contains(t, buf.String(), want)
			}
		})
	}

	assert.Error(t, NewReporter("junit").Generate(report, &bytes.Buffer{}))
}
