// Package eval drives backend evaluation runs from YAML suites and renders their results.
package eval

import (
	"github.com/agenticgokit/crewview/internal/api"
)

// Suite is an evaluation definition loaded from YAML
type Suite struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Crews       []string       `yaml:"crews"`
	Metrics     []string       `yaml:"metrics,omitempty"`
	Iterations  int            `yaml:"iterations,omitempty"`
	Aggregation string         `yaml:"aggregation,omitempty"`
	Inputs      map[string]any `yaml:"inputs,omitempty"`
}

// Request converts the suite into the backend request
func (s *Suite) Request() api.EvaluationRequest {
	iterations := s.Iterations
	if iterations == 0 {
		iterations = 1
	}
	aggregation := s.Aggregation
	if aggregation == "" {
		aggregation = DefaultAggregation
	}
	return api.EvaluationRequest{
		Name:                s.Name,
		CrewIDs:             s.Crews,
		MetricCategories:    s.Metrics,
		Iterations:          iterations,
		AggregationStrategy: aggregation,
		TestInputs:          s.Inputs,
	}
}

// DefaultAggregation is used when a suite names none
const DefaultAggregation = "simple_average"

// MetricScore is the averaged score of one metric for one agent
type MetricScore struct {
	Score    *float64 `json:"score"`
	Feedback string   `json:"feedback,omitempty"`
}

// AgentResult is the evaluation outcome for one agent
type AgentResult struct {
	AgentID      string                 `json:"agent_id"`
	AgentRole    string                 `json:"agent_role"`
	OverallScore *float64               `json:"overall_score"`
	Metrics      map[string]MetricScore `json:"metrics"`
	TaskCount    int                    `json:"task_count"`
	Feedback     []string               `json:"feedback,omitempty"`
}

// Report is a completed run with its per-agent results
type Report struct {
	Run     api.EvaluationRun `json:"run"`
	Agents  []AgentResult     `json:"agents"`
	Pending string            `json:"pending,omitempty"`
}

// Passed reports whether every scored agent reached threshold
func (r *Report) Passed(threshold float64) bool {
	for _, a := range r.Agents {
		if a.OverallScore != nil && *a.OverallScore < threshold {
			return false
		}
	}
	return true
}
