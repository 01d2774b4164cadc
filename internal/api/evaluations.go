package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// EvaluationSummary is one row of the evaluation list
type EvaluationSummary struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Status       string   `json:"status"`
	Progress     float64  `json:"progress"`
	StartTime    string   `json:"startTime"`
	EndTime      string   `json:"endTime,omitempty"`
	AgentCount   int      `json:"agentCount"`
	MetricCount  int      `json:"metricCount"`
	OverallScore *float64 `json:"overallScore,omitempty"`
	Iterations   int      `json:"iterations"`
}

// EvaluationCounts summarizes the evaluation list by status
type EvaluationCounts struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// EvaluationList is the full evaluation listing
type EvaluationList struct {
	Runs    []EvaluationSummary `json:"runs"`
	Summary EvaluationCounts    `json:"summary"`
}

// EvaluationRequest starts a new evaluation run
type EvaluationRequest struct {
	Name                string         `json:"name"`
	CrewIDs             []string       `json:"crew_ids"`
	MetricCategories    []string       `json:"metric_categories,omitempty"`
	Iterations          int            `json:"iterations,omitempty"`
	AggregationStrategy string         `json:"aggregation_strategy,omitempty"`
	TestInputs          map[string]any `json:"test_inputs,omitempty"`
}

// EvaluationAgent is an agent under evaluation
type EvaluationAgent struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Goal      string `json:"goal,omitempty"`
	Backstory string `json:"backstory,omitempty"`
}

// EvaluationRun is the detailed record of one evaluation
type EvaluationRun struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Status       string            `json:"status"`
	Progress     float64           `json:"progress"`
	StartTime    string            `json:"start_time"`
	EndTime      string            `json:"end_time,omitempty"`
	AgentCount   int               `json:"agent_count"`
	MetricCount  int               `json:"metric_count"`
	OverallScore *float64          `json:"overall_score,omitempty"`
	Iterations   int               `json:"iterations"`
	Agents       []EvaluationAgent `json:"agents,omitempty"`
	Config       map[string]any    `json:"config,omitempty"`
}

// EvaluationDetail is a run together with whatever results exist so far
type EvaluationDetail struct {
	Run     EvaluationRun  `json:"run"`
	Results map[string]any `json:"results"`
}

// EvaluationResults holds the results of a run. Message and Progress are set instead
// of Results while the run is still going.
type EvaluationResults struct {
	EvaluationID string         `json:"evaluation_id"`
	Results      map[string]any `json:"results"`
	Summary      struct {
		OverallScore *float64 `json:"overall_score"`
		AgentCount   int      `json:"agent_count"`
		MetricCount  int      `json:"metric_count"`
		Iterations   int      `json:"iterations"`
	} `json:"summary"`
	Message  string  `json:"message,omitempty"`
	Progress float64 `json:"progress,omitempty"`
}

// Choice is a selectable metric or aggregation strategy
type Choice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// EvaluationOptions lists available metrics and aggregation strategies
type EvaluationOptions struct {
	Metrics               []Choice `json:"metrics"`
	AggregationStrategies []Choice `json:"aggregation_strategies"`
}

type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

func evaluationPath(id string, suffix string) string {
	return fmt.Sprintf("/api/evaluations/%s%s", url.PathEscape(id), suffix)
}

// ListEvaluations returns every evaluation run
func (c *Client) ListEvaluations(ctx context.Context) (*EvaluationList, error) {
	var out dataEnvelope[EvaluationList]
	if err := c.do(ctx, http.MethodGet, "/api/evaluations", nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// EvaluationMetrics returns the metrics and strategies a run may use
func (c *Client) EvaluationMetrics(ctx context.Context) (*EvaluationOptions, error) {
	var out dataEnvelope[EvaluationOptions]
	if err := c.do(ctx, http.MethodGet, "/api/evaluations/metrics", nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// CreateEvaluation starts a run and returns its id
func (c *Client) CreateEvaluation(ctx context.Context, req EvaluationRequest) (string, error) {
	var out dataEnvelope[struct {
		EvaluationID string `json:"evaluation_id"`
	}]
	if err := c.do(ctx, http.MethodPost, "/api/evaluations", req, &out); err != nil {
		return "", err
	}
	if out.Data.EvaluationID == "" {
		return "", fmt.Errorf("backend did not return an evaluation id")
	}
	return out.Data.EvaluationID, nil
}

// GetEvaluation returns one run with its results so far
func (c *Client) GetEvaluation(ctx context.Context, id string) (*EvaluationDetail, error) {
	var out dataEnvelope[EvaluationDetail]
	if err := c.do(ctx, http.MethodGet, evaluationPath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// GetEvaluationResults returns the results of a run
func (c *Client) GetEvaluationResults(ctx context.Context, id string) (*EvaluationResults, error) {
	var out dataEnvelope[EvaluationResults]
	if err := c.do(ctx, http.MethodGet, evaluationPath(id, "/results"), nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// DeleteEvaluation removes a run and its results
func (c *Client) DeleteEvaluation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, evaluationPath(id, ""), nil, nil)
}
