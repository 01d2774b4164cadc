package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenticgokit/crewview/internal/api"
	"github.com/agenticgokit/crewview/internal/utils"
)

// Backend is the part of the API client the runner needs
type Backend interface {
	CreateEvaluation(ctx context.Context, req api.EvaluationRequest) (string, error)
	GetEvaluation(ctx context.Context, id string) (*api.EvaluationDetail, error)
	GetEvaluationResults(ctx context.Context, id string) (*api.EvaluationResults, error)
}

// RunnerConfig configures the evaluation runner
type RunnerConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
	// OnProgress is called after every poll
	OnProgress func(run api.EvaluationRun)
}

// Runner starts evaluation runs and waits for them to finish
type Runner struct {
	backend Backend
	config  RunnerConfig
	logger  *zerolog.Logger
}

// NewRunner creates a new evaluation runner
func NewRunner(backend Backend, config RunnerConfig, logger *zerolog.Logger) *Runner {
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &Runner{backend: backend, config: config, logger: logger}
}

// Run submits the suite and waits for its report
func (r *Runner) Run(ctx context.Context, suite *Suite) (*Report, error) {
	id, err := r.backend.CreateEvaluation(ctx, suite.Request())
	if err != nil {
		return nil, fmt.Errorf("failed to start evaluation: %w", err)
	}
	r.logger.Info().Str("evaluation_id", id).Str("name", suite.Name).Msg("evaluation started")
	return r.Wait(ctx, id)
}

// Wait polls a run until it completes or fails and returns its report
func (r *Runner) Wait(ctx context.Context, id string) (*Report, error) {
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		detail, err := r.backend.GetEvaluation(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to poll evaluation %s: %w", id, err)
		}
		if r.config.OnProgress != nil {
			r.config.OnProgress(detail.Run)
		}

		switch detail.Run.Status {
		case "completed":
			res, err := r.backend.GetEvaluationResults(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch results for %s: %w", id, err)
			}
			return BuildReport(detail.Run, res)
		case "failed":
			return nil, fmt.Errorf("evaluation %s failed", id)
		}

		r.logger.Debug().Str("evaluation_id", id).Float64("progress", detail.Run.Progress).Msg("evaluation still running")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// BuildReport decodes per-agent results. A run without results yet gets Pending set.
func BuildReport(run api.EvaluationRun, res *api.EvaluationResults) (*Report, error) {
	report := &Report{Run: run}
	if res == nil {
		return report, nil
	}
	if res.Results == nil {
		report.Pending = res.Message
		return report, nil
	}

	raw, ok := res.Results["agent_results"]
	if !ok {
		return report, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode agent results: %w", err)
	}
	var byRole map[string]AgentResult
	if err := json.Unmarshal(data, &byRole); err != nil {
		return nil, fmt.Errorf("failed to decode agent results: %w", err)
	}

	roles := make([]string, 0, len(byRole))
	for role := range byRole {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		a := byRole[role]
		if a.AgentRole == "" {
			a.AgentRole = role
		}
		report.Agents = append(report.Agents, a)
	}

	if report.Run.OverallScore == nil {
		report.Run.OverallScore = res.Summary.OverallScore
	}
	return report, nil
}
