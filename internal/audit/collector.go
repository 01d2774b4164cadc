package audit

import (
	"sort"
	"time"

	"github.com/agenticgokit/crewview/internal/trace"
)

// costPerToken is a rough blended price used for the cost estimate
const costPerToken = 0.000002

const slowestLimit = 5

// Summarize collects span, event and call metrics for one trace
func Summarize(t *trace.Trace, now time.Time) TraceSummary {
	summary := TraceSummary{
		TraceID:     t.ID,
		Name:        t.Name,
		Format:      string(t.Format),
		SpansByKind: make(map[string]int),
	}

	var timings []SpanTiming
	trace.Walk(t.Roots, func(s *trace.Span) {
		summary.TotalSpans++
		summary.SpansByKind[s.Kind()]++
		if s.Status == trace.StatusFailed {
			summary.FailedSpans++
		}
		if s.InProgress() {
			summary.InProgressSpans++
		}
		if s.Depth > summary.MaxDepth {
			summary.MaxDepth = s.Depth
		}
		if s.DurationMs > 0 {
			timings = append(timings, SpanTiming{ID: s.ID, Name: s.Name, Kind: s.Kind(), DurationMs: s.DurationMs})
		}
	})

	sort.SliceStable(timings, func(i, j int) bool {
		return timings[i].DurationMs > timings[j].DurationMs
	})
	if len(timings) > slowestLimit {
		timings = timings[:slowestLimit]
	}
	summary.Slowest = timings

	events := t.AllEvents()
	summary.TotalEvents = len(events)

	report := Aggregate(events, WindowOf(t), now)
	summary.Metrics = report.Metrics
	summary.TotalDurationMs = report.Metrics.ExecutionTimeMs
	summary.TokensUsed = report.Metrics.TotalTokens
	summary.EstimatedCost = float64(summary.TokensUsed) * costPerToken

	return summary
}
