// Package trace normalizes backend trace payloads into a canonical span tree.
package trace

import (
	"sort"
	"strings"
)

// Status is the lifecycle state of a span
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusWaiting      Status = "waiting"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusPending      Status = "pending"
)

// ParseStatus maps a backend status string onto a Status.
// Unknown values become StatusPending.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "initializing", "ready":
		return StatusInitializing
	case "waiting":
		return StatusWaiting
	case "running", "started", "in_progress":
		return StatusRunning
	case "completed", "complete", "finished", "success", "ok":
		return StatusCompleted
	case "failed", "error":
		return StatusFailed
	default:
		return StatusPending
	}
}

// Event is a telemetry event attached to a trace or a span
type Event struct {
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"` // ms since epoch
	Data      map[string]any `json:"data,omitempty"`
}

// Span is the canonical unit of execution history
type Span struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	StartTime  int64          `json:"start_time"`
	EndTime    *int64         `json:"end_time,omitempty"`
	Status     Status         `json:"status"`
	ParentID   string         `json:"parent_id,omitempty"`
	Children   []*Span        `json:"children,omitempty"`
	Depth      int            `json:"depth"`
	DurationMs int64          `json:"duration_ms"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Events     []Event        `json:"events,omitempty"`
}

// InProgress reports whether the span has not ended yet
func (s *Span) InProgress() bool {
	return s.EndTime == nil
}

// HasChildren returns true if the span has children
func (s *Span) HasChildren() bool {
	return len(s.Children) > 0
}

// Attribute returns a single attribute value
func (s *Span) Attribute(key string) (any, bool) {
	if s.Attributes == nil {
		return nil, false
	}
	v, ok := s.Attributes[key]
	return v, ok
}

// Kind returns the type of span for styling and classification
func (s *Span) Kind() string {
	name := strings.ToLower(s.Name)
	switch {
	case strings.Contains(name, "flow"):
		return "flow"
	case strings.Contains(name, "crew"):
		return "crew"
	case strings.Contains(name, "agent"):
		return "agent"
	case strings.Contains(name, "llm"):
		return "llm"
	case strings.Contains(name, "tool"):
		return "tool"
	case strings.Contains(name, "task"):
		return "task"
	case strings.HasPrefix(name, "event:"):
		return "event"
	default:
		return "method"
	}
}

func duration(start int64, end *int64) int64 {
	if end == nil || start == 0 {
		return 0
	}
	return *end - start
}

// Trace is one normalized trace with its root spans
type Trace struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	EntityID  string         `json:"entity_id,omitempty"`
	Status    Status         `json:"status"`
	StartTime int64          `json:"start_time"`
	EndTime   *int64         `json:"end_time,omitempty"`
	Format    Format         `json:"format"`
	Roots     []*Span        `json:"roots"`
	Events    []Event        `json:"events,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Format records which backend shape a trace was built from
type Format string

const (
	FormatLegacy      Format = "spans"
	FormatTelemetry   Format = "telemetry"
	FormatSynthesized Format = "synthesized"
	FormatEmpty       Format = "empty"
)

// SpanCount returns the number of spans in the tree
func (t *Trace) SpanCount() int {
	n := 0
	Walk(t.Roots, func(*Span) { n++ })
	return n
}

// Find returns the span with the given id
func (t *Trace) Find(id string) *Span {
	var found *Span
	Walk(t.Roots, func(s *Span) {
		if found == nil && s.ID == id {
			found = s
		}
	})
	return found
}

// AllEvents returns trace-level and span-level events ordered by timestamp
func (t *Trace) AllEvents() []Event {
	events := make([]Event, 0, len(t.Events))
	events = append(events, t.Events...)
	Walk(t.Roots, func(s *Span) {
		events = append(events, s.Events...)
	})
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
	return events
}
