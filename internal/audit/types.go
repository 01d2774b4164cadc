// Package audit derives call records and metrics from normalized trace data.
package audit

// Status of a paired call record
type Status string

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// unknownKey fills missing grouping fields so they still group deterministically
const unknownKey = "unknown"

// LLMCall is one model invocation built from llm.started/completed/failed events
type LLMCall struct {
	AgentID    string `json:"agent_id"`
	TaskID     string `json:"task_id"`
	Model      string `json:"model,omitempty"`
	Prompt     any    `json:"prompt,omitempty"`
	Completion any    `json:"completion,omitempty"`
	Tokens     int64  `json:"tokens"`
	Error      string `json:"error,omitempty"`
	Status     Status `json:"status"`
	StartTime  int64  `json:"start_time"`
	EndTime    *int64 `json:"end_time,omitempty"`
	// Duration is nil while the call is in flight
	Duration *int64 `json:"duration_ms,omitempty"`
}

// ToolExecution is one tool invocation built from tool.started/completed/failed events
type ToolExecution struct {
	AgentID   string `json:"agent_id"`
	ToolName  string `json:"tool_name"`
	Inputs    any    `json:"inputs,omitempty"`
	Outputs   any    `json:"outputs,omitempty"`
	Error     string `json:"error,omitempty"`
	Status    Status `json:"status"`
	StartTime int64  `json:"start_time"`
	EndTime   *int64 `json:"end_time,omitempty"`
	Duration  *int64 `json:"duration_ms,omitempty"`
}

// Metrics are the aggregate counts over one event log
type Metrics struct {
	TotalLLMCalls           int   `json:"total_llm_calls"`
	CompletedLLMCalls       int   `json:"completed_llm_calls"`
	FailedLLMCalls          int   `json:"failed_llm_calls"`
	TotalToolExecutions     int   `json:"total_tool_executions"`
	CompletedToolExecutions int   `json:"completed_tool_executions"`
	FailedToolExecutions    int   `json:"failed_tool_executions"`
	TotalTokens             int64 `json:"total_tokens"`
	ExecutionTimeMs         int64 `json:"execution_time_ms"`
}

// Report is the full derived view of an event log
type Report struct {
	LLMCalls       []LLMCall       `json:"llm_calls"`
	ToolExecutions []ToolExecution `json:"tool_executions"`
	Metrics        Metrics         `json:"metrics"`
}

// Window is the time span of the trace an event log belongs to, in ms.
// A nil End means the trace is still running.
type Window struct {
	Start int64
	End   *int64
}

// SpanTiming is a span reference used for slowest-span listings
type SpanTiming struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	DurationMs int64  `json:"duration_ms"`
}

// TraceSummary provides aggregate metrics for one trace
type TraceSummary struct {
	TraceID         string         `json:"trace_id"`
	Name            string         `json:"name"`
	Format          string         `json:"format"`
	TotalSpans      int            `json:"total_spans"`
	SpansByKind     map[string]int `json:"spans_by_kind"`
	FailedSpans     int            `json:"failed_spans"`
	InProgressSpans int            `json:"in_progress_spans"`
	MaxDepth        int            `json:"max_depth"`
	TotalEvents     int            `json:"total_events"`
	TotalDurationMs int64          `json:"total_duration_ms"`
	Slowest         []SpanTiming   `json:"slowest,omitempty"`
	TokensUsed      int64          `json:"tokens_used,omitempty"`
	EstimatedCost   float64        `json:"estimated_cost,omitempty"`
	Metrics         Metrics        `json:"metrics"`
}
