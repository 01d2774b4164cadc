package audit

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agenticgokit/crewview/internal/trace"
)

type family int

const (
	familyNone family = iota
	familyLLM
	familyTool
)

type phase int

const (
	phaseNone phase = iota
	phaseStarted
	phaseCompleted
	phaseFailed
)

// classify splits "<kind>.<phase>" event types into a family and a phase
func classify(eventType string) (family, phase) {
	t := strings.ToLower(strings.TrimSpace(eventType))
	dot := strings.LastIndex(t, ".")
	if dot <= 0 {
		return familyNone, phaseNone
	}

	var fam family
	switch t[:dot] {
	case "llm", "llm_call":
		fam = familyLLM
	case "tool", "tool_usage", "tool_execution":
		fam = familyTool
	default:
		return familyNone, phaseNone
	}

	switch t[dot+1:] {
	case "started":
		return fam, phaseStarted
	case "completed", "finished":
		return fam, phaseCompleted
	case "failed", "error":
		return fam, phaseFailed
	}
	return familyNone, phaseNone
}

// group collects the events sharing one composite key
type group struct {
	key       string
	started   *trace.Event
	completed *trace.Event
	failed    *trace.Event
}

func (g *group) add(ev trace.Event, p phase) {
	e := ev
	switch p {
	case phaseStarted:
		if g.started == nil || e.Timestamp < g.started.Timestamp {
			g.started = &e
		}
	case phaseCompleted:
		if g.completed == nil || e.Timestamp >= g.completed.Timestamp {
			g.completed = &e
		}
	case phaseFailed:
		if g.failed == nil || e.Timestamp >= g.failed.Timestamp {
			g.failed = &e
		}
	}
}

// timing resolves start, terminal event and status for a group
func (g *group) timing() (start int64, terminal *trace.Event, status Status) {
	switch {
	case g.completed != nil:
		terminal, status = g.completed, StatusCompleted
	case g.failed != nil:
		terminal, status = g.failed, StatusFailed
	default:
		status = StatusStarted
	}
	if g.started != nil {
		start = g.started.Timestamp
	} else if terminal != nil {
		start = terminal.Timestamp
	}
	return start, terminal, status
}

// origin returns the event supplying request fields
func (g *group) origin() *trace.Event {
	if g.started != nil {
		return g.started
	}
	if g.completed != nil {
		return g.completed
	}
	return g.failed
}

type groups struct {
	order []string
	byKey map[string]*group
}

func (gs *groups) get(key string) *group {
	if gs.byKey == nil {
		gs.byKey = make(map[string]*group)
	}
	g, ok := gs.byKey[key]
	if !ok {
		g = &group{key: key}
		gs.byKey[key] = g
		gs.order = append(gs.order, key)
	}
	return g
}

// Aggregate pairs started/completed/failed events into call records and computes metrics.
// It is a pure function of its inputs and is meant to be recomputed on every change.
func Aggregate(events []trace.Event, window Window, now time.Time) *Report {
	var llm, tools groups

	for _, ev := range events {
		fam, p := classify(ev.Type)
		switch fam {
		case familyLLM:
			key := keyOf(ev.Data, "agent_id") + "|" + keyOf(ev.Data, "task_id")
			llm.get(key).add(ev, p)
		case familyTool:
			key := keyOf(ev.Data, "agent_id") + "|" + keyOf(ev.Data, "tool_name", "tool")
			tools.get(key).add(ev, p)
		}
	}

	report := &Report{
		LLMCalls:       make([]LLMCall, 0, len(llm.order)),
		ToolExecutions: make([]ToolExecution, 0, len(tools.order)),
	}

	for _, key := range llm.order {
		report.LLMCalls = append(report.LLMCalls, buildLLMCall(llm.byKey[key]))
	}
	for _, key := range tools.order {
		report.ToolExecutions = append(report.ToolExecutions, buildToolExecution(tools.byKey[key]))
	}

	sort.SliceStable(report.LLMCalls, func(i, j int) bool {
		return report.LLMCalls[i].StartTime < report.LLMCalls[j].StartTime
	})
	sort.SliceStable(report.ToolExecutions, func(i, j int) bool {
		return report.ToolExecutions[i].StartTime < report.ToolExecutions[j].StartTime
	})

	m := &report.Metrics
	for _, c := range report.LLMCalls {
		m.TotalLLMCalls++
		switch c.Status {
		case StatusCompleted:
			m.CompletedLLMCalls++
		case StatusFailed:
			m.FailedLLMCalls++
		}
		m.TotalTokens += c.Tokens
	}
	for _, t := range report.ToolExecutions {
		m.TotalToolExecutions++
		switch t.Status {
		case StatusCompleted:
			m.CompletedToolExecutions++
		case StatusFailed:
			m.FailedToolExecutions++
		}
	}
	m.ExecutionTimeMs = executionTime(window, now)

	return report
}

// WindowOf returns the time window of a normalized trace
func WindowOf(t *trace.Trace) Window {
	if t == nil {
		return Window{}
	}
	return Window{Start: t.StartTime, End: t.EndTime}
}

func executionTime(w Window, now time.Time) int64 {
	if w.Start == 0 {
		return 0
	}
	end := now.UnixMilli()
	if w.End != nil {
		end = *w.End
	}
	if end < w.Start {
		return 0
	}
	return end - w.Start
}

func buildLLMCall(g *group) LLMCall {
	start, terminal, status := g.timing()
	origin := g.origin()

	call := LLMCall{
		AgentID:   keyOf(origin.Data, "agent_id"),
		TaskID:    keyOf(origin.Data, "task_id"),
		Model:     stringOf(origin.Data, "model"),
		Prompt:    firstValue(origin.Data, "prompt", "messages"),
		Status:    status,
		StartTime: start,
	}
	if terminal != nil {
		call.Completion = firstValue(terminal.Data, "completion", "response", "output")
		call.Tokens = intOf(terminal.Data, "tokens", "total_tokens")
		call.Error = stringOf(terminal.Data, "error")
		if call.Model == "" {
			call.Model = stringOf(terminal.Data, "model")
		}
		call.EndTime, call.Duration = endAndDuration(start, terminal.Timestamp)
	}
	return call
}

func buildToolExecution(g *group) ToolExecution {
	start, terminal, status := g.timing()
	origin := g.origin()

	exec := ToolExecution{
		AgentID:   keyOf(origin.Data, "agent_id"),
		ToolName:  keyOf(origin.Data, "tool_name", "tool"),
		Inputs:    firstValue(origin.Data, "inputs", "tool_args", "input"),
		Status:    status,
		StartTime: start,
	}
	if terminal != nil {
		exec.Outputs = firstValue(terminal.Data, "outputs", "output", "result")
		exec.Error = stringOf(terminal.Data, "error")
		exec.EndTime, exec.Duration = endAndDuration(start, terminal.Timestamp)
	}
	return exec
}

func endAndDuration(start, end int64) (*int64, *int64) {
	d := end - start
	if d < 0 {
		d = 0
	}
	return &end, &d
}

func keyOf(data map[string]any, keys ...string) string {
	if s := stringOf(data, keys...); s != "" {
		return s
	}
	return unknownKey
}

func firstValue(data map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := data[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringOf(data map[string]any, keys ...string) string {
	switch v := firstValue(data, keys...).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func intOf(data map[string]any, keys ...string) int64 {
	switch v := firstValue(data, keys...).(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}
