package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenticgokit/crewview/internal/live"
	"github.com/agenticgokit/crewview/internal/protocol"
	"github.com/agenticgokit/crewview/internal/trace"
)

const t0 = int64(1_700_000_000_000)

func ptr(v int64) *int64 { return &v }

func sampleTrace(id string) *trace.Trace {
	root := &trace.Span{ID: id + "-root", Name: "Flow Execution", StartTime: t0, EndTime: ptr(t0 + 1000), DurationMs: 1000, Status: trace.StatusCompleted}
	plan := &trace.Span{ID: id + "-plan", Name: "plan", ParentID: root.ID, StartTime: t0 + 10, EndTime: ptr(t0 + 400), DurationMs: 390, Status: trace.StatusCompleted, Depth: 1,
		Attributes: map[string]any{"agent_role": "planner"}}
	search := &trace.Span{ID: id + "-search", Name: "search tool", ParentID: plan.ID, StartTime: t0 + 20, EndTime: ptr(t0 + 100), DurationMs: 80, Status: trace.StatusFailed, Depth: 2}
	write := &trace.Span{ID: id + "-write", Name: "write", ParentID: root.ID, StartTime: t0 + 410, Status: trace.StatusRunning, Depth: 1}
	plan.Children = []*trace.Span{search}
	root.Children = []*trace.Span{plan, write}
	return &trace.Trace{ID: id, Name: "Poem " + id, StartTime: t0, Status: trace.StatusRunning, Roots: []*trace.Span{root}}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m tea.Model, keys ...string) tea.Model {
	t.Helper()
	for _, k := range keys {
		m, _ = m.Update(key(k))
	}
	return m
}

func sized(m tea.Model) tea.Model {
	m, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return m
}

func TestTraceViewerRowsFollowTree(t *testing.T) {
	m := NewTraceViewer(sampleTrace("a"))

	require.Len(t, m.rows, 4)
	assert.Equal(t, "a-root", m.rows[0].span.ID)
	assert.Equal(t, "a-search", m.rows[2].span.ID)
	assert.Equal(t, 2, m.rows[2].level)
}

func TestTraceViewerCollapse(t *testing.T) {
	var m tea.Model = NewTraceViewer(sampleTrace("a"))

	m = press(t, m, "down", "l")
	vm := m.(Model)
	assert.True(t, vm.collapsed["a-plan"])
	assert.Len(t, vm.rows, 3)

	m = press(t, m, "l")
	assert.Len(t, m.(Model).rows, 4)

	// h on a leaf moves to its parent
	m = press(t, m, "down", "h")
	assert.Equal(t, "a-plan", m.(Model).selectedSpan().ID)
}

func TestTraceViewerErrorJumpRevealsCollapsedSpan(t *testing.T) {
	var m tea.Model = NewTraceViewer(sampleTrace("a"))
	m = press(t, m, "down", "l", "up")
	require.Len(t, m.(Model).rows, 3)

	m = press(t, m, "e")
	vm := m.(Model)
	assert.Equal(t, "a-search", vm.selectedSpan().ID)
	assert.False(t, vm.collapsed["a-plan"])
}

func TestTraceViewerSearch(t *testing.T) {
	var m tea.Model = NewTraceViewer(sampleTrace("a"))
	m = press(t, m, "/", "w", "r", "i", "enter")

	vm := m.(Model)
	assert.False(t, vm.searchMode)
	assert.Equal(t, []string{"a-write"}, vm.matchOrder)
	assert.Equal(t, "a-write", vm.selectedSpan().ID)

	// attribute values are searched too
	m = press(t, m, "esc", "/", "p", "l", "a", "n", "n", "e", "r", "enter")
	assert.Equal(t, []string{"a-plan"}, m.(Model).matchOrder)
}

func TestTraceExplorerListAndDetail(t *testing.T) {
	var m tea.Model = NewTraceExplorer([]*trace.Trace{sampleTrace("a"), sampleTrace("b")})
	m = sized(m)
	assert.Equal(t, TraceListView, m.(Model).viewMode)
	assert.Contains(t, m.View(), "Poem b")

	m = press(t, m, "down", "enter")
	vm := m.(Model)
	assert.Equal(t, TreeView, vm.viewMode)
	assert.Equal(t, "b", vm.current().ID)
	assert.Contains(t, m.View(), "Span Tree")

	m = press(t, m, "d", "4")
	vm = m.(Model)
	assert.Equal(t, DetailView, vm.viewMode)
	assert.Equal(t, TabTiming, vm.selectedTab)
	assert.Contains(t, renderTimingTab(vm.selectedSpan()), "Child Spans")

	m = press(t, m, "esc", "esc")
	assert.Equal(t, TraceListView, m.(Model).viewMode)
}

func TestSetTracesKeepsSelection(t *testing.T) {
	var m tea.Model = NewTraceViewer(sampleTrace("a"))
	m = press(t, m, "down", "down")
	require.Equal(t, "a-search", m.(Model).selectedSpan().ID)

	vm := m.(Model).SetTraces([]*trace.Trace{sampleTrace("z"), sampleTrace("a")})
	assert.Equal(t, "a", vm.current().ID)
	assert.Equal(t, "a-search", vm.selectedSpan().ID)
	assert.True(t, vm.live)
}

func TestAttributesTabSorted(t *testing.T) {
	s := &trace.Span{Attributes: map[string]any{"b": 2, "a": 1}}
	out := renderAttributesTab(s)
	assert.Less(t, strings.Index(out, "a:"), strings.Index(out, "b:"))
	assert.Contains(t, renderAttributesTab(&trace.Span{}), "No attributes")
}

type fakeSource struct {
	state   live.State
	conn    live.ConnState
	err     error
	updates chan struct{}
}

func (f *fakeSource) Snapshot() live.State { return f.state }

func (f *fakeSource) Conn() (live.ConnState, error) { return f.conn, f.err }

func (f *fakeSource) LastError() string { return "" }

func (f *fakeSource) Subscribe() (<-chan struct{}, func()) { return f.updates, func() {} }

func TestDashboardRefreshesOnStateChange(t *testing.T) {
	src := &fakeSource{
		state:   live.NewState(protocol.KindCrew, "c1", 0),
		conn:    live.ConnConnecting,
		updates: make(chan struct{}, 1),
	}
	var m tea.Model = sized(NewDashboard(src, nil))
	assert.Contains(t, m.View(), "waiting for state")

	src.state.Crew = &protocol.Entity{ID: "c1", Name: "Research Crew", Status: "running"}
	src.conn = live.ConnConnected
	m, cmd := m.Update(stateChangedMsg{})
	require.NotNil(t, cmd)

	view := m.View()
	assert.Contains(t, view, "Research Crew")
	assert.Contains(t, view, "connected")
	assert.Contains(t, view, "Agents (0)")
}

func TestDashboardRetryWhenFailedOrReconnecting(t *testing.T) {
	src := &fakeSource{state: live.NewState(protocol.KindFlow, "f1", 0), conn: live.ConnConnected, updates: make(chan struct{})}
	retries := 0
	var m tea.Model = NewDashboard(src, func() { retries++ })

	m = press(t, m, "r")
	assert.Equal(t, 0, retries, "no retry while connected")

	src.conn = live.ConnConnecting
	m, _ = m.Update(stateChangedMsg{})
	m = press(t, m, "r")
	assert.Equal(t, 0, retries, "no retry while a dial is in progress")

	src.conn = live.ConnDisconnected
	m, _ = m.Update(stateChangedMsg{})
	m = press(t, m, "r")
	assert.Equal(t, 1, retries)

	src.conn = live.ConnFailed
	m, _ = m.Update(stateChangedMsg{})
	press(t, m, "r")
	assert.Equal(t, 2, retries)
}

func TestDashboardTracesTab(t *testing.T) {
	src := &fakeSource{state: live.NewState(protocol.KindFlow, "f1", 0), conn: live.ConnConnected, updates: make(chan struct{})}
	var m tea.Model = sized(NewDashboard(src, nil))

	m = press(t, m, "tab")
	assert.Equal(t, tabTraces, m.(Dashboard).tab)
	assert.Contains(t, m.View(), "No traces yet")

	m = press(t, m, "esc")
	assert.Equal(t, tabEntities, m.(Dashboard).tab)
}
