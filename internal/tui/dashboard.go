package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/agenticgokit/crewview/internal/audit"
	"github.com/agenticgokit/crewview/internal/live"
	"github.com/agenticgokit/crewview/internal/protocol"
	"github.com/agenticgokit/crewview/internal/trace"
)

// StateSource is the read side of the live store
type StateSource interface {
	Snapshot() live.State
	Conn() (live.ConnState, error)
	LastError() string
	Subscribe() (<-chan struct{}, func())
}

type dashboardTab int

const (
	tabEntities dashboardTab = iota
	tabTraces
)

// stateChangedMsg signals that the store published a new state
type stateChangedMsg struct{}

// Dashboard is the live view of one tracked crew or flow
type Dashboard struct {
	source  StateSource
	updates <-chan struct{}
	cancel  func()
	retry   func()

	state   live.State
	conn    live.ConnState
	connErr error
	lastErr string

	tab     dashboardTab
	traces  Model
	spinner spinner.Model

	width  int
	height int
}

// NewDashboard subscribes to the source. retry is invoked by the "r" key and may be nil.
func NewDashboard(source StateSource, retry func()) Dashboard {
	updates, cancel := source.Subscribe()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = RunningStyle

	d := Dashboard{
		source:  source,
		updates: updates,
		cancel:  cancel,
		retry:   retry,
		spinner: sp,
		traces:  NewTraceExplorer(nil),
	}
	return d.refresh()
}

// Close releases the store subscription
func (d Dashboard) Close() {
	if d.cancel != nil {
		d.cancel()
	}
}

func (d Dashboard) refresh() Dashboard {
	d.state = d.source.Snapshot()
	d.conn, d.connErr = d.source.Conn()
	d.lastErr = d.source.LastError()
	d.traces = d.traces.SetTraces(d.sortedTraces())
	return d
}

func (d Dashboard) sortedTraces() []*trace.Trace {
	items := d.state.Traces.Items()
	out := make([]*trace.Trace, 0, len(items))
	// newest first
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, items[i])
	}
	return out
}

func waitForChange(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return stateChangedMsg{}
	}
}

// Init starts the spinner and the store listener
func (d Dashboard) Init() tea.Cmd {
	return tea.Batch(d.spinner.Tick, waitForChange(d.updates))
}

// Update handles messages
func (d Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateChangedMsg:
		d = d.refresh()
		return d, waitForChange(d.updates)

	case spinner.TickMsg:
		var cmd tea.Cmd
		d.spinner, cmd = d.spinner.Update(msg)
		return d, cmd

	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		m, _ := d.traces.Update(tea.WindowSizeMsg{Width: msg.Width, Height: msg.Height - 4})
		d.traces = m.(Model)
		return d, nil

	case tea.KeyMsg:
		switch msg.String() {
		case CtrlC:
			d.Close()
			return d, tea.Quit
		case "tab":
			if d.tab == tabEntities {
				d.tab = tabTraces
			} else {
				d.tab = tabEntities
			}
			return d, nil
		}

		if d.tab == tabTraces {
			if msg.String() == "q" || d.leavesTraces(msg.String()) {
				d.tab = tabEntities
				return d, nil
			}
			m, cmd := d.traces.Update(msg)
			d.traces = m.(Model)
			return d, cmd
		}

		switch msg.String() {
		case "q", "esc":
			d.Close()
			return d, tea.Quit
		case "r":
			if d.retry != nil && (d.conn == live.ConnFailed || d.conn == live.ConnDisconnected) {
				d.retry()
			}
		case "t":
			d.tab = tabTraces
		}
	}
	return d, nil
}

// leavesTraces reports whether a back key would otherwise quit the embedded explorer
func (d Dashboard) leavesTraces(key string) bool {
	if key != "esc" && key != "backspace" {
		return false
	}
	t := d.traces
	if t.searchMode {
		return false
	}
	switch t.viewMode {
	case TraceListView:
		return true
	case TreeView:
		return len(t.searchMatches) == 0 && len(t.traces) <= 1
	}
	return false
}

// View renders the dashboard
func (d Dashboard) View() string {
	var b strings.Builder
	b.WriteString(d.renderHeader())
	b.WriteString("\n")

	if d.tab == tabTraces {
		b.WriteString(d.traces.View())
		return b.String()
	}

	b.WriteString(d.renderEntities())
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render(HelpKeyStyle.Render("[tab]") + " Traces  " +
		HelpKeyStyle.Render("[r]") + " Retry  " +
		HelpKeyStyle.Render("[q]") + " Quit"))
	return b.String()
}

func (d Dashboard) renderHeader() string {
	title := fmt.Sprintf("crewview · %s %s", d.state.Kind, d.state.EntityID)
	return lipgloss.JoinHorizontal(lipgloss.Center, TitleStyle.Render(title), "  ", d.renderConn())
}

func (d Dashboard) renderConn() string {
	switch d.conn {
	case live.ConnConnected:
		return SuccessStyle.Render("● connected")
	case live.ConnConnecting:
		return d.spinner.View() + RunningStyle.Render(" connecting")
	case live.ConnDisconnected:
		return WarningStyle.Render("● reconnecting") + MutedStyle.Render("  press r to retry now")
	case live.ConnFailed:
		msg := "● connection failed"
		if d.connErr != nil {
			msg += ": " + d.connErr.Error()
		}
		return ErrorStyle.Render(msg) + MutedStyle.Render("  press r to retry")
	default:
		return MutedStyle.Render("● idle")
	}
}

func (d Dashboard) renderEntities() string {
	var sections []string

	root := d.state.Root()
	if root == nil {
		sections = append(sections, d.spinner.View()+MutedStyle.Render(" waiting for state..."))
	} else {
		status := trace.ParseStatus(root.Status)
		line := fmt.Sprintf("%s %s  %s", StatusIcon(status), HeaderStyle.Render(root.Label()), StatusStyle(status).Render(string(status)))
		if root.Error != "" {
			line += "\n" + ErrorStyle.Render(root.Error)
		}
		sections = append(sections, line)
	}

	if d.lastErr != "" {
		sections = append(sections, ErrorStyle.Render("Error: "+d.lastErr))
	}

	if d.state.Kind == protocol.KindFlow {
		sections = append(sections, renderEntityList("Methods", d.state.SortedMethods()))
		if len(d.state.FlowErrors) > 0 {
			sections = append(sections, ErrorStyle.Render(strings.Join(d.state.FlowErrors, "\n")))
		}
	} else {
		sections = append(sections, renderEntityList("Agents", d.state.SortedAgents()))
		sections = append(sections, renderEntityList("Tasks", d.state.SortedTasks()))
	}

	if t := d.state.LatestTrace(); t != nil {
		s := audit.Summarize(t, d.traces.now())
		sections = append(sections, fmt.Sprintf("%s  %s\n%s",
			SectionHeaderStyle.Render("Latest Trace"),
			MutedStyle.Render(t.ID),
			fmt.Sprintf("spans %d · failed %d · llm %d · tools %d · tokens %d · %s",
				s.TotalSpans, s.FailedSpans, s.Metrics.TotalLLMCalls, s.Metrics.TotalToolExecutions, s.TokensUsed, formatMs(s.TotalDurationMs))))
	}

	width := d.width - 4
	if width < 20 {
		width = 20
	}
	return PaneStyle.Width(width).Render(strings.Join(sections, "\n\n"))
}

func renderEntityList(title string, items []protocol.Entity) string {
	var b strings.Builder
	b.WriteString(SectionHeaderStyle.Render(fmt.Sprintf("%s (%d)", title, len(items))))
	if len(items) == 0 {
		b.WriteString("\n")
		b.WriteString(MutedStyle.Render("none"))
		return b.String()
	}
	for _, e := range items {
		status := trace.ParseStatus(e.Status)
		fmt.Fprintf(&b, "\n%s %-32s %s", StatusIcon(status), truncate(e.Label(), 32), StatusStyle(status).Render(string(status)))
		if e.Error != "" {
			b.WriteString("  " + ErrorStyle.Render(truncate(e.Error, 60)))
		}
	}
	return b.String()
}

var _ tea.Model = Dashboard{}
