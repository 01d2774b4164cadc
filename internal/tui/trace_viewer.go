package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/agenticgokit/crewview/internal/audit"
	"github.com/agenticgokit/crewview/internal/trace"
)

const (
	CtrlC   = "ctrl+c"
	KeyUp   = "up"
	KeyDown = "down"
)

// ViewMode represents the current viewing mode
type ViewMode int

const (
	TraceListView ViewMode = iota
	TreeView
	DetailView
)

// DetailTab represents the active tab in the details panel
type DetailTab int

const (
	TabOverview DetailTab = iota
	TabEvents
	TabAttributes
	TabTiming
)

var tabNames = []string{"Overview", "Events", "Attributes", "Timing"}

// row is one visible line of the span tree
type row struct {
	span  *trace.Span
	level int
}

// Model is the bubbletea model for the trace explorer
type Model struct {
	traces      []*trace.Trace
	traceCursor int
	selected    int

	summary     audit.TraceSummary
	collapsed   map[string]bool
	rows        []row
	cursor      int
	viewMode    ViewMode
	selectedTab DetailTab

	treeViewport   viewport.Model
	detailViewport viewport.Model
	ready          bool
	width          int
	height         int
	live           bool
	now            func() time.Time

	searchMode    bool
	searchQuery   string
	searchMatches map[string]bool
	matchOrder    []string
	searchIndex   int
}

// NewTraceExplorer creates a trace explorer over several traces, starting at the list
func NewTraceExplorer(traces []*trace.Trace) Model {
	m := newModel()
	m.traces = traces
	m.viewMode = TraceListView
	if len(traces) > 0 {
		m.loadTrace(0)
	}
	return m
}

// NewTraceViewer opens a single trace directly in the tree view
func NewTraceViewer(t *trace.Trace) Model {
	m := newModel()
	m.traces = []*trace.Trace{t}
	m.loadTrace(0)
	m.viewMode = TreeView
	return m
}

func newModel() Model {
	return Model{
		collapsed:      make(map[string]bool),
		treeViewport:   viewport.New(40, 10),
		detailViewport: viewport.New(40, 10),
		searchMatches:  make(map[string]bool),
		searchIndex:    -1,
		now:            time.Now,
	}
}

// SetTraces replaces the traces while keeping the selection where possible
func (m Model) SetTraces(traces []*trace.Trace) Model {
	var currentID, spanID string
	if cur := m.current(); cur != nil {
		currentID = cur.ID
	}
	if s := m.selectedSpan(); s != nil {
		spanID = s.ID
	}

	m.traces = traces
	m.live = true
	if len(traces) == 0 {
		m.rows = nil
		m.cursor = 0
		return m
	}

	idx := 0
	for i, t := range traces {
		if t.ID == currentID {
			idx = i
			break
		}
	}
	if m.traceCursor >= len(traces) {
		m.traceCursor = len(traces) - 1
	}
	m.selected = idx
	m.summary = audit.Summarize(traces[idx], m.now())
	m.rebuild()
	m.cursor = m.rowIndex(spanID)
	return m
}

func (m *Model) loadTrace(index int) {
	if index < 0 || index >= len(m.traces) {
		return
	}
	m.selected = index
	m.collapsed = make(map[string]bool)
	m.cursor = 0
	m.summary = audit.Summarize(m.traces[index], m.now())
	m.rebuild()
}

func (m Model) current() *trace.Trace {
	if m.selected < 0 || m.selected >= len(m.traces) {
		return nil
	}
	return m.traces[m.selected]
}

func (m Model) selectedSpan() *trace.Span {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return nil
	}
	return m.rows[m.cursor].span
}

// rebuild recomputes the visible rows from the tree and the collapsed set
func (m *Model) rebuild() {
	m.rows = nil
	t := m.current()
	if t == nil {
		return
	}
	var add func(s *trace.Span, level int)
	add = func(s *trace.Span, level int) {
		m.rows = append(m.rows, row{span: s, level: level})
		if m.collapsed[s.ID] {
			return
		}
		for _, c := range s.Children {
			add(c, level+1)
		}
	}
	for _, r := range t.Roots {
		add(r, 0)
	}
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) rowIndex(spanID string) int {
	for i, r := range m.rows {
		if r.span.ID == spanID {
			return i
		}
	}
	if m.cursor < len(m.rows) {
		return m.cursor
	}
	return 0
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch m.viewMode {
		case TraceListView:
			return m.updateTraceListView(msg)
		case TreeView:
			if m.searchMode {
				return m.updateSearchInput(msg)
			}
			return m.updateTreeView(msg)
		case DetailView:
			return m.updateDetailView(msg)
		}

	case tea.WindowSizeMsg:
		m = m.resize(msg.Width, msg.Height)
	}

	m.treeViewport, cmd = m.treeViewport.Update(msg)
	return m, cmd
}

func (m Model) resize(width, height int) Model {
	m.width = width
	m.height = height

	availableWidth := width - 6
	availableHeight := height - 12
	treeHeight := availableHeight * 45 / 100
	if treeHeight < 8 {
		treeHeight = 8
	}
	detailHeight := availableHeight - treeHeight
	if detailHeight < 6 {
		detailHeight = 6
	}

	m.treeViewport.Width = availableWidth - 4
	m.treeViewport.Height = treeHeight
	m.detailViewport.Width = availableWidth - 4
	m.detailViewport.Height = detailHeight
	m.ready = true
	return m
}

func (m Model) updateTraceListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", CtrlC:
		return m, tea.Quit
	case KeyUp, "k":
		if m.traceCursor > 0 {
			m.traceCursor--
		}
	case KeyDown, "j":
		if m.traceCursor < len(m.traces)-1 {
			m.traceCursor++
		}
	case "enter", "l", "right":
		if m.traceCursor < len(m.traces) {
			m.loadTrace(m.traceCursor)
			m.viewMode = TreeView
		}
	}
	return m, nil
}

func (m Model) updateTreeView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", CtrlC:
		return m, tea.Quit

	case "left":
		m.selectedTab = (m.selectedTab + DetailTab(len(tabNames)) - 1) % DetailTab(len(tabNames))
	case "right":
		m.selectedTab = (m.selectedTab + 1) % DetailTab(len(tabNames))
	case "1", "2", "3", "4":
		m.selectedTab = DetailTab(msg.String()[0] - '1')

	case KeyUp, "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case KeyDown, "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}

	case "h":
		m = m.collapseOrParent()
	case "l", " ":
		m = m.toggle()
	case "enter", "d":
		if m.selectedSpan() != nil {
			m.viewMode = DetailView
			m.detailViewport.SetContent(m.renderTab(m.selectedSpan()))
			m.detailViewport.GotoTop()
		}

	case "/":
		m.searchMode = true
		m.searchQuery = ""
	case "n":
		m = m.stepMatch(1)
	case "N":
		m = m.stepMatch(-1)
	case "e":
		m = m.jumpToError(1)
	case "E":
		m = m.jumpToError(-1)

	case "[":
		if m.selected > 0 {
			m.loadTrace(m.selected - 1)
			m.traceCursor = m.selected
		}
	case "]":
		if m.selected < len(m.traces)-1 {
			m.loadTrace(m.selected + 1)
			m.traceCursor = m.selected
		}

	case "esc", "backspace":
		if len(m.searchMatches) > 0 {
			m.searchMatches = make(map[string]bool)
			m.matchOrder = nil
			m.searchIndex = -1
			return m, nil
		}
		if len(m.traces) > 1 {
			m.viewMode = TraceListView
			return m, nil
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) toggle() Model {
	s := m.selectedSpan()
	if s == nil || !s.HasChildren() {
		return m
	}
	m.collapsed[s.ID] = !m.collapsed[s.ID]
	m.rebuild()
	return m
}

func (m Model) collapseOrParent() Model {
	s := m.selectedSpan()
	if s == nil {
		return m
	}
	if s.HasChildren() && !m.collapsed[s.ID] {
		m.collapsed[s.ID] = true
		m.rebuild()
		return m
	}
	if s.ParentID != "" {
		for i, r := range m.rows {
			if r.span.ID == s.ParentID {
				m.cursor = i
				break
			}
		}
	}
	return m
}

func (m Model) updateSearchInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.searchMode = false
		m.searchQuery = ""
	case "enter":
		m.searchMode = false
		m = m.executeSearch()
	case "backspace":
		if len(m.searchQuery) > 0 {
			r := []rune(m.searchQuery)
			m.searchQuery = string(r[:len(r)-1])
		}
	default:
		if msg.Type == tea.KeyRunes {
			m.searchQuery += string(msg.Runes)
		}
	}
	return m, nil
}

// executeSearch matches over the whole tree, including collapsed spans
func (m Model) executeSearch() Model {
	m.searchMatches = make(map[string]bool)
	m.matchOrder = nil
	m.searchIndex = -1

	t := m.current()
	if m.searchQuery == "" || t == nil {
		return m
	}
	query := strings.ToLower(m.searchQuery)
	trace.Walk(t.Roots, func(s *trace.Span) {
		if matchesSearch(s, query) {
			m.searchMatches[s.ID] = true
			m.matchOrder = append(m.matchOrder, s.ID)
		}
	})
	if len(m.matchOrder) > 0 {
		m.searchIndex = 0
		m = m.revealAndSelect(m.matchOrder[0])
	}
	return m
}

func matchesSearch(s *trace.Span, query string) bool {
	if strings.Contains(strings.ToLower(s.Name), query) ||
		strings.Contains(strings.ToLower(string(s.Status)), query) {
		return true
	}
	for k, v := range s.Attributes {
		if strings.Contains(strings.ToLower(k), query) ||
			strings.Contains(strings.ToLower(fmt.Sprint(v)), query) {
			return true
		}
	}
	for _, ev := range s.Events {
		if strings.Contains(strings.ToLower(ev.Type), query) {
			return true
		}
	}
	return false
}

func (m Model) stepMatch(dir int) Model {
	n := len(m.matchOrder)
	if n == 0 {
		return m
	}
	m.searchIndex = ((m.searchIndex+dir)%n + n) % n
	return m.revealAndSelect(m.matchOrder[m.searchIndex])
}

// revealAndSelect expands every ancestor of a span and moves the cursor to it
func (m Model) revealAndSelect(spanID string) Model {
	t := m.current()
	if t == nil {
		return m
	}
	for s := t.Find(spanID); s != nil && s.ParentID != ""; s = t.Find(s.ParentID) {
		delete(m.collapsed, s.ParentID)
	}
	m.rebuild()
	m.cursor = m.rowIndex(spanID)
	return m
}

// jumpToError moves to the next failed span in tree order, wrapping around
func (m Model) jumpToError(dir int) Model {
	t := m.current()
	if t == nil {
		return m
	}
	var failed []string
	trace.Walk(t.Roots, func(s *trace.Span) {
		if s.Status == trace.StatusFailed {
			failed = append(failed, s.ID)
		}
	})
	if len(failed) == 0 {
		return m
	}

	order := make(map[string]int)
	for i, fs := range trace.Flatten(t.Roots) {
		order[fs.ID] = i
	}
	pos := -1
	if s := m.selectedSpan(); s != nil {
		pos = order[s.ID]
	}

	target := failed[0]
	if dir < 0 {
		target = failed[len(failed)-1]
	}
	for i := range failed {
		idx := i
		if dir < 0 {
			idx = len(failed) - 1 - i
		}
		p := order[failed[idx]]
		if (dir > 0 && p > pos) || (dir < 0 && p < pos) {
			target = failed[idx]
			break
		}
	}
	return m.revealAndSelect(target)
}

func (m Model) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg.String() {
	case "q", CtrlC:
		return m, tea.Quit
	case "esc", "backspace":
		m.viewMode = TreeView
		return m, nil
	case "left":
		m.selectedTab = (m.selectedTab + DetailTab(len(tabNames)) - 1) % DetailTab(len(tabNames))
	case "right":
		m.selectedTab = (m.selectedTab + 1) % DetailTab(len(tabNames))
	case "1", "2", "3", "4":
		m.selectedTab = DetailTab(msg.String()[0] - '1')
	default:
		m.detailViewport, cmd = m.detailViewport.Update(msg)
		return m, cmd
	}
	if s := m.selectedSpan(); s != nil {
		m.detailViewport.SetContent(m.renderTab(s))
		m.detailViewport.GotoTop()
	}
	return m, nil
}

// View renders the model
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var main string
	switch m.viewMode {
	case TraceListView:
		main = m.renderTraceList()
	case DetailView:
		main = m.renderDetailView()
	default:
		main = m.renderTreeView()
	}
	return strings.Join([]string{m.renderGlobalHeader(), main, m.renderStatusBar()}, "\n")
}

func (m Model) rule() string {
	w := m.width - 6
	if w < 10 {
		w = 10
	}
	return strings.Repeat("─", w)
}

func (m Model) renderGlobalHeader() string {
	title := "crewview Trace Explorer"
	if m.live {
		title = "🔴 LIVE  " + title
	}
	return TitleStyle.Render(title) + "\n" + m.rule()
}

func (m Model) renderStatusBar() string {
	var keys []string
	switch {
	case m.searchMode:
		keys = []string{"[Type] Search", "[Enter] Confirm", "[Esc] Cancel"}
	case m.viewMode == TraceListView:
		keys = []string{"[↑↓] Navigate", "[Enter] Open", "[q] Quit"}
	case m.viewMode == TreeView:
		keys = []string{"[↑↓] Nav", "[h/l] Fold", "[←→] Tabs", "[d] Detail", "[/] Search", "[e] Errors", "[ ] ] Traces", "[q] Quit"}
	default:
		keys = []string{"[←→] Tabs", "[1-4] Jump", "[↑↓] Scroll", "[Esc] Back", "[q] Quit"}
	}

	rendered := make([]string, 0, len(keys))
	for _, k := range keys {
		end := strings.Index(k, "]") + 1
		rendered = append(rendered, HelpKeyStyle.Render(k[:end])+k[end:])
	}

	line := strings.Join(rendered, " ")
	if n := len(m.matchOrder); n > 0 && !m.searchMode {
		line = SuccessStyle.Render(fmt.Sprintf("🔍 %d/%d", m.searchIndex+1, n)) + "  " + line
	}
	return m.rule() + "\n" + HelpStyle.Render(line)
}

func (m Model) renderTraceList() string {
	var b strings.Builder
	if len(m.traces) == 0 {
		b.WriteString("\n")
		b.WriteString(MutedStyle.Render("No traces yet. Run the crew or flow to produce one."))
		b.WriteString("\n")
		return b.String()
	}

	maxVisible := m.height - 8
	if maxVisible < 5 {
		maxVisible = 5
	}
	offset := 0
	if m.traceCursor >= maxVisible {
		offset = m.traceCursor - maxVisible + 1
	}

	for i, t := range m.traces {
		if i < offset || i >= offset+maxVisible {
			continue
		}
		status := StatusStyle(t.Status).Render(fmt.Sprintf("%s %-11s", StatusIcon(t.Status), t.Status))
		line := fmt.Sprintf("%-36s  %-24s  %-19s  %4d spans  %s",
			truncate(t.ID, 36),
			truncate(t.Name, 24),
			trace.FormatTimestamp(t.StartTime),
			t.SpanCount(),
			status,
		)
		if i == m.traceCursor {
			b.WriteString(CursorStyle.Render("→ "))
			b.WriteString(SelectedStyle.Render(line))
		} else {
			b.WriteString("  ")
			b.WriteString(line)
		}
		b.WriteString("\n")
	}
	if len(m.traces) > maxVisible {
		b.WriteString("\n")
		b.WriteString(MutedStyle.Render(fmt.Sprintf("[%d/%d traces]", m.traceCursor+1, len(m.traces))))
	}
	return b.String()
}

func (m Model) renderSummary() string {
	t := m.current()
	if t == nil {
		return ""
	}
	s := m.summary

	title := fmt.Sprintf("Trace: %s", t.Name)
	if len(m.traces) > 1 {
		title += MutedStyle.Render(fmt.Sprintf("  (%d/%d)", m.selected+1, len(m.traces)))
	}

	parts := []string{
		fmt.Sprintf("Duration: %s", DurationStyle.Render(formatMs(s.TotalDurationMs))),
		fmt.Sprintf("Spans: %d", s.TotalSpans),
		fmt.Sprintf("LLM: %d", s.Metrics.TotalLLMCalls),
		fmt.Sprintf("Tools: %d", s.Metrics.TotalToolExecutions),
	}
	if s.TokensUsed > 0 {
		parts = append(parts,
			fmt.Sprintf("Tokens: %s", DurationStyle.Render(fmt.Sprint(s.TokensUsed))),
			fmt.Sprintf("Cost: %s", WarningStyle.Render(fmt.Sprintf("$%.4f", s.EstimatedCost))))
	}
	parts = append(parts, fmt.Sprintf("Status: %s", StatusStyle(t.Status).Render(string(t.Status))))
	if s.FailedSpans > 0 {
		parts = append(parts, ErrorStyle.Render(fmt.Sprintf("Errors: %d", s.FailedSpans)))
	}

	lines := []string{HeaderStyle.Render(title), MutedStyle.Render(strings.Join(parts, "  |  "))}
	if len(s.Slowest) > 0 && s.Slowest[0].DurationMs > 100 {
		slow := s.Slowest[0]
		lines = append(lines, fmt.Sprintf("Bottleneck: %s %s", MutedStyle.Render(slow.Name), DurationStyle.Render("("+formatMs(slow.DurationMs)+")")))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderTreeView() string {
	var b strings.Builder
	b.WriteString(m.renderSummary())
	b.WriteString("\n")

	var content strings.Builder
	for i, r := range m.rows {
		content.WriteString(m.renderSpanLine(r, i == m.cursor))
		content.WriteString("\n")
	}
	tree := m.treeViewport
	tree.SetContent(content.String())
	if m.cursor < tree.YOffset {
		tree.SetYOffset(m.cursor)
	} else if m.cursor >= tree.YOffset+tree.Height {
		tree.SetYOffset(m.cursor - tree.Height + 1)
	}

	width := m.width - 6
	if width < 20 {
		width = 20
	}
	b.WriteString(PaneStyle.Width(width).BorderForeground(secondaryColor).Render(HeaderStyle.Render("Span Tree") + "\n" + tree.View()))
	b.WriteString("\n")

	detail := m.detailViewport
	if s := m.selectedSpan(); s != nil {
		detail.SetContent(m.renderTab(s))
	} else {
		detail.SetContent(MutedStyle.Render("No span selected"))
	}
	b.WriteString(PaneStyle.Width(width).Render(m.renderTabBar() + "\n" + detail.View()))

	if m.searchMode {
		b.WriteString("\n")
		b.WriteString(BoxStyle.Render("Search: " + m.searchQuery + "█"))
	}
	return b.String()
}

func (m Model) renderSpanLine(r row, selected bool) string {
	s := r.span
	indent := strings.Repeat("  ", r.level)

	prefix := "  "
	if s.HasChildren() {
		prefix = "▼ "
		if m.collapsed[s.ID] {
			prefix = "▶ "
		}
	}

	name := KindStyle(s.Kind()).Render(s.Name)
	status := StatusStyle(s.Status).Render(StatusIcon(s.Status))

	var extra string
	if m.searchMatches[s.ID] {
		extra += " 🔍"
	}
	if n := len(s.Events); n > 0 {
		extra += MutedStyle.Render(fmt.Sprintf(" [%d events]", n))
	}

	dur := "running"
	if !s.InProgress() {
		dur = formatMs(s.DurationMs)
	}
	line := fmt.Sprintf("%s%s%s %s%s %s", indent, prefix, status, name, extra, DurationStyle.Render("("+dur+")"))

	if selected {
		return CursorStyle.Render("→ ") + SelectedStyle.Render(line)
	}
	return "  " + line
}

func (m Model) renderTabBar() string {
	var b strings.Builder
	for i, tab := range tabNames {
		if DetailTab(i) == m.selectedTab {
			b.WriteString(SelectedStyle.Render(" " + tab + " "))
		} else {
			b.WriteString(MutedStyle.Render(" " + tab + " "))
		}
		if i < len(tabNames)-1 {
			b.WriteString(MutedStyle.Render("│"))
		}
	}
	return b.String()
}

func (m Model) renderDetailView() string {
	s := m.selectedSpan()
	if s == nil {
		return MutedStyle.Render("No span selected")
	}
	header := HeaderStyle.Render(fmt.Sprintf("%s  %s", StatusIcon(s.Status), s.Name))
	return header + "\n" + m.renderTabBar() + "\n" + m.rule() + "\n" + m.detailViewport.View()
}

func (m Model) renderTab(s *trace.Span) string {
	switch m.selectedTab {
	case TabEvents:
		return renderEventsTab(s)
	case TabAttributes:
		return renderAttributesTab(s)
	case TabTiming:
		return renderTimingTab(s)
	default:
		return renderOverviewTab(s)
	}
}

func renderOverviewTab(s *trace.Span) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %s\n", "Name:", s.Name)
	fmt.Fprintf(&b, "%-12s %s\n", "ID:", s.ID)
	fmt.Fprintf(&b, "%-12s %s\n", "Kind:", s.Kind())
	fmt.Fprintf(&b, "%-12s %s\n", "Status:", StatusStyle(s.Status).Render(string(s.Status)))
	if s.ParentID != "" {
		fmt.Fprintf(&b, "%-12s %s\n", "Parent:", s.ParentID)
	}
	fmt.Fprintf(&b, "%-12s %d\n", "Depth:", s.Depth)
	fmt.Fprintf(&b, "%-12s %d\n", "Children:", len(s.Children))

	report := audit.Aggregate(s.Events, audit.Window{}, time.Now())
	if len(report.LLMCalls) > 0 || len(report.ToolExecutions) > 0 {
		b.WriteString("\n")
		b.WriteString(SectionHeaderStyle.Render("Calls"))
		b.WriteString("\n\n")
		for _, c := range report.LLMCalls {
			fmt.Fprintf(&b, "LLM  %-10s %-20s tokens=%d %s\n", c.Status, c.Model, c.Tokens, durationOf(c.Duration))
		}
		for _, t := range report.ToolExecutions {
			fmt.Fprintf(&b, "TOOL %-10s %-20s %s\n", t.Status, t.ToolName, durationOf(t.Duration))
		}
	}
	return b.String()
}

func renderEventsTab(s *trace.Span) string {
	if len(s.Events) == 0 {
		return MutedStyle.Render("No events recorded for this span")
	}
	var b strings.Builder
	for _, ev := range s.Events {
		fmt.Fprintf(&b, "%s  %s\n", MutedStyle.Render(trace.FormatTimestamp(ev.Timestamp)), AttributeKeyStyle.Render(ev.Type))
		if len(ev.Data) > 0 {
			data, err := json.MarshalIndent(ev.Data, "    ", "  ")
			if err == nil {
				b.WriteString("    ")
				b.Write(data)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

func renderAttributesTab(s *trace.Span) string {
	if len(s.Attributes) == 0 {
		return MutedStyle.Render("No attributes available")
	}
	keys := make([]string, 0, len(s.Attributes))
	for k := range s.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%-30s %v\n", AttributeKeyStyle.Render(k+":"), s.Attributes[k])
	}
	return b.String()
}

func renderTimingTab(s *trace.Span) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-15s %s\n", "Start Time:", trace.FormatTimestamp(s.StartTime))
	if s.EndTime != nil {
		fmt.Fprintf(&b, "%-15s %s\n", "End Time:", trace.FormatTimestamp(*s.EndTime))
		fmt.Fprintf(&b, "%-15s %s\n", "Duration:", formatMs(s.DurationMs))
	} else {
		fmt.Fprintf(&b, "%-15s %s\n", "End Time:", RunningStyle.Render("in progress"))
	}

	if len(s.Children) == 0 || s.DurationMs <= 0 {
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(SectionHeaderStyle.Render("Child Spans"))
	b.WriteString("\n\n")

	var childTotal int64
	for _, c := range s.Children {
		childTotal += c.DurationMs
		pct := float64(c.DurationMs) / float64(s.DurationMs) * 100
		bar := strings.Repeat("█", int(pct/2))
		fmt.Fprintf(&b, "%-30s %8s %6.1f%% %s\n", truncate(c.Name, 30), formatMs(c.DurationMs), pct, DurationStyle.Render(bar))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%-30s %8s\n", "Total Child Time:", formatMs(childTotal))
	if self := s.DurationMs - childTotal; self > 0 {
		fmt.Fprintf(&b, "%-30s %8s\n", "Self Time:", formatMs(self))
	}
	return b.String()
}

func durationOf(d *int64) string {
	if d == nil {
		return RunningStyle.Render("in flight")
	}
	return formatMs(*d)
}

func formatMs(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.2fs", float64(ms)/1000)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

var _ tea.Model = Model{}
