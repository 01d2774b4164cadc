package audit

import (
	"fmt"
	"strings"

	"github.com/TyphonHill/go-mermaid/diagrams/flowchart"

	"github.com/agenticgokit/crewview/internal/trace"
)

const maxLabelLen = 60

// GenerateMermaid renders the span tree of a trace as a Mermaid flowchart.
// Children of flow and crew spans run in sequence and are chained in start order;
// other parents fan out to their children.
func GenerateMermaid(t *trace.Trace) string {
	diagram := flowchart.NewFlowchart()
	diagram.EnableMarkdownFence()
	diagram.SetDirection(flowchart.FlowchartDirectionTopDown)
	diagram.Config.SetHtmlLabels(true)

	nodes := make(map[string]*flowchart.Node)
	for _, fs := range trace.Flatten(t.Roots) {
		node := diagram.AddNode(formatNodeLabel(fs.Span))
		applyFlowchartShape(node, fs.Kind())
		if style := getFlowchartStyle(fs.Span); style != nil {
			node.SetStyle(style)
		}
		nodes[fs.ID] = node
	}

	added := make(map[string]bool)
	addLink := func(from, to *trace.Span) {
		key := from.ID + "->" + to.ID
		if added[key] {
			return
		}
		added[key] = true
		diagram.AddLink(nodes[from.ID], nodes[to.ID])
	}

	// several roots are sibling steps of one execution
	if len(t.Roots) > 1 {
		name := t.Name
		if name == "" {
			name = "Execution"
		}
		start := diagram.AddNode("▶ " + truncate(name))
		start.SetShape(flowchart.NodeShapeTerminal)
		diagram.AddLink(start, nodes[t.Roots[0].ID])
		for i := 0; i < len(t.Roots)-1; i++ {
			addLink(t.Roots[i], t.Roots[i+1])
		}
	}

	trace.Walk(t.Roots, func(s *trace.Span) {
		if len(s.Children) == 0 {
			return
		}
		if isSequential(s) {
			addLink(s, s.Children[0])
			for i := 0; i < len(s.Children)-1; i++ {
				addLink(s.Children[i], s.Children[i+1])
			}
			return
		}
		for _, child := range s.Children {
			addLink(s, child)
		}
	})

	return diagram.String()
}

func isSequential(s *trace.Span) bool {
	kind := s.Kind()
	return kind == "flow" || kind == "crew"
}

// formatNodeLabel creates a concise label for the node
func formatNodeLabel(s *trace.Span) string {
	desc := s.Name
	if agent, ok := s.Attribute("agent_role"); ok {
		if role, ok := agent.(string); ok && role != "" {
			desc = fmt.Sprintf("%s @%s", desc, role)
		}
	}

	var extra []string
	if s.DurationMs > 0 {
		extra = append(extra, fmt.Sprintf("%dms", s.DurationMs))
	}
	if s.Status == trace.StatusFailed {
		extra = append(extra, "failed")
	} else if s.InProgress() {
		extra = append(extra, "running")
	}

	label := fmt.Sprintf("%s %s", getKindIcon(s.Kind()), truncate(desc))
	if len(extra) > 0 {
		label += "<br/>" + strings.Join(extra, " · ")
	}
	return label
}

func truncate(s string) string {
	// labels must not break the mermaid syntax
	s = strings.NewReplacer(`"`, "'", "\n", " ").Replace(s)
	if r := []rune(s); len(r) > maxLabelLen {
		return string(r[:maxLabelLen-3]) + "..."
	}
	return s
}

func getKindIcon(kind string) string {
	switch kind {
	case "flow":
		return "⚡"
	case "crew":
		return "👥"
	case "agent":
		return "💭"
	case "llm":
		return "🤖"
	case "tool":
		return "🔧"
	case "task":
		return "📋"
	case "event":
		return "•"
	default:
		return "○"
	}
}

func applyFlowchartShape(node *flowchart.Node, kind string) {
	switch kind {
	case "flow", "crew":
		node.SetShape(flowchart.NodeShapePrepare)
	case "agent":
		node.SetShape(flowchart.NodeShapeTerminal)
	case "tool":
		node.SetShape(flowchart.NodeShapeSubprocess)
	case "task":
		node.SetShape(flowchart.NodeShapeInputOutput)
	case "llm":
		node.SetShape(flowchart.NodeShapeDecision)
	default:
		node.SetShape(flowchart.NodeShapeProcess)
	}
}

// getFlowchartStyle returns Mermaid styling for a span; failures override the kind colour
func getFlowchartStyle(s *trace.Span) *flowchart.NodeStyle {
	style := flowchart.NewNodeStyle()
	style.StrokeWidth = 1

	if s.Status == trace.StatusFailed {
		style.Fill = "#ffebee"
		style.Stroke = "#b71c1c"
		style.StrokeWidth = 2
		return style
	}

	switch s.Kind() {
	case "agent":
		style.Fill = "#e1f5fe"
		style.Stroke = "#01579b"
	case "tool":
		style.Fill = "#e8f5e9"
		style.Stroke = "#1b5e20"
	case "task":
		style.Fill = "#fff3e0"
		style.Stroke = "#e65100"
	case "llm":
		style.Fill = "#f3e5f5"
		style.Stroke = "#4a148c"
	case "flow", "crew":
		style.Fill = "#fce4ec"
		style.Stroke = "#880e4f"
	default:
		return nil
	}
	return style
}
