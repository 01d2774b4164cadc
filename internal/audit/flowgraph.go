package audit

import (
	"sort"

	"github.com/TyphonHill/go-mermaid/diagrams/flowchart"

	"github.com/agenticgokit/crewview/internal/api"
	"github.com/agenticgokit/crewview/internal/trace"
)

// GenerateFlowGraph renders the method graph of a flow as a Mermaid flowchart.
// Each dependency becomes an edge from the listened-to method; a dependency naming
// no known method (an event or router label) gets its own node. When statuses is
// non-nil the nodes are coloured by the live status of each method.
func GenerateFlowGraph(flow *api.FlowStructure, statuses map[string]trace.Status) string {
	diagram := flowchart.NewFlowchart()
	diagram.EnableMarkdownFence()
	diagram.SetDirection(flowchart.FlowchartDirectionTopDown)

	nodes := make(map[string]*flowchart.Node, len(flow.Methods))
	for _, m := range flow.Methods {
		label := m.Name
		if label == "" {
			label = m.ID
		}
		node := diagram.AddNode(truncate(label))
		switch {
		case m.IsStart:
			node.SetShape(flowchart.NodeShapeTerminal)
		case m.IsListener:
			node.SetShape(flowchart.NodeShapeProcess)
		default:
			node.SetShape(flowchart.NodeShapeEvent)
		}
		if style := methodStyle(m, statuses); style != nil {
			node.SetStyle(style)
		}
		nodes[m.ID] = node
	}

	// external triggers are created once, in a stable order
	external := make(map[string]*flowchart.Node)
	var names []string
	for _, m := range flow.Methods {
		for _, dep := range m.Dependencies {
			if _, ok := nodes[dep]; !ok && external[dep] == nil {
				external[dep] = nil
				names = append(names, dep)
			}
		}
	}
	sort.Strings(names)
	for _, name := range names {
		node := diagram.AddNode(truncate(name))
		node.SetShape(flowchart.NodeShapeDecision)
		external[name] = node
	}

	for _, m := range flow.Methods {
		for _, dep := range m.Dependencies {
			from, ok := nodes[dep]
			if !ok {
				from = external[dep]
			}
			diagram.AddLink(from, nodes[m.ID])
		}
	}

	return diagram.String()
}

func methodStyle(m api.FlowMethod, statuses map[string]trace.Status) *flowchart.NodeStyle {
	style := flowchart.NewNodeStyle()
	style.StrokeWidth = 1

	status, tracked := statuses[m.ID]
	switch {
	case tracked && status == trace.StatusFailed:
		style.Fill = "#ffebee"
		style.Stroke = "#b71c1c"
		style.StrokeWidth = 2
	case tracked && status == trace.StatusCompleted:
		style.Fill = "#e8f5e9"
		style.Stroke = "#1b5e20"
	case tracked && status == trace.StatusRunning:
		style.Fill = "#e1f5fe"
		style.Stroke = "#01579b"
		style.StrokeWidth = 2
	case m.IsStart:
		style.Fill = "#fce4ec"
		style.Stroke = "#880e4f"
	default:
		return nil
	}
	return style
}
