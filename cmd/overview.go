package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agenticgokit/crewview/internal/api"
	"github.com/agenticgokit/crewview/internal/audit"
	"github.com/agenticgokit/crewview/internal/protocol"
	"github.com/agenticgokit/crewview/internal/trace"
	"github.com/agenticgokit/crewview/internal/tui"
	"github.com/agenticgokit/crewview/internal/utils"
)

var (
	overviewJSON    bool
	structureOutput string
	structureLive   bool
	recentLimit     int
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Summarize the backend: resource counts, active flows and recent traces",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		return writeOverview(cmd.Context(), os.Stdout, client, overviewJSON)
	},
}

var flowStructureCmd = &cobra.Command{
	Use:   "structure <flow-id>",
	Short: "Render the method graph of a flow as a Mermaid flowchart",
	Long: `Fetch the methods of a flow and the methods each one listens to, and render
them as a Mermaid flowchart. With --live the methods are coloured by their
status in the flow's most recent trace.

Examples:
  crewview flows structure poem
  crewview flows structure poem --live -o poem.md`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		content, err := flowGraphDocument(cmd.Context(), client, args[0], structureLive)
		if err != nil {
			return err
		}
		if structureOutput != "" {
			if err := utils.WriteFile(structureOutput, []byte(content)); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			fmt.Printf("✅ Generated flow graph: %s\n", structureOutput)
			return nil
		}
		fmt.Print(content)
		return nil
	},
}

var traceRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the newest traces across all crews",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		body, err := client.RecentTraces(cmd.Context(), recentLimit)
		if err != nil {
			return fmt.Errorf("failed to fetch recent traces: %w", err)
		}
		traces := trace.NewNormalizer(GetLogger()).DecodeTraces(body)
		if len(traces) == 0 {
			fmt.Println("No traces recorded yet.")
			return nil
		}
		writeTraceTable(os.Stdout, traces, time.Now())
		return nil
	},
}

var traceGetCmd = &cobra.Command{
	Use:   "get <trace-id>",
	Short: "Show a trace from the telemetry store by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		body, err := client.TraceByID(cmd.Context(), args[0])
		if err != nil {
			if api.IsNotFound(err) {
				return utils.NewUserError(
					fmt.Sprintf("Trace not found: %s", args[0]),
					"Run 'crewview trace recent' to see recorded traces",
					err,
				)
			}
			return fmt.Errorf("failed to fetch trace: %w", err)
		}
		traces := trace.NewNormalizer(GetLogger()).DecodeTraces(body)
		if len(traces) == 0 {
			return fmt.Errorf("backend returned no trace for %s", args[0])
		}
		if traceSummary {
			printSummary(traces[0])
			return nil
		}
		return runTUI(tui.NewTraceViewer(traces[0]))
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
	flowsCmd.AddCommand(flowStructureCmd)
	traceCmd.AddCommand(traceRecentCmd)
	traceCmd.AddCommand(traceGetCmd)

	dashboardCmd.Flags().BoolVar(&overviewJSON, "json", false, "Print as JSON")
	flowStructureCmd.Flags().StringVarP(&structureOutput, "output", "o", "", "Output file (default: stdout)")
	flowStructureCmd.Flags().BoolVar(&structureLive, "live", false, "Colour methods by their status in the latest trace")
	traceRecentCmd.Flags().IntVar(&recentLimit, "limit", 10, "Number of traces to list")
	traceGetCmd.Flags().BoolVar(&traceSummary, "summary", false, "Print a text summary instead of opening the viewer")
}

type overviewView struct {
	Counts       api.ResourceCounts `json:"counts"`
	ActiveFlows  []activeFlowView   `json:"active_flows"`
	RecentTraces []*trace.Trace     `json:"recent_traces"`
}

type activeFlowView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	StartTime int64  `json:"start_time,omitempty"`
}

func loadOverview(ctx context.Context, client *api.Client) (*overviewView, error) {
	ov, err := client.Overview(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load dashboard: %w", err)
	}
	view := &overviewView{
		Counts:       ov.Counts,
		RecentTraces: trace.NewNormalizer(GetLogger()).DecodeTraces(ov.RecentTraces),
	}
	for _, f := range ov.ActiveFlows {
		af := activeFlowView{ID: f.ID, Name: f.Name, Status: f.Status}
		if ms, err := trace.ParseTimestamp(f.StartTime); err == nil {
			af.StartTime = ms
		}
		view.ActiveFlows = append(view.ActiveFlows, af)
	}
	sort.SliceStable(view.RecentTraces, func(i, j int) bool {
		return view.RecentTraces[i].StartTime > view.RecentTraces[j].StartTime
	})
	return view, nil
}

func writeOverview(ctx context.Context, w io.Writer, client *api.Client, asJSON bool) error {
	view, err := loadOverview(ctx, client)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(view)
	}

	fmt.Fprintln(w)
	color.New(color.Bold).Fprintf(w, "Backend %s\n", client.BaseURL())
	fmt.Fprintln(w, strings.Repeat("─", 60))
	fmt.Fprintf(w, "Crews:  %d\n", view.Counts.Crews)
	fmt.Fprintf(w, "Flows:  %d\n", view.Counts.Flows)
	fmt.Fprintf(w, "Tools:  %d\n", view.Counts.Tools)

	if len(view.ActiveFlows) > 0 {
		fprintHeader(w, "%-28s %-28s %-12s %s", "Active Flow", "Name", "Status", "Started")
		for _, f := range view.ActiveFlows {
			started := "-"
			if f.StartTime > 0 {
				started = trace.FormatTimestamp(f.StartTime)
			}
			fmt.Fprintf(w, "%-28s %-28s %-12s %s\n", f.ID, oneLine(f.Name, 28), f.Status, started)
		}
	}
	if len(view.RecentTraces) > 0 {
		writeTraceTable(w, view.RecentTraces, time.Now())
		return nil
	}
	fmt.Fprintln(w)
	return nil
}

func writeTraceTable(w io.Writer, traces []*trace.Trace, now time.Time) {
	fprintHeader(w, "%-38s %-24s %-12s %-10s %-6s %-8s", "Trace ID", "Name", "Status", "Duration", "Spans", "Tokens")
	for _, t := range traces {
		s := audit.Summarize(t, now)
		fmt.Fprintf(w, "%-38s %-24s %-12s %-10s %-6d %-8d\n",
			t.ID, oneLine(t.Name, 24), statusLabel(t.Status), formatDuration(s.TotalDurationMs), s.TotalSpans, s.TokensUsed)
	}
	fmt.Fprintln(w)
}

// flowGraphDocument renders a flow's method graph as Markdown with embedded Mermaid
func flowGraphDocument(ctx context.Context, client *api.Client, id string, live bool) (string, error) {
	flow, err := client.FlowStructure(ctx, id)
	if err != nil {
		if api.IsNotFound(err) {
			return "", utils.NewUserError(
				fmt.Sprintf("Flow not found: %s", id),
				"Run 'crewview flows' to see available flows",
				err,
			)
		}
		return "", fmt.Errorf("failed to load flow structure: %w", err)
	}

	var statuses map[string]trace.Status
	if live {
		body, err := client.Traces(ctx, protocol.KindFlow, id)
		if err != nil {
			return "", fmt.Errorf("failed to fetch traces for flow %s: %w", id, err)
		}
		statuses = methodStatuses(flow, latestTrace(trace.NewNormalizer(GetLogger()).DecodeTraces(body)))
	}

	name := flow.Name
	if name == "" {
		name = flow.ID
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Flow: %s\n\n", name)
	if flow.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", flow.Description)
	}
	fmt.Fprintf(&b, "**Methods:** %d\n\n", len(flow.Methods))
	b.WriteString(audit.GenerateFlowGraph(flow, statuses))
	b.WriteString("\n")
	return b.String(), nil
}

func latestTrace(traces []*trace.Trace) *trace.Trace {
	var latest *trace.Trace
	for _, t := range traces {
		if latest == nil || t.StartTime > latest.StartTime {
			latest = t
		}
	}
	return latest
}

// methodStatuses matches spans of t to flow methods by id or name; later spans win
func methodStatuses(flow *api.FlowStructure, t *trace.Trace) map[string]trace.Status {
	statuses := make(map[string]trace.Status)
	if t == nil {
		return statuses
	}
	byKey := make(map[string]string, 2*len(flow.Methods))
	for _, m := range flow.Methods {
		byKey[m.ID] = m.ID
		if m.Name != "" {
			byKey[m.Name] = m.ID
		}
	}
	trace.Walk(t.Roots, func(s *trace.Span) {
		if id, ok := byKey[s.ID]; ok {
			statuses[id] = s.Status
		} else if id, ok := byKey[s.Name]; ok {
			statuses[id] = s.Status
		}
	})
	return statuses
}
