package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agenticgokit/crewview/internal/audit"
	"github.com/agenticgokit/crewview/internal/trace"
	"github.com/agenticgokit/crewview/internal/tui"
	"github.com/agenticgokit/crewview/internal/utils"
)

var (
	traceFormat  string
	traceOutput  string
	traceJSON    bool
	traceSummary bool
)

// traceCmd represents the trace command
var traceCmd = &cobra.Command{
	Use:   "trace <crew|flow> <id>",
	Short: "Explore execution traces of a crew or flow",
	Long: `Fetch the traces the backend recorded for a crew or flow and explore them.

Examples:
  crewview trace flow poem                    # Launch interactive trace explorer
  crewview trace list flow poem               # List traces
  crewview trace show flow poem [trace-id]    # Open one trace in the viewer
  crewview trace metrics crew research        # LLM and tool call metrics
  crewview trace export flow poem --format otlp
  crewview trace mermaid flow poem -o flow.md
`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		traces, err := fetchTraces(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if len(traces) == 0 {
			fmt.Println("No traces found. Run the crew or flow first.")
			return nil
		}
		return runTUI(tui.NewTraceExplorer(traces))
	},
}

var traceListCmd = &cobra.Command{
	Use:   "list <crew|flow> <id>",
	Short: "List the traces of a crew or flow",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		traces, err := fetchTraces(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if len(traces) == 0 {
			fmt.Println("No traces found. Run the crew or flow first.")
			return nil
		}

		now := time.Now()
		printHeader("%-38s %-24s %-12s %-10s %-6s %-10s %-8s", "Trace ID", "Name", "Status", "Duration", "Spans", "LLM Calls", "Tokens")
		for _, t := range traces {
			s := audit.Summarize(t, now)
			fmt.Printf("%-38s %-24s %-12s %-10s %-6d %-10d %-8d\n",
				t.ID, oneLine(t.Name, 24), statusLabel(t.Status), formatDuration(s.TotalDurationMs),
				s.TotalSpans, s.Metrics.TotalLLMCalls, s.TokensUsed)
		}
		fmt.Println()
		return nil
	},
}

var traceShowCmd = &cobra.Command{
	Use:   "show <crew|flow> <id> [trace-id]",
	Short: "Show one trace in the interactive viewer",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := fetchTrace(cmd.Context(), args)
		if err != nil || t == nil {
			return err
		}
		if traceSummary {
			printSummary(t)
			return nil
		}
		return runTUI(tui.NewTraceViewer(t))
	},
}

var traceMetricsCmd = &cobra.Command{
	Use:   "metrics <crew|flow> <id> [trace-id]",
	Short: "Show LLM call and tool execution metrics of a trace",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := fetchTrace(cmd.Context(), args)
		if err != nil || t == nil {
			return err
		}
		report := audit.Aggregate(t.AllEvents(), audit.WindowOf(t), time.Now())
		if traceJSON {
			return printJSON(report)
		}
		printReport(os.Stdout, t, report)
		return nil
	},
}

var traceExportCmd = &cobra.Command{
	Use:   "export <crew|flow> <id> [trace-id]",
	Short: "Export a trace for external tools",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := fetchTrace(cmd.Context(), args)
		if err != nil || t == nil {
			return err
		}
		data, err := trace.Export(t, traceFormat)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal data: %w", err)
		}

		if traceOutput != "" {
			if err := utils.WriteFile(traceOutput, out); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			fmt.Printf("✅ Exported trace to %s (format: %s)\n", traceOutput, traceFormat)
			return nil
		}
		fmt.Println(string(out))
		return nil
	},
}

var traceMermaidCmd = &cobra.Command{
	Use:   "mermaid <crew|flow> <id> [trace-id]",
	Short: "Generate a Mermaid diagram from a trace",
	Long: `Generate a Mermaid flowchart of the trace's span tree.

Steps of a flow or crew are chained in execution order. Output is Markdown
with embedded Mermaid code.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := fetchTrace(cmd.Context(), args)
		if err != nil || t == nil {
			return err
		}

		summary := audit.Summarize(t, time.Now())
		var content strings.Builder
		fmt.Fprintf(&content, "# Trace: %s\n\n", t.Name)
		fmt.Fprintf(&content, "**Spans:** %d | **Events:** %d | **Duration:** %dms\n\n",
			summary.TotalSpans, summary.TotalEvents, summary.TotalDurationMs)
		content.WriteString("## Execution Flow\n\n")
		content.WriteString(audit.GenerateMermaid(t))
		content.WriteString("\n")

		if traceOutput != "" {
			if err := utils.WriteFile(traceOutput, []byte(content.String())); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			fmt.Printf("✅ Generated Mermaid diagram: %s\n", traceOutput)
			return nil
		}
		fmt.Print(content.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(traceCmd)
	traceCmd.AddCommand(traceListCmd)
	traceCmd.AddCommand(traceShowCmd)
	traceCmd.AddCommand(traceMetricsCmd)
	traceCmd.AddCommand(traceExportCmd)
	traceCmd.AddCommand(traceMermaidCmd)

	traceShowCmd.Flags().BoolVar(&traceSummary, "summary", false, "Print a text summary instead of opening the viewer")
	traceMetricsCmd.Flags().BoolVar(&traceJSON, "json", false, "Print the report as JSON")
	traceExportCmd.Flags().StringVar(&traceFormat, "format", "json", "Export format: "+strings.Join(trace.ExportFormats, ", "))
	traceExportCmd.Flags().StringVarP(&traceOutput, "output", "o", "", "Output file (default: stdout)")
	traceMermaidCmd.Flags().StringVarP(&traceOutput, "output", "o", "", "Output file (default: stdout)")
}

// fetchTraces loads and normalizes every trace of an entity, newest first
func fetchTraces(ctx context.Context, kindArg, id string) ([]*trace.Trace, error) {
	kind, err := parseKind(kindArg)
	if err != nil {
		return nil, err
	}
	client, _, err := newClient()
	if err != nil {
		return nil, err
	}
	body, err := client.Traces(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch traces for %s %s: %w", kind, id, err)
	}

	traces := trace.NewNormalizer(GetLogger()).DecodeTraces(body)
	sort.SliceStable(traces, func(i, j int) bool {
		return traces[i].StartTime > traces[j].StartTime
	})
	return traces, nil
}

// fetchTrace resolves [kind, id, trace-id?] to one trace; the newest when no id is given
func fetchTrace(ctx context.Context, args []string) (*trace.Trace, error) {
	traces, err := fetchTraces(ctx, args[0], args[1])
	if err != nil {
		return nil, err
	}
	if len(traces) == 0 {
		fmt.Println("No traces found. Run the crew or flow first.")
		return nil, nil
	}
	if len(args) < 3 {
		return traces[0], nil
	}
	for _, t := range traces {
		if t.ID == args[2] {
			return t, nil
		}
	}
	return nil, utils.NewUserError(
		fmt.Sprintf("Trace not found: %s", args[2]),
		fmt.Sprintf("Run 'crewview trace list %s %s' to see available traces", args[0], args[1]),
		nil,
	)
}

func runTUI(model tea.Model) error {
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func statusLabel(s trace.Status) string {
	switch s {
	case trace.StatusCompleted:
		return color.GreenString("✅ %s", s)
	case trace.StatusFailed:
		return color.RedString("❌ %s", s)
	case trace.StatusRunning:
		return color.BlueString("⏳ %s", s)
	default:
		return string(s)
	}
}

func formatDuration(ms int64) string {
	return fmt.Sprintf("%.2fs", float64(ms)/1000)
}

func printSummary(t *trace.Trace) {
	s := audit.Summarize(t, time.Now())
	rule := strings.Repeat("─", 60)

	fmt.Println()
	fmt.Printf("Trace Information\n")
	fmt.Println(rule)
	fmt.Printf("Trace ID:            %s\n", t.ID)
	fmt.Printf("Name:                %s\n", t.Name)
	fmt.Printf("Status:              %s\n", statusLabel(t.Status))
	fmt.Printf("Format:              %s\n", t.Format)
	fmt.Printf("Started:             %s\n", trace.FormatTimestamp(t.StartTime))
	if t.EndTime != nil {
		fmt.Printf("Completed:           %s\n", trace.FormatTimestamp(*t.EndTime))
	}
	fmt.Printf("Duration:            %s\n", formatDuration(s.TotalDurationMs))
	fmt.Println()
	fmt.Printf("Execution Stats\n")
	fmt.Println(rule)
	fmt.Printf("Spans:               %d (max depth %d)\n", s.TotalSpans, s.MaxDepth)
	fmt.Printf("Failed Spans:        %d\n", s.FailedSpans)
	fmt.Printf("In Progress:         %d\n", s.InProgressSpans)
	fmt.Printf("Events:              %d\n", s.TotalEvents)
	fmt.Printf("LLM Calls:           %d\n", s.Metrics.TotalLLMCalls)
	fmt.Printf("Tool Executions:     %d\n", s.Metrics.TotalToolExecutions)
	fmt.Printf("Total Tokens:        %d\n", s.TokensUsed)
	fmt.Printf("Estimated Cost:      $%.4f\n", s.EstimatedCost)

	if len(s.Slowest) > 0 {
		fmt.Println()
		fmt.Printf("Slowest Spans\n")
		fmt.Println(rule)
		for _, sp := range s.Slowest {
			fmt.Printf("%-40s %-8s %s\n", oneLine(sp.Name, 40), sp.Kind, formatDuration(sp.DurationMs))
		}
	}
	fmt.Println()
}

func printReport(w io.Writer, t *trace.Trace, r *audit.Report) {
	m := r.Metrics
	fmt.Fprintln(w)
	color.New(color.Bold).Fprintf(w, "Metrics for %s\n", t.ID)
	fmt.Fprintln(w, strings.Repeat("─", 60))
	fmt.Fprintf(w, "LLM Calls:           %d (%d completed, %d failed)\n", m.TotalLLMCalls, m.CompletedLLMCalls, m.FailedLLMCalls)
	fmt.Fprintf(w, "Tool Executions:     %d (%d completed, %d failed)\n", m.TotalToolExecutions, m.CompletedToolExecutions, m.FailedToolExecutions)
	fmt.Fprintf(w, "Total Tokens:        %d\n", m.TotalTokens)
	fmt.Fprintf(w, "Execution Time:      %s\n", formatDuration(m.ExecutionTimeMs))

	if len(r.LLMCalls) > 0 {
		fprintHeader(w, "%-20s %-20s %-20s %-10s %-8s %s", "Agent", "Task", "Model", "Status", "Tokens", "Duration")
		for _, c := range r.LLMCalls {
			fmt.Fprintf(w, "%-20s %-20s %-20s %-10s %-8d %s\n",
				oneLine(c.AgentID, 20), oneLine(c.TaskID, 20), oneLine(c.Model, 20), callStatus(c.Status), c.Tokens, callDuration(c.Duration))
		}
	}
	if len(r.ToolExecutions) > 0 {
		fprintHeader(w, "%-20s %-24s %-10s %s", "Agent", "Tool", "Status", "Duration")
		for _, e := range r.ToolExecutions {
			fmt.Fprintf(w, "%-20s %-24s %-10s %s\n",
				oneLine(e.AgentID, 20), oneLine(e.ToolName, 24), callStatus(e.Status), callDuration(e.Duration))
		}
	}
	fmt.Fprintln(w)
}

func callStatus(s audit.Status) string {
	switch s {
	case audit.StatusCompleted:
		return color.GreenString("%-10s", s)
	case audit.StatusFailed:
		return color.RedString("%-10s", s)
	default:
		return color.BlueString("%-10s", s)
	}
}

func callDuration(d *int64) string {
	if d == nil {
		return "in flight"
	}
	return fmt.Sprintf("%dms", *d)
}
