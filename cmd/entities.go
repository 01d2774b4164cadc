package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agenticgokit/crewview/internal/protocol"
)

var (
	runInputs []string
	runWatch  bool
)

var crewsCmd = &cobra.Command{
	Use:   "crews",
	Short: "List the crews the backend can run",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		crews, err := client.ListCrews(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list crews: %w", err)
		}
		if len(crews) == 0 {
			fmt.Println("No crews found.")
			return nil
		}

		printHeader("%-28s %-28s %s", "ID", "Name", "Description")
		for _, c := range crews {
			fmt.Printf("%-28s %-28s %s\n", c.ID, c.Name, oneLine(c.Description, 60))
		}
		fmt.Println()
		return nil
	},
}

var flowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "List the flows the backend can run",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		flows, err := client.ListFlows(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list flows: %w", err)
		}
		if len(flows) == 0 {
			fmt.Println("No flows found.")
			return nil
		}

		printHeader("%-28s %-28s %s", "ID", "Name", "Description")
		for _, f := range flows {
			fmt.Printf("%-28s %-28s %s\n", f.ID, f.Name, oneLine(f.Description, 60))
		}
		fmt.Println()
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run <crew|flow> <id>",
	Short: "Start a crew or flow run",
	Long: `Start a crew kickoff or a flow execution on the backend.

Flows list their required inputs on initialization; pass them with --input.

Examples:
  crewview run crew research --input topic=llms
  crewview run flow poem --input sentence_count=3 --watch`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		inputs, err := parseInputs(runInputs)
		if err != nil {
			return err
		}
		client, _, err := newClient()
		if err != nil {
			return err
		}

		id := args[1]
		if kind == protocol.KindFlow {
			prep, err := client.InitializeFlow(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to initialize flow: %w", err)
			}
			var missing []string
			for _, in := range prep.RequiredInputs {
				if _, ok := inputs[in.Name]; !ok {
					missing = append(missing, in.Name)
				}
			}
			if len(missing) > 0 {
				return fmt.Errorf("missing required inputs: %s", strings.Join(missing, ", "))
			}
		} else if _, err := client.InitializeCrew(cmd.Context(), id); err != nil {
			return fmt.Errorf("failed to initialize crew: %w", err)
		}

		res, err := client.Kickoff(cmd.Context(), kind, id, inputs)
		if err != nil {
			return fmt.Errorf("failed to start %s: %w", kind, err)
		}
		color.Green("✅ Started %s %s", kind, id)
		if res.TraceID != "" {
			fmt.Printf("Trace: %s\n", res.TraceID)
		}
		if res.Message != "" {
			fmt.Println(res.Message)
		}

		if runWatch {
			return watchEntity(cmd, kind, id)
		}
		return nil
	},
}

var toolCmd = &cobra.Command{
	Use:   "tool",
	Short: "List and execute backend tools",
}

var toolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tools the backend exposes",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		tools, err := client.ListTools(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list tools: %w", err)
		}
		if len(tools) == 0 {
			fmt.Println("No tools found.")
			return nil
		}

		printHeader("%-30s %s", "Name", "Description")
		for _, t := range tools {
			fmt.Printf("%-30s %s\n", t.Name, oneLine(t.Description, 70))
			if verbose && len(t.Parameters) > 0 {
				names := make([]string, 0, len(t.Parameters))
				for name := range t.Parameters {
					names = append(names, name)
				}
				sort.Strings(names)
				fmt.Printf("%-30s %s\n", "", color.New(color.Faint).Sprint("params: "+strings.Join(names, ", ")))
			}
		}
		fmt.Println()
		return nil
	},
}

var toolInputs []string

var toolExecCmd = &cobra.Command{
	Use:   "exec <name>",
	Short: "Execute a tool with key=value inputs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs, err := parseInputs(toolInputs)
		if err != nil {
			return err
		}
		client, _, err := newClient()
		if err != nil {
			return err
		}
		result, err := client.ExecuteTool(cmd.Context(), args[0], inputs)
		if err != nil {
			return fmt.Errorf("tool %s failed: %w", args[0], err)
		}
		if s, ok := result.(string); ok {
			fmt.Println(s)
			return nil
		}
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(crewsCmd)
	rootCmd.AddCommand(flowsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(toolCmd)
	toolCmd.AddCommand(toolListCmd)
	toolCmd.AddCommand(toolExecCmd)

	runCmd.Flags().StringArrayVarP(&runInputs, "input", "i", nil, "Input as key=value (repeatable)")
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "Open the live dashboard after starting")
	toolExecCmd.Flags().StringArrayVarP(&toolInputs, "input", "i", nil, "Input as key=value (repeatable)")
}

func printHeader(format string, cols ...any) {
	fprintHeader(os.Stdout, format, cols...)
}

func fprintHeader(w io.Writer, format string, cols ...any) {
	line := fmt.Sprintf(format, cols...)
	fmt.Fprintln(w)
	color.New(color.Bold).Fprintln(w, line)
	fmt.Fprintln(w, strings.Repeat("-", len(line)))
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}
