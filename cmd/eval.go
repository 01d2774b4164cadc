package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agenticgokit/crewview/internal/api"
	"github.com/agenticgokit/crewview/internal/eval"
	"github.com/agenticgokit/crewview/internal/utils"
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run and inspect crew evaluations",
	Long: `Run evaluations defined in YAML files against your crews and read their results.

Examples:
  # Start an evaluation and wait for the report
  crewview eval run suite.yaml

  # Validate a suite without running it
  crewview eval run suite.yaml --validate-only

  # List runs, then show one as Markdown
  crewview eval list
  crewview eval results <id> --format markdown`,
}

var (
	evalTimeout      int
	evalValidateOnly bool
	evalNoWait       bool
	evalOutputFormat string
	evalReportFile   string
	evalThreshold    float64
)

var evalRunCmd = &cobra.Command{
	Use:   "run <suite-file>",
	Short: "Start an evaluation from a YAML suite",
	Args:  cobra.ExactArgs(1),
	RunE:  runEval,
}

var evalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List evaluation runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		list, err := client.ListEvaluations(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list evaluations: %w", err)
		}
		if len(list.Runs) == 0 {
			fmt.Println("No evaluations yet.")
			return nil
		}

		printHeader("%-38s %-24s %-10s %-9s %-7s %s", "ID", "Name", "Status", "Progress", "Score", "Started")
		for _, r := range list.Runs {
			fmt.Printf("%-38s %-24s %-10s %-9s %-7s %s\n",
				r.ID, oneLine(r.Name, 24), r.Status, fmt.Sprintf("%.0f%%", r.Progress), scoreText(r.OverallScore), r.StartTime)
		}
		fmt.Printf("\n%d total · %d active · %d completed · %d failed\n\n",
			list.Summary.Total, list.Summary.Active, list.Summary.Completed, list.Summary.Failed)
		return nil
	},
}

var evalMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "List available metrics and aggregation strategies",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		opts, err := client.EvaluationMetrics(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to load metrics: %w", err)
		}

		printHeader("%-28s %s", "Metric", "Description")
		for _, m := range opts.Metrics {
			fmt.Printf("%-28s %s\n", m.ID, oneLine(m.Description, 70))
		}
		printHeader("%-28s %s", "Aggregation", "Description")
		for _, a := range opts.AggregationStrategies {
			fmt.Printf("%-28s %s\n", a.ID, oneLine(a.Description, 70))
		}
		fmt.Println()
		return nil
	},
}

var evalShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an evaluation run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		detail, err := client.GetEvaluation(cmd.Context(), args[0])
		if err != nil {
			return evalNotFound(args[0], err)
		}
		res := &api.EvaluationResults{Results: detail.Results}
		if detail.Results == nil {
			res.Message = fmt.Sprintf("Evaluation is %s", detail.Run.Status)
		}
		report, err := eval.BuildReport(detail.Run, res)
		if err != nil {
			return err
		}
		return eval.NewReporter(evalOutputFormat).Generate(report, os.Stdout)
	},
}

var evalResultsCmd = &cobra.Command{
	Use:   "results <id>",
	Short: "Show the results of an evaluation run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		detail, err := client.GetEvaluation(cmd.Context(), args[0])
		if err != nil {
			return evalNotFound(args[0], err)
		}
		res, err := client.GetEvaluationResults(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to load results: %w", err)
		}
		report, err := eval.BuildReport(detail.Run, res)
		if err != nil {
			return err
		}
		return eval.NewReporter(evalOutputFormat).Generate(report, os.Stdout)
	},
}

var evalDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an evaluation run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		if err := client.DeleteEvaluation(cmd.Context(), args[0]); err != nil {
			return evalNotFound(args[0], err)
		}
		color.Green("✅ Deleted evaluation %s", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.AddCommand(evalRunCmd)
	evalCmd.AddCommand(evalListCmd)
	evalCmd.AddCommand(evalMetricsCmd)
	evalCmd.AddCommand(evalShowCmd)
	evalCmd.AddCommand(evalResultsCmd)
	evalCmd.AddCommand(evalDeleteCmd)

	evalCmd.PersistentFlags().StringVarP(&evalOutputFormat, "format", "f", "console", "Output format (console, json, markdown)")

	evalRunCmd.Flags().IntVar(&evalTimeout, "timeout", 1800, "Seconds to wait for the run to finish")
	evalRunCmd.Flags().BoolVar(&evalValidateOnly, "validate-only", false, "Only validate the suite file, don't run it")
	evalRunCmd.Flags().BoolVar(&evalNoWait, "no-wait", false, "Start the run and print its id without waiting")
	evalRunCmd.Flags().StringVarP(&evalReportFile, "report", "r", "", "Save a Markdown report to file (auto-generated if not specified)")
	evalRunCmd.Flags().Float64Var(&evalThreshold, "threshold", 0, "Exit non-zero when any agent scores below this value")
}

func runEval(cmd *cobra.Command, args []string) error {
	suiteFile := args[0]
	if !utils.FileExists(suiteFile) {
		return fmt.Errorf("suite file not found: %s", suiteFile)
	}
	absPath, err := filepath.Abs(suiteFile)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	if verbose {
		fmt.Printf("📋 Loading suite: %s\n", absPath)
	}
	suite, err := eval.ParseConfigFile(absPath)
	if err != nil {
		return fmt.Errorf("failed to parse suite file: %w", err)
	}
	if verbose {
		fmt.Printf("✓ Suite %s: %d crew(s), %d metric(s)\n", suite.Name, len(suite.Crews), len(suite.Metrics))
	}
	if evalValidateOnly {
		fmt.Println("✓ Suite file is valid")
		return nil
	}

	client, cfg, err := newClient()
	if err != nil {
		return err
	}

	if evalNoWait {
		id, err := client.CreateEvaluation(cmd.Context(), suite.Request())
		if err != nil {
			return fmt.Errorf("failed to start evaluation: %w", err)
		}
		fmt.Printf("✅ Started evaluation %s\n", id)
		return nil
	}

	runner := eval.NewRunner(client, eval.RunnerConfig{
		PollInterval: cfg.PollInterval,
		Timeout:      time.Duration(evalTimeout) * time.Second,
		OnProgress: func(run api.EvaluationRun) {
			if verbose {
				fmt.Printf("⏳ %s: %s (%.0f%%)\n", run.Name, run.Status, run.Progress)
			}
		},
	}, GetLogger())

	if verbose {
		fmt.Println("\n🚀 Running evaluation...")
	}
	report, err := runner.Run(cmd.Context(), suite)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	if err := eval.NewReporter(evalOutputFormat).Generate(report, os.Stdout); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	saveMarkdownReport(report)

	if evalThreshold > 0 && !report.Passed(evalThreshold) {
		return fmt.Errorf("at least one agent scored below threshold %.1f", evalThreshold)
	}
	return nil
}

func saveMarkdownReport(report *eval.Report) {
	reportPath := evalReportFile
	if reportPath == "" {
		reportDir := ".crewview/reports"
		if err := utils.EnsureDir(reportDir); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to create report directory: %v\n", err)
			return
		}
		reportPath = filepath.Join(reportDir, fmt.Sprintf("eval-report-%s.md", time.Now().Format("20060102-150405")))
	}

	f, err := os.Create(reportPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create report file: %v\n", err)
		return
	}
	defer f.Close()

	if err := eval.NewReporter("markdown").Generate(report, f); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write markdown report: %v\n", err)
		return
	}
	fmt.Printf("\n📄 Detailed report saved to: %s\n", reportPath)
}

func evalNotFound(id string, err error) error {
	if api.IsNotFound(err) {
		return utils.NewUserError(
			fmt.Sprintf("Evaluation not found: %s", id),
			"Run 'crewview eval list' to see available evaluations",
			err,
		)
	}
	return err
}

func scoreText(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *score)
}
