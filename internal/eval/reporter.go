package eval

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/fatih/color"
)

// Reporter generates evaluation reports in various formats
type Reporter struct {
	format string
}

// NewReporter creates a new reporter
func NewReporter(format string) *Reporter {
	return &Reporter{format: format}
}

// Generate creates a report and writes it to the writer
func (r *Reporter) Generate(report *Report, w io.Writer) error {
	switch r.format {
	case "console", "":
		return r.generateConsole(report, w)
	case "json":
		return r.generateJSON(report, w)
	case "markdown":
		return r.generateMarkdown(report, w)
	default:
		return fmt.Errorf("unsupported format: %s", r.format)
	}
}

// scoreColor buckets a 0-10 score the way the backend UI does
func scoreColor(score *float64) string {
	switch {
	case score == nil:
		return ""
	case *score >= 8:
		return "green"
	case *score >= 5:
		return "yellow"
	default:
		return "red"
	}
}

func formatScore(score *float64) string {
	if score == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", *score)
}

func colorize(score *float64) string {
	s := formatScore(score)
	switch scoreColor(score) {
	case "green":
		return color.GreenString(s)
	case "yellow":
		return color.YellowString(s)
	case "red":
		return color.RedString(s)
	}
	return s
}

func sortedMetrics(m map[string]MetricScore) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// generateConsole creates a human-readable console report
func (r *Reporter) generateConsole(report *Report, w io.Writer) error {
	rule := strings.Repeat("═", 63)
	thin := strings.Repeat("─", 63)
	header := color.New(color.FgCyan, color.Bold)

	fmt.Fprintf(w, "\n%s\n", rule)
	header.Fprintf(w, "  EVALUATION: %s\n", report.Run.Name)
	fmt.Fprintf(w, "%s\n\n", rule)

	fmt.Fprintf(w, "ID:             %s\n", report.Run.ID)
	fmt.Fprintf(w, "Status:         %s\n", report.Run.Status)
	fmt.Fprintf(w, "Progress:       %.0f%%\n", report.Run.Progress)
	fmt.Fprintf(w, "Iterations:     %d\n", report.Run.Iterations)
	fmt.Fprintf(w, "Overall Score:  %s\n\n", colorize(report.Run.OverallScore))

	if report.Pending != "" {
		color.New(color.FgYellow).Fprintf(w, "  %s\n\n", report.Pending)
		return nil
	}

	for _, a := range report.Agents {
		fmt.Fprintf(w, "%s\n", thin)
		fmt.Fprintf(w, "  %s  %s\n", color.New(color.Bold).Sprint(a.AgentRole), colorize(a.OverallScore))
		fmt.Fprintf(w, "%s\n", thin)
		for _, name := range sortedMetrics(a.Metrics) {
			fmt.Fprintf(w, "  %-28s %s\n", name, colorize(a.Metrics[name].Score))
		}
		if len(a.Feedback) > 0 {
			fmt.Fprintf(w, "\n  Feedback:\n")
			for _, f := range a.Feedback {
				fmt.Fprintf(w, "    • %s\n", f)
			}
		}
		fmt.Fprintln(w)
	}
	return nil
}

// generateJSON creates a JSON report
func (r *Reporter) generateJSON(report *Report, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

const markdownTemplate = `# Evaluation Report: {{ .Run.Name }}

| Field | Value |
|-------|-------|
| ID | ` + "`{{ .Run.ID }}`" + ` |
| Status | {{ .Run.Status | upper }} |
| Started | {{ .Run.StartTime | default "n/a" }} |
| Finished | {{ .Run.EndTime | default "n/a" }} |
| Iterations | {{ .Run.Iterations }} |
| Overall Score | {{ score .Run.OverallScore }} |
{{ if .Pending }}
> {{ .Pending }}
{{ end }}{{ range $a := .Agents }}
## {{ $a.AgentRole }} ({{ score $a.OverallScore }})

{{ if $a.Metrics }}| Metric | Score |
|--------|-------|
{{ range $name := metrics $a.Metrics }}| {{ $name | replace "_" " " | title }} | {{ score (index $a.Metrics $name).Score }} |
{{ end }}{{ end }}{{ if $a.Feedback }}
**Feedback:**

{{ range $a.Feedback }}- {{ . | trim }}
{{ end }}{{ end }}{{ end }}`

// generateMarkdown creates a Markdown report
func (r *Reporter) generateMarkdown(report *Report, w io.Writer) error {
	funcs := sprig.TxtFuncMap()
	funcs["score"] = formatScore
	funcs["metrics"] = sortedMetrics

	tmpl, err := template.New("evaluation").Funcs(funcs).Parse(markdownTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse report template: %w", err)
	}
	return tmpl.Execute(w, report)
}
