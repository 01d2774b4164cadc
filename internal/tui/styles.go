// Package tui provides the interactive terminal views for crewview.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/agenticgokit/crewview/internal/trace"
)

var (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#06B6D4")
	successColor   = lipgloss.Color("#10B981")
	errorColor     = lipgloss.Color("#EF4444")
	warningColor   = lipgloss.Color("#F59E0B")
	mutedColor     = lipgloss.Color("#6B7280")
	accentColor    = lipgloss.Color("#F472B6")
	runningColor   = lipgloss.Color("#3B82F6")
)

// Box styles
var (
	// BoxStyle is the main container style
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	// PaneStyle frames one panel of a split view
	PaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	// HeaderStyle for headers
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	// TitleStyle for main titles
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primaryColor).
			Padding(0, 2)

	// SectionHeaderStyle for detail view sections
	SectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(secondaryColor).
				Padding(0, 1)
)

// Text styles
var (
	SelectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(secondaryColor)

	CursorStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	RunningStyle = lipgloss.NewStyle().
			Foreground(runningColor)

	DurationStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	AttributeKeyStyle = lipgloss.NewStyle().
				Foreground(secondaryColor)
)

// Help bar style
var (
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)

	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)
)

// kindColors tints tree rows by the span kind derived from name and attributes
var kindColors = map[string]lipgloss.Color{
	"flow":   primaryColor,
	"crew":   primaryColor,
	"method": lipgloss.Color("#8B5CF6"),
	"agent":  runningColor,
	"task":   accentColor,
	"llm":    successColor,
	"tool":   warningColor,
}

// KindStyle returns the row style for a span kind; unknown kinds are unstyled
func KindStyle(kind string) lipgloss.Style {
	c, ok := kindColors[kind]
	if !ok {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(c)
}

// StatusStyle returns the style for a lifecycle status
func StatusStyle(s trace.Status) lipgloss.Style {
	switch s {
	case trace.StatusCompleted:
		return SuccessStyle
	case trace.StatusFailed:
		return ErrorStyle
	case trace.StatusRunning:
		return RunningStyle
	case trace.StatusInitializing, trace.StatusWaiting:
		return WarningStyle
	default:
		return MutedStyle
	}
}

// StatusIcon returns a one-character marker for a status
func StatusIcon(s trace.Status) string {
	switch s {
	case trace.StatusCompleted:
		return "✓"
	case trace.StatusFailed:
		return "✗"
	case trace.StatusRunning:
		return "●"
	case trace.StatusInitializing, trace.StatusWaiting:
		return "◌"
	default:
		return "○"
	}
}
