// Package tui provides Bubble Tea views for the seam CLI.
//
// TUI is opt-in (--tui) and read-only. Views render the same payloads as
// the json, yaml and table formats.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

// Styles for TUI components.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(14)

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	SuccessStyle = lipgloss.NewStyle().Foreground(successColor)
	WarningStyle = lipgloss.NewStyle().Foreground(warningColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	MutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)

	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	StatBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlightColor).
			Padding(0, 2).
			Width(20).
			Align(lipgloss.Center)

	StatLabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Align(lipgloss.Center)

	StatValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Align(lipgloss.Center)
)

// StatusStyle returns the style for a merge status string.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "complete":
		return SuccessStyle
	case "in_progress":
		return WarningStyle
	case "stale":
		return ErrorStyle
	case "empty", "unknown":
		return MutedStyle
	default:
		return ValueStyle
	}
}
