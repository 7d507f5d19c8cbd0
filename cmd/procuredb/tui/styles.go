package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorPrimary = lipgloss.Color("#0E7490")
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorDanger  = lipgloss.Color("#EF4444")
	colorInfo    = lipgloss.Color("#3B82F6")
	colorMuted   = lipgloss.Color("#6B7280")
	colorText    = lipgloss.Color("#F3F4F6")
	colorBorder  = lipgloss.Color("#4B5563")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	dangerStyle  = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(colorInfo)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)

	selectedItemStyle = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true).
				PaddingLeft(2)

	unselectedItemStyle = lipgloss.NewStyle().
				Foreground(colorText).
				PaddingLeft(4)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(1, 2)

	activeButtonStyle = lipgloss.NewStyle().
				Foreground(colorText).
				Background(colorPrimary).
				Padding(0, 3).
				Bold(true)

	inactiveButtonStyle = lipgloss.NewStyle().
				Foreground(colorMuted).
				Background(lipgloss.Color("#1F2937")).
				Padding(0, 3)

	helpStyle    = lipgloss.NewStyle().Foreground(colorMuted).MarginTop(1)
	helpKeyStyle = lipgloss.NewStyle().Foreground(colorPrimary)

	progressBarStyle   = lipgloss.NewStyle().Foreground(colorPrimary)
	progressEmptyStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

// FormatStatus returns a styled migration status.
func FormatStatus(status string) string {
	switch status {
	case "applied":
		return successStyle.Render("✓ " + status)
	case "pending":
		return warningStyle.Render("○ " + status)
	case "failed":
		return dangerStyle.Render("✗ " + status)
	case "running":
		return infoStyle.Render("◉ " + status)
	default:
		return mutedStyle.Render(status)
	}
}

// FormatProgressBar renders current/total as a bar of the given width.
func FormatProgressBar(current, total, width int) string {
	filled := 0
	if total > 0 {
		filled = min(width, width*current/total)
	}
	bar := progressBarStyle.Render(strings.Repeat("━", filled)) +
		progressEmptyStyle.Render(strings.Repeat("━", width-filled))
	return bar + " " + infoStyle.Render(fmt.Sprintf("%d/%d", current, total))
}

// FormatKey formats a help key.
func FormatKey(key, description string) string {
	return helpKeyStyle.Render(key) + " " + mutedStyle.Render(description)
}
