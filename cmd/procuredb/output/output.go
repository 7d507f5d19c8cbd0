// Package output prints styled command results.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
)

// Out receives everything the package prints.
var Out io.Writer = os.Stdout

var (
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorInfo    = lipgloss.Color("#3B82F6")
	colorMuted   = lipgloss.Color("#6B7280")
	colorPrimary = lipgloss.Color("#0E7490")

	successStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(colorInfo)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	primaryStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
)

func line(prefix string, format string, args ...any) {
	_, _ = fmt.Fprintf(Out, "%s"+format+"\n", append([]any{prefix}, args...)...)
}

func Success(format string, args ...any) { line(successStyle.Render("✓ "), format, args...) }
func Warning(format string, args ...any) { line(warningStyle.Render("⚠ "), format, args...) }
func Error(format string, args ...any)   { line(errorStyle.Render("✗ "), format, args...) }
func Info(format string, args ...any)    { line(infoStyle.Render("ℹ "), format, args...) }

func Muted(format string, args ...any) {
	_, _ = fmt.Fprintln(Out, mutedStyle.Render(fmt.Sprintf(format, args...)))
}

// Section prints an underlined header surrounded by blank lines.
func Section(title string) {
	_, _ = fmt.Fprintf(Out, "\n%s\n%s\n\n",
		primaryStyle.Render(title),
		mutedStyle.Render(strings.Repeat("═", lipgloss.Width(title))))
}

// StatusIcon returns a colored icon for a migration status.
func StatusIcon(status string) string {
	switch status {
	case "applied":
		return successStyle.Render("✓")
	case "pending":
		return warningStyle.Render("○")
	case "failed":
		return errorStyle.Render("✗")
	default:
		return mutedStyle.Render("•")
	}
}

// JSON prints v indented.
func JSON(v any) error {
	enc := json.NewEncoder(Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table prints tab separated rows under a header and a dashed rule.
func Table(header []string, rows [][]string) {
	w := tabwriter.NewWriter(Out, 0, 0, 2, ' ', 0)
	rule := make([]string, len(header))
	for i, h := range header {
		rule[i] = strings.Repeat("-", len(h))
	}
	_, _ = fmt.Fprintln(w, strings.Join(header, "\t"))
	_, _ = fmt.Fprintln(w, strings.Join(rule, "\t"))
	for _, r := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(r, "\t"))
	}
	_ = w.Flush()
}
