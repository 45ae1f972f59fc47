// Package tui holds the terminal pieces of the CLI host: the input box used
// for credential prompts and the error notifier.
package tui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Theme is the small palette the prompts and notices are drawn with.
type Theme struct {
	color bool

	Title   lipgloss.Style
	Message lipgloss.Style
	Help    lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Border  lipgloss.Style
	Accent  lipgloss.Color
}

// NewTheme returns a colored theme, or a plain one when color is false.
func NewTheme(color bool) Theme {
	if !color {
		return Theme{
			Title:   lipgloss.NewStyle().Bold(true),
			Message: lipgloss.NewStyle(),
			Help:    lipgloss.NewStyle().Faint(true),
			Error:   lipgloss.NewStyle().Bold(true),
			Success: lipgloss.NewStyle().Bold(true),
			Border:  lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1),
		}
	}

	accent := lipgloss.Color("#CBA6F7")
	errColor := lipgloss.Color("#F38BA8")
	okColor := lipgloss.Color("#A6E3A1")
	muted := lipgloss.Color("#6C7086")

	return Theme{
		color:   true,
		Title:   lipgloss.NewStyle().Foreground(accent).Bold(true),
		Message: lipgloss.NewStyle().Foreground(lipgloss.Color("#CDD6F4")),
		Help:    lipgloss.NewStyle().Foreground(muted),
		Error:   lipgloss.NewStyle().Foreground(errColor).Bold(true),
		Success: lipgloss.NewStyle().Foreground(okColor).Bold(true),
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(errColor).
			Padding(0, 1),
		Accent: accent,
	}
}

// Color reports whether the theme emits color.
func (t Theme) Color() bool { return t.color }

type fder interface {
	Fd() uintptr
}

// IsTerminal reports whether v is a file attached to a terminal.
func IsTerminal(v any) bool {
	f, ok := v.(fder)
	return ok && term.IsTerminal(int(f.Fd()))
}

// SupportsColor reports whether w is a terminal and NO_COLOR is unset.
func SupportsColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return IsTerminal(w)
}
