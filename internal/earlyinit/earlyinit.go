// Package earlyinit is imported by cmd/refactorai ahead of bubbletea. Its
// init fixes lipgloss's background detection so bubbletea's own init skips
// the OSC 11 color query, whose late reply would otherwise be read as typed
// text in the credential input box.
package earlyinit

import "github.com/charmbracelet/lipgloss"

func init() {
	lipgloss.SetHasDarkBackground(true)
}
