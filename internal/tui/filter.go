package tui

import (
	"regexp"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

var oscColorReply = regexp.MustCompile(`[0-9a-fA-F]{1,4}/[0-9a-fA-F]{4}/[0-9a-fA-F]{4}`)

// dropTerminalReplies discards key messages that are really fragments of a
// terminal color-query reply (OSC 11), which some terminals deliver on stdin
// after the query has timed out.
func dropTerminalReplies(_ tea.Model, msg tea.Msg) tea.Msg {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return msg
	}
	s := key.String()
	if oscColorReply.MatchString(s) {
		return nil
	}
	if strings.HasPrefix(s, "]11;") || strings.Contains(s, "rgb:") {
		return nil
	}
	return msg
}
