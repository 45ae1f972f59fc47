package tui

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Dhanuzh/refactorai/internal/config"
)

// Notifier prints user-facing notices to a terminal.
type Notifier struct {
	mu    sync.Mutex
	out   io.Writer
	theme Theme
	title string
}

// NewNotifier writes to out, in color when out is a terminal.
func NewNotifier(out io.Writer) *Notifier {
	return &Notifier{out: out, theme: NewTheme(SupportsColor(out)), title: "Refactor with AI"}
}

var _ config.Notifier = (*Notifier)(nil)

// ShowError draws message in a bordered error box.
func (n *Notifier) ShowError(_ context.Context, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	header := n.theme.Error.Render("✗ " + n.title)
	body := n.theme.Message.Render(message)
	fmt.Fprintln(n.out, n.theme.Border.Render(header+"\n"+body))
}

// ShowInfo prints a one-line success notice.
func (n *Notifier) ShowInfo(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.out, n.theme.Success.Render("✓ ")+n.theme.Message.Render(message))
}
