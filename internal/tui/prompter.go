package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/Dhanuzh/refactorai/internal/config"
)

// TerminalPrompter asks for values on a terminal. With a TTY on both ends
// it draws an InputBox; otherwise it reads one line per prompt, hiding the
// input of password prompts when in is still a terminal.
type TerminalPrompter struct {
	in    io.Reader
	out   io.Writer
	theme Theme
	// Plain forces line mode even on a terminal.
	Plain bool

	mu     sync.Mutex
	reader *bufio.Reader
}

// NewTerminalPrompter creates a prompter over in and out.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{
		in:    in,
		out:   out,
		theme: NewTheme(SupportsColor(out)),
	}
}

var _ config.Prompter = (*TerminalPrompter)(nil)

// Prompt implements config.Prompter.
func (p *TerminalPrompter) Prompt(ctx context.Context, opts config.PromptOptions) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if !p.Plain && IsTerminal(p.in) && IsTerminal(p.out) {
		return p.promptBox(ctx, opts)
	}
	return p.promptLine(ctx, opts)
}

func (p *TerminalPrompter) promptBox(ctx context.Context, opts config.PromptOptions) (string, bool, error) {
	box := NewInputBox(opts.Message, opts.Password, p.theme)
	prog := tea.NewProgram(box,
		tea.WithInput(p.in),
		tea.WithOutput(p.out),
		tea.WithContext(ctx),
		tea.WithFilter(dropTerminalReplies),
	)

	final, err := prog.Run()
	if ctx.Err() != nil {
		return "", false, ctx.Err()
	}
	if err != nil {
		return "", false, fmt.Errorf("input box: %w", err)
	}
	m, ok := final.(*InputBox)
	if !ok {
		return "", false, errors.New("input box: unexpected model")
	}
	value, ok := m.Result()
	return value, ok, nil
}

type lineResult struct {
	line string
	ok   bool
	err  error
}

func (p *TerminalPrompter) promptLine(ctx context.Context, opts config.PromptOptions) (string, bool, error) {
	if _, err := fmt.Fprintf(p.out, "%s ", p.theme.Title.Render(opts.Message)); err != nil {
		return "", false, err
	}

	done := make(chan lineResult, 1)
	go func() {
		if opts.Password && IsTerminal(p.in) {
			done <- p.readPassword()
			return
		}
		done <- p.readLine()
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", false, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return "", false, res.err
		}
		if !res.ok {
			fmt.Fprintln(p.out)
		}
		return strings.TrimSpace(res.line), res.ok, nil
	}
}

// readLine returns ok=false on end of input without a line.
func (p *TerminalPrompter) readLine() lineResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reader == nil {
		p.reader = bufio.NewReader(p.in)
	}
	line, err := p.reader.ReadString('\n')
	if errors.Is(err, io.EOF) {
		return lineResult{line: line, ok: line != ""}
	}
	if err != nil {
		return lineResult{err: err}
	}
	return lineResult{line: strings.TrimRight(line, "\r\n"), ok: true}
}

func (p *TerminalPrompter) readPassword() lineResult {
	fd := int(p.in.(fder).Fd())
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return lineResult{err: fmt.Errorf("read password: %w", err)}
	}
	return lineResult{line: string(data), ok: true}
}
