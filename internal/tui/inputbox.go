package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// InputBox is a one-line text prompt. Enter submits, Esc or Ctrl+C cancels.
type InputBox struct {
	theme   Theme
	message string
	input   textinput.Model

	submitted bool
	cancelled bool
}

// NewInputBox creates a focused input box. password masks the typed value.
func NewInputBox(message string, password bool, theme Theme) *InputBox {
	ti := textinput.New()
	ti.Prompt = "› "
	ti.CharLimit = 512
	ti.Width = 60
	if password {
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '•'
	}
	if theme.Color() {
		ti.PromptStyle = theme.Title
		ti.Cursor.Style = theme.Title
	}
	ti.Focus()

	return &InputBox{theme: theme, message: message, input: ti}
}

func (m *InputBox) Init() tea.Cmd {
	return textinput.Blink
}

func (m *InputBox) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.submitted = true
			return m, tea.Quit
		case tea.KeyEsc, tea.KeyCtrlC:
			m.cancelled = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *InputBox) View() string {
	if m.submitted || m.cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.theme.Message.Render(m.message))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.theme.Help.Render("enter to confirm • esc to cancel"))
	b.WriteString("\n")
	return b.String()
}

// Result returns the typed value. ok is false unless the box was submitted.
func (m *InputBox) Result() (value string, ok bool) {
	if !m.submitted {
		return "", false
	}
	return strings.TrimSpace(m.input.Value()), true
}
