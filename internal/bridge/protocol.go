// Package bridge lets an editor plugin drive the engine over a message
// connection. The plugin sends the document and selection; the engine
// answers with the edits to apply, credential prompts and a final outcome.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/Dhanuzh/refactorai/internal/command"
	"github.com/Dhanuzh/refactorai/internal/config"
	"github.com/Dhanuzh/refactorai/internal/editor"
	"github.com/Dhanuzh/refactorai/internal/provider"
)

// Message types sent by the editor.
const (
	TypeExecute        = "execute"
	TypeCancel         = "cancel"
	TypePromptResponse = "promptResponse"
	TypePing           = "ping"
)

// Message types sent by the engine.
const (
	TypeEdit   = "edit"
	TypePrompt = "prompt"
	TypeNotify = "notify"
	TypeError  = "error"
	TypeDone   = "done"
	TypePong   = "pong"
)

// Edit kinds.
const (
	EditInsert  = "insert"
	EditReplace = "replace"
)

// Error kinds carried in error messages.
const (
	KindConfigurationMissing = "configurationMissing"
	KindTransport            = "transport"
	KindEditRejected         = "editRejected"
	KindBusy                 = "busy"
	KindCancelled            = "cancelled"
	KindNoActiveEditor       = "noActiveEditor"
	KindInvalidRequest       = "invalidRequest"
	KindUnknownCommand       = "unknownCommand"
	KindProtocol             = "protocol"
	KindInternal             = "internal"
)

// Message is one protocol frame. Fields are used according to Type.
//
// Positions on the wire count UTF-16 code units within a line, the way
// editors built on the Language Server Protocol do.
type Message struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// execute
	Command   string        `json:"command,omitempty"`
	Document  *Snapshot     `json:"document,omitempty"`
	Selection *editor.Range `json:"selection,omitempty"`

	// prompt / promptResponse
	PromptID  string `json:"promptId,omitempty"`
	Value     string `json:"value,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
	Password  bool   `json:"password,omitempty"`

	// prompt / notify
	Message string `json:"message,omitempty"`
	Level   string `json:"level,omitempty"`

	Edit    *Edit        `json:"edit,omitempty"`
	Error   *ErrorInfo   `json:"error,omitempty"`
	Outcome *OutcomeInfo `json:"outcome,omitempty"`
}

// Snapshot is the document text as the editor sees it.
type Snapshot struct {
	URI  string `json:"uri"`
	Text string `json:"text"`
}

// Edit is one mutation the editor must apply, in order.
type Edit struct {
	Kind  string       `json:"kind"`
	Range editor.Range `json:"range"`
	Text  string       `json:"text"`
}

// ErrorInfo describes a failed execution.
type ErrorInfo struct {
	Kind         string `json:"kind"`
	Message      string `json:"message"`
	Presentation string `json:"presentation"`
}

// OutcomeInfo summarizes a finished execution.
type OutcomeInfo struct {
	OpID      string `json:"opId"`
	Command   string `json:"command"`
	Applied   bool   `json:"applied"`
	Streamed  bool   `json:"streamed"`
	Text      string `json:"text,omitempty"`
	Deltas    int    `json:"deltas,omitempty"`
	Malformed int    `json:"malformed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// fromWire converts a selection from UTF-16 code units on text to the
// code points the engine counts.
func fromWire(text string, r editor.Range) editor.Range {
	return editor.NewRange(editor.FromUTF16(text, r.Start), editor.FromUTF16(text, r.End))
}

func outcomeInfo(out command.Outcome) *OutcomeInfo {
	info := &OutcomeInfo{
		OpID:      out.OpID,
		Command:   out.Command,
		Applied:   out.Applied,
		Streamed:  out.Streamed,
		Text:      out.Text,
		Deltas:    out.Summary.Deltas,
		Malformed: out.Summary.Malformed,
	}
	if out.Err != nil {
		info.Error = out.Err.Error()
	}
	return info
}

// ErrorKind maps an execution error to its protocol kind.
func ErrorKind(err error) string {
	var te *provider.TransportError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, config.ErrConfigurationMissing):
		return KindConfigurationMissing
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.As(err, &te):
		return KindTransport
	case errors.Is(err, editor.ErrInsertionPointBusy):
		return KindBusy
	case errors.Is(err, editor.ErrEditRejected):
		return KindEditRejected
	case errors.Is(err, command.ErrNoActiveEditor):
		return KindNoActiveEditor
	case errors.Is(err, provider.ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, command.ErrUnknownCommand):
		return KindUnknownCommand
	default:
		return KindInternal
	}
}

// ProtocolError is returned by Conn.Read for a frame that is not a valid
// message. The connection stays usable.
type ProtocolError struct {
	Payload string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("invalid message %q: %v", clip(e.Payload, 80), e.Err)
}

// clip cuts s to at most n bytes on a rune boundary.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func (e *ProtocolError) Unwrap() error { return e.Err }
