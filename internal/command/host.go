package command

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Dhanuzh/refactorai/internal/config"
	"github.com/Dhanuzh/refactorai/internal/editor"
	"github.com/Dhanuzh/refactorai/internal/provider"
)

// ErrNoActiveEditor is reported when a command runs without an editor.
var ErrNoActiveEditor = errors.New("no active editor")

// Editor is the focused editor: a document and its selection.
type Editor interface {
	Document() editor.Document
	Selection() editor.Range
}

// Host exposes the active editor, if any.
type Host interface {
	ActiveEditor() (Editor, bool)
}

// StaticEditor is an Editor with a fixed document and selection.
type StaticEditor struct {
	Doc editor.Document
	Sel editor.Range
}

func (e *StaticEditor) Document() editor.Document { return e.Doc }
func (e *StaticEditor) Selection() editor.Range   { return e.Sel }

// StaticHost always returns the same editor. A nil Editor means none is
// active.
type StaticHost struct {
	Editor Editor
}

func (h StaticHost) ActiveEditor() (Editor, bool) {
	return h.Editor, h.Editor != nil
}

// CredentialResolver is satisfied by *config.CredentialProvider.
type CredentialResolver interface {
	Resolve(ctx context.Context) (config.Credentials, error)
}

// ClientFactory builds the chat client for one invocation.
type ClientFactory func(creds config.Credentials, settings config.Settings) (provider.Client, error)

// OpenAIClients is the ClientFactory used outside tests.
func OpenAIClients(creds config.Credentials, settings config.Settings) (provider.Client, error) {
	return provider.NewOpenAIClient(creds.APIKey, creds.OrganizationID, provider.ClientOptions{
		BaseURL: settings.BaseURL,
		Timeout: settings.Timeout,
	}), nil
}

// Presentation tells a host how to surface a failure.
type Presentation int

const (
	// Silent failures are logged only.
	Silent Presentation = iota
	// Modal failures are shown to the user.
	Modal
)

func (p Presentation) String() string {
	if p == Modal {
		return "modal"
	}
	return "silent"
}

// Report describes one failed invocation.
type Report struct {
	OpID         string
	Command      string
	Err          error
	Message      string // user-facing text
	Presentation Presentation
}

// ErrorSink receives failure reports.
type ErrorSink interface {
	Report(ctx context.Context, r Report)
}

// ErrorSinkFunc adapts a function to ErrorSink.
type ErrorSinkFunc func(ctx context.Context, r Report)

func (f ErrorSinkFunc) Report(ctx context.Context, r Report) { f(ctx, r) }

// LogSink logs every report; modal ones at error level.
func LogSink(logger *zap.Logger) ErrorSink {
	return ErrorSinkFunc(func(_ context.Context, r Report) {
		fields := []zap.Field{
			zap.String("op", r.OpID),
			zap.String("command", r.Command),
			zap.String("presentation", r.Presentation.String()),
			zap.Error(r.Err),
		}
		if r.Presentation == Modal {
			logger.Error(r.Message, fields...)
			return
		}
		logger.Warn(r.Message, fields...)
	})
}
