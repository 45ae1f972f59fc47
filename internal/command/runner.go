package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Dhanuzh/refactorai/internal/config"
	"github.com/Dhanuzh/refactorai/internal/editor"
	"github.com/Dhanuzh/refactorai/internal/logging"
	"github.com/Dhanuzh/refactorai/internal/provider"
	"github.com/Dhanuzh/refactorai/internal/stream"
)

// Outcome is the result of one command invocation. Err is nil on success,
// including the case where the endpoint returned no choices.
type Outcome struct {
	OpID     string
	Command  string
	Model    string
	Streamed bool
	Applied  bool   // the document was changed
	Text     string // generated text that reached the document
	Summary  stream.Summary
	Err      error
}

// Options configures a Runner. Host, Credentials and Settings are required.
type Options struct {
	Host        Host
	Credentials CredentialResolver
	Settings    func() config.Settings
	Clients     ClientFactory      // defaults to OpenAIClients
	Applicator  *editor.Applicator // defaults to a fresh applicator
	Sink        ErrorSink          // defaults to LogSink
	Logger      *zap.Logger
}

// Runner executes commands against the active editor.
type Runner struct {
	host     Host
	creds    CredentialResolver
	settings func() config.Settings
	clients  ClientFactory
	app      *editor.Applicator
	sink     ErrorSink
	logger   *zap.Logger
}

// NewRunner creates a runner from opts.
func NewRunner(opts Options) *Runner {
	logger := logging.OrNop(opts.Logger)
	r := &Runner{
		host:     opts.Host,
		creds:    opts.Credentials,
		settings: opts.Settings,
		clients:  opts.Clients,
		app:      opts.Applicator,
		sink:     opts.Sink,
		logger:   logger,
	}
	if r.clients == nil {
		r.clients = OpenAIClients
	}
	if r.app == nil {
		r.app = editor.NewApplicator(logger)
	}
	if r.sink == nil {
		r.sink = LogSink(logger)
	}
	return r
}

// Run executes a against the active editor. Failures are returned in the
// outcome and reported to the sink; Run never panics on them.
func (r *Runner) Run(ctx context.Context, a Action) Outcome {
	out := Outcome{OpID: uuid.NewString(), Command: a.ID()}
	log := r.logger.With(zap.String("op", out.OpID), zap.String("command", out.Command))

	ed, ok := r.host.ActiveEditor()
	if !ok {
		return r.fail(ctx, log, out, ErrNoActiveEditor)
	}
	doc := ed.Document()
	sel := ed.Selection().Normalize()
	log = log.With(zap.String("uri", doc.URI()), zap.Stringer("selection", sel))

	selected, err := doc.TextRange(sel)
	if err != nil {
		return r.fail(ctx, log, out, fmt.Errorf("%w: read selection: %w", editor.ErrEditRejected, err))
	}

	creds, err := r.creds.Resolve(ctx)
	if err != nil {
		return r.fail(ctx, log, out, err)
	}

	settings := r.settings()
	out.Model = settings.Model
	out.Streamed = settings.Streaming
	log = log.With(zap.String("model", settings.Model), zap.Bool("stream", settings.Streaming))

	client, err := r.clients(creds, settings)
	if err != nil {
		return r.fail(ctx, log, out, fmt.Errorf("create client: %w", err))
	}

	log.Debug("sending chat request", zap.Int("selection_bytes", len(selected)))
	res, err := client.Send(ctx, &provider.ChatRequest{
		Model:    settings.Model,
		Messages: []provider.Message{{Role: provider.RoleUser, Content: BuildPrompt(a, selected)}},
		Stream:   settings.Streaming,
	})
	if err != nil {
		return r.fail(ctx, log, out, err)
	}
	defer res.Close()

	if res.Streaming() {
		out.Streamed = true
		err = r.applyStream(ctx, log, a, doc, sel, res.Stream, &out)
	} else {
		out.Streamed = false
		err = r.applyCompletion(log, a, doc, sel, selected, res.Completion, &out)
	}
	if err != nil {
		return r.fail(ctx, log, out, err)
	}

	log.Info("command finished",
		zap.Bool("applied", out.Applied),
		zap.Int("text_bytes", len(out.Text)))
	return out
}

func (r *Runner) applyCompletion(log *zap.Logger, a Action, doc editor.Document, sel editor.Range, selected string, c *provider.Completion, out *Outcome) error {
	log.Debug("completion received",
		zap.String("response_id", c.ID),
		zap.Int("total_tokens", c.Usage.TotalTokens()))
	content, ok := c.FirstContent()
	if !ok {
		log.Info("response carried no choices, document unchanged")
		return nil
	}
	if err := r.app.ReplaceRange(doc, sel, Replacement(a, selected, content)); err != nil {
		return err
	}
	out.Applied = true
	out.Text = content
	return nil
}

func (r *Runner) applyStream(ctx context.Context, log *zap.Logger, a Action, doc editor.Document, sel editor.Range, src provider.ChunkStream, out *Outcome) error {
	mode := editor.ModeInsert
	if a == ActionRefactor {
		mode = editor.ModeReplaceAccumulated
	}
	w, err := editor.NewStreamWriter(r.app, doc, sel, mode)
	if err != nil {
		return err
	}
	defer w.Close()

	sum, err := stream.Decode(ctx, src, func(ev stream.Event) error {
		switch ev.Kind {
		case stream.Delta:
			return w.Write(ev.Text)
		case stream.Malformed:
			log.Warn("skipping malformed stream record", zap.Error(ev.Err))
		}
		return nil
	})
	out.Summary = sum
	out.Text = w.Text()
	log.Debug("stream drained",
		zap.Stringer("span", w.Span()),
		zap.Int("deltas", sum.Deltas),
		zap.Int("malformed", sum.Malformed))
	out.Applied = out.Text != ""
	if err != nil {
		return err
	}
	if !sum.Done {
		log.Debug("stream ended without end marker")
	}
	return nil
}

func (r *Runner) fail(ctx context.Context, log *zap.Logger, out Outcome, err error) Outcome {
	out.Err = err
	rep := Report{
		OpID:         out.OpID,
		Command:      out.Command,
		Err:          err,
		Message:      userMessage(err),
		Presentation: presentationOf(err),
	}
	log.Debug("command failed", zap.Error(err))
	r.sink.Report(ctx, rep)
	return out
}

func presentationOf(err error) Presentation {
	if errors.Is(err, config.ErrConfigurationMissing) {
		return Modal
	}
	return Silent
}

func userMessage(err error) string {
	var te *provider.TransportError
	switch {
	case errors.Is(err, config.ErrConfigurationMissing):
		return config.MessageConfigurationMissing
	case errors.Is(err, ErrNoActiveEditor):
		return "No active editor."
	case errors.Is(err, context.Canceled):
		return "Cancelled."
	case errors.As(err, &te):
		var uf *provider.UserFriendlyError
		if errors.As(provider.MakeUserFriendly(err), &uf) {
			return uf.Title + ": " + uf.Message
		}
		return provider.ClassifyError(err).Message
	case errors.Is(err, editor.ErrInsertionPointBusy):
		return "Another request is already writing at this position."
	case errors.Is(err, editor.ErrEditRejected):
		return "The document changed or was closed; the edit was not applied."
	default:
		return err.Error()
	}
}
