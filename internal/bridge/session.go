package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Dhanuzh/refactorai/internal/command"
	"github.com/Dhanuzh/refactorai/internal/config"
	"github.com/Dhanuzh/refactorai/internal/editor"
	"github.com/Dhanuzh/refactorai/internal/logging"
)

// ErrNoSession is returned by the bridge prompter outside an execution.
var ErrNoSession = errors.New("bridge: no session in context")

// Engine holds what every session shares.
type Engine struct {
	Credentials command.CredentialResolver
	Settings    func() config.Settings
	Clients     command.ClientFactory
	Applicator  *editor.Applicator
	Logger      *zap.Logger
}

func (e *Engine) logger() *zap.Logger {
	return logging.OrNop(e.Logger)
}

type promptAnswer struct {
	value     string
	cancelled bool
}

type execution struct {
	id     string
	cancel context.CancelFunc
}

// Session serves one editor connection. It runs at most one execution at
// a time while it keeps reading cancel and prompt responses.
type Session struct {
	id     string
	conn   Conn
	engine *Engine
	logger *zap.Logger

	mu         sync.Mutex
	running    *execution
	prompts    map[string]chan promptAnswer
	readerDone bool

	wg sync.WaitGroup
}

// NewSession creates a session over conn.
func NewSession(conn Conn, engine *Engine) *Session {
	id := uuid.NewString()
	return &Session{
		id:      id,
		conn:    conn,
		engine:  engine,
		logger:  engine.logger().With(zap.String("session", id)),
		prompts: make(map[string]chan promptAnswer),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

type readResult struct {
	msg Message
	err error
}

// Serve reads messages until the peer goes away or ctx is cancelled. On
// end of input the running execution is allowed to finish; pending and
// later prompts are answered as cancelled. Cancelling ctx cancels it.
func (s *Session) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.wg.Wait()
	}()

	s.logger.Debug("session started")
	reads := make(chan readResult)
	go func() {
		for {
			msg, err := s.conn.Read()
			select {
			case reads <- readResult{msg, err}:
			case <-ctx.Done():
				return
			}
			if err != nil && !isProtocolError(err) {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-reads:
			if r.err != nil {
				if isProtocolError(r.err) {
					s.logger.Warn("bad message from editor", zap.Error(r.err))
					s.sendError("", KindProtocol, r.err.Error(), command.Silent)
					continue
				}
				s.endOfInput()
				s.wg.Wait()
				if errors.Is(r.err, io.EOF) {
					s.logger.Debug("session ended")
					return nil
				}
				return r.err
			}
			s.handle(ctx, r.msg)
		}
	}
}

func isProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

func (s *Session) handle(ctx context.Context, msg Message) {
	switch msg.Type {
	case TypePing:
		_ = s.send(Message{Type: TypePong, ID: msg.ID})
	case TypeExecute:
		s.startExecution(ctx, msg)
	case TypeCancel:
		s.mu.Lock()
		run := s.running
		s.mu.Unlock()
		if run != nil && run.id == msg.ID {
			s.logger.Debug("cancelling execution", zap.String("id", msg.ID))
			run.cancel()
		}
	case TypePromptResponse:
		s.mu.Lock()
		ch, ok := s.prompts[msg.PromptID]
		delete(s.prompts, msg.PromptID)
		s.mu.Unlock()
		if !ok {
			s.logger.Debug("response for unknown prompt", zap.String("prompt", msg.PromptID))
			return
		}
		ch <- promptAnswer{value: msg.Value, cancelled: msg.Cancelled}
	default:
		s.sendError(msg.ID, KindProtocol, fmt.Sprintf("unknown message type %q", msg.Type), command.Silent)
	}
}

func (s *Session) startExecution(ctx context.Context, msg Message) {
	if msg.ID == "" || msg.Document == nil || msg.Selection == nil {
		s.sendError(msg.ID, KindProtocol, "execute needs id, document and selection", command.Silent)
		return
	}
	if _, ok := command.ActionForID(msg.Command); !ok {
		s.sendError(msg.ID, KindUnknownCommand, fmt.Sprintf("unknown command %q", msg.Command), command.Silent)
		return
	}

	s.mu.Lock()
	if s.running != nil {
		busy := s.running.id
		s.mu.Unlock()
		s.sendError(msg.ID, KindBusy, fmt.Sprintf("execution %s is still running", busy), command.Silent)
		return
	}
	execCtx, cancel := context.WithCancel(ctx)
	s.running = &execution{id: msg.ID, cancel: cancel}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		done := s.execute(execCtx, msg)
		cancel()
		s.mu.Lock()
		s.running = nil
		s.mu.Unlock()
		_ = s.send(done)
	}()
}

// execute runs one command and returns the done frame for it.
func (s *Session) execute(ctx context.Context, msg Message) Message {
	log := s.logger.With(zap.String("id", msg.ID), zap.String("command", msg.Command))
	doc := newMirrorDocument(msg.ID, *msg.Document, s)

	sink := command.ErrorSinkFunc(func(_ context.Context, r command.Report) {
		log.Debug("execution failed", zap.String("op", r.OpID), zap.Error(r.Err))
		s.sendError(msg.ID, ErrorKind(r.Err), r.Message, r.Presentation)
	})
	runner := command.NewRunner(command.Options{
		Host:        command.StaticHost{Editor: &command.StaticEditor{Doc: doc, Sel: fromWire(msg.Document.Text, *msg.Selection)}},
		Credentials: s.engine.Credentials,
		Settings:    s.engine.Settings,
		Clients:     s.engine.Clients,
		Applicator:  s.engine.Applicator,
		Sink:        sink,
		Logger:      log,
	})
	reg := command.NewRegistry()
	if err := command.RegisterAll(reg, runner); err != nil {
		s.sendError(msg.ID, KindInternal, err.Error(), command.Silent)
		return Message{Type: TypeDone, ID: msg.ID, Outcome: outcomeInfo(command.Outcome{Command: msg.Command, Err: err})}
	}

	out, err := reg.Execute(withSession(ctx, s, msg.ID), msg.Command)
	if err != nil {
		s.sendError(msg.ID, KindUnknownCommand, err.Error(), command.Silent)
		out = command.Outcome{Command: msg.Command, Err: err}
	}
	return Message{Type: TypeDone, ID: msg.ID, Outcome: outcomeInfo(out)}
}

func (s *Session) endOfInput() {
	s.mu.Lock()
	s.readerDone = true
	pending := s.prompts
	s.prompts = make(map[string]chan promptAnswer)
	s.mu.Unlock()
	for _, ch := range pending {
		ch <- promptAnswer{cancelled: true}
	}
}

// prompt asks the editor for a value and waits for the answer.
func (s *Session) prompt(ctx context.Context, execID string, opts config.PromptOptions) (string, bool, error) {
	promptID := uuid.NewString()
	ch := make(chan promptAnswer, 1)

	s.mu.Lock()
	if s.readerDone {
		s.mu.Unlock()
		return "", false, nil
	}
	s.prompts[promptID] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.prompts, promptID)
		s.mu.Unlock()
	}()

	if err := s.send(Message{
		Type:     TypePrompt,
		ID:       execID,
		PromptID: promptID,
		Message:  opts.Message,
		Password: opts.Password,
	}); err != nil {
		return "", false, err
	}

	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case a := <-ch:
		if a.cancelled {
			return "", false, nil
		}
		return a.value, true, nil
	}
}

func (s *Session) send(msg Message) error {
	if err := s.conn.Write(msg); err != nil {
		s.logger.Debug("write to editor failed", zap.String("type", msg.Type), zap.Error(err))
		return err
	}
	return nil
}

func (s *Session) sendError(id, kind, message string, p command.Presentation) {
	_ = s.send(Message{
		Type:  TypeError,
		ID:    id,
		Error: &ErrorInfo{Kind: kind, Message: message, Presentation: p.String()},
	})
}

type sessionKey struct{}

type sessionRef struct {
	session *Session
	execID  string
}

func withSession(ctx context.Context, s *Session, execID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionRef{session: s, execID: execID})
}

func sessionFrom(ctx context.Context) (sessionRef, bool) {
	ref, ok := ctx.Value(sessionKey{}).(sessionRef)
	return ref, ok
}

// Prompter relays credential prompts to the editor of the execution found
// in the context. One Prompter serves every session.
type Prompter struct{}

var _ config.Prompter = Prompter{}

func (Prompter) Prompt(ctx context.Context, opts config.PromptOptions) (string, bool, error) {
	ref, ok := sessionFrom(ctx)
	if !ok {
		return "", false, ErrNoSession
	}
	return ref.session.prompt(ctx, ref.execID, opts)
}

// Notifier relays error notices to the editor of the current execution.
type Notifier struct {
	// Fallback receives notices outside any execution. May be nil.
	Fallback config.Notifier
}

var _ config.Notifier = Notifier{}

func (n Notifier) ShowError(ctx context.Context, message string) {
	ref, ok := sessionFrom(ctx)
	if !ok {
		if n.Fallback != nil {
			n.Fallback.ShowError(ctx, message)
		}
		return
	}
	_ = ref.session.send(Message{Type: TypeNotify, ID: ref.execID, Level: "error", Message: message})
}
