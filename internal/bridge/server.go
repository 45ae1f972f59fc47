package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server accepts editor connections over a local websocket.
type Server struct {
	engine  *Engine
	version string
	logger  *zap.Logger
	mux     *http.ServeMux

	mu       sync.Mutex
	server   *http.Server
	sessions map[string]*Session
	wg       sync.WaitGroup
	baseCtx  context.Context
}

// NewServer creates a server for engine.
func NewServer(engine *Engine, version string) *Server {
	s := &Server{
		engine:   engine,
		version:  version,
		logger:   engine.logger().Named("bridge"),
		mux:      http.NewServeMux(),
		sessions: make(map[string]*Session),
		baseCtx:  context.Background(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// and waits for open sessions.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.server = srv
	s.baseCtx = ctx
	s.mu.Unlock()

	s.logger.Info("bridge listening", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeSessions()
	s.wg.Wait()
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	n := len(s.sessions)
	s.mu.Unlock()
	writeJSON(w, map[string]any{
		"status":   "ok",
		"name":     "refactorai",
		"version":  s.version,
		"sessions": n,
	})
}

var upgrader = gws.Upgrader{
	CheckOrigin: localOrigin,
}

// localOrigin accepts clients without an Origin header (editor plugins)
// and pages served from the loopback interface.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return u.Scheme == "vscode-webview"
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn := NewWebSocketConn(ws)
	session := NewSession(conn, s.engine)

	s.mu.Lock()
	s.sessions[session.ID()] = session
	ctx := s.baseCtx
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("editor connected", zap.String("session", session.ID()), zap.String("remote", r.RemoteAddr))

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.sessions, session.ID())
			s.mu.Unlock()
			_ = conn.Close()
			s.logger.Info("editor disconnected", zap.String("session", session.ID()))
		}()
		if err := session.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("session ended with error", zap.String("session", session.ID()), zap.Error(err))
		}
	}()
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		_ = session.conn.Close()
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// ServeStdio runs a single session over JSON lines on in and out.
func ServeStdio(ctx context.Context, engine *Engine, in io.Reader, out io.Writer) error {
	return NewSession(NewStreamConn(in, out), engine).Serve(ctx)
}
