// Package api provides HTTP handlers and the API server for CoachPipe.
//
// It exposes the streaming and synchronous chat endpoints, thread management,
// and the global user profile. The server is a thin layer over the workflow
// and store; all orchestration lives in internal/flow.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/CoachPipe/internal/flow"
	"github.com/BTreeMap/CoachPipe/internal/models"
	"github.com/BTreeMap/CoachPipe/internal/store"
)

// Server configuration constants
const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8000"
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultSummarizeTimeout bounds the post-turn title summarization task.
	DefaultSummarizeTimeout = 60 * time.Second
)

// TurnRunner is the workflow surface the server depends on.
type TurnRunner interface {
	RunTurn(ctx context.Context, threadID string, incoming []models.ChatMessage, emit flow.Emitter) (*models.ConversationState, error)
	SummarizeThread(ctx context.Context, threadID string) error
}

var _ TurnRunner = (*flow.Workflow)(nil)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server hosts the CoachPipe HTTP API.
type Server struct {
	st       store.Store
	workflow TurnRunner
	addr     string
}

// NewServer creates an API server over the given store and workflow.
func NewServer(st store.Store, workflow TurnRunner, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Server.NewServer: creating API server", "addr", cfg.Addr)
	return &Server{st: st, workflow: workflow, addr: cfg.Addr}
}

// Handler returns the route table as an http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/stream", s.chatStreamHandler)
	mux.HandleFunc("POST /chat", s.chatHandler)
	mux.HandleFunc("GET /chat/threads", s.listThreadsHandler)
	mux.HandleFunc("DELETE /chat/threads", s.deleteAllThreadsHandler)
	mux.HandleFunc("DELETE /chat/threads/{thread_id}", s.deleteThreadHandler)
	mux.HandleFunc("GET /chat/history/{thread_id}", s.historyHandler)
	mux.HandleFunc("GET /profile", s.getProfileHandler)
	mux.HandleFunc("PUT /profile", s.updateProfileHandler)
	return mux
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
