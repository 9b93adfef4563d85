// Package server exposes the queue over HTTP. Handlers are thin: they
// decode, call the queue manager or executor, and map sentinel errors
// onto status codes. All state lives behind those two components.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"genqueue/internal/executor"
	"genqueue/internal/pipeline"
	"genqueue/internal/queue"
)

type Server struct {
	queue   *queue.Manager
	exec    *executor.Executor
	capture pipeline.ParamCapture
	server  *http.Server
}

// New builds the server. capture may be nil when no front end is
// attached; the capture endpoint then reports 503.
func New(addr string, q *queue.Manager, e *executor.Executor, capture pipeline.ParamCapture) *Server {
	s := &Server{
		queue:   q,
		exec:    e,
		capture: capture,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           corsMiddleware(s.routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
