// Package server exposes the build API over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/dochost/internal/build"
	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
	"git.home.luguber.info/inful/dochost/internal/server/middleware"
	"git.home.luguber.info/inful/dochost/internal/storage"
	"git.home.luguber.info/inful/dochost/internal/tasks"
)

// Server serves the build API.
type Server struct {
	store   storage.Store
	task    *build.UpdateDocsTask
	queue   *tasks.Queue
	metrics http.Handler
	logger  *slog.Logger
	adapter *dherrors.HTTPErrorAdapter
}

// New creates a server. metricsHandler may be nil to disable /metrics.
func New(store storage.Store, task *build.UpdateDocsTask, queue *tasks.Queue, metricsHandler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:   store,
		task:    task,
		queue:   queue,
		metrics: metricsHandler,
		logger:  logger,
		adapter: dherrors.NewHTTPErrorAdapter(logger),
	}
}

// Handler returns the routed handler wrapped in logging and recovery middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/projects/{id}/builds", s.handleTriggerBuild)
	mux.HandleFunc("GET /api/v1/builds/{id}", s.handleGetBuild)
	mux.HandleFunc("GET /api/v1/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return middleware.Chain(s.logger, s.adapter)(mux)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
