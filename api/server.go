// Package api provides the HTTP REST API for engineqa.
//
// Endpoints:
//
//	POST /api/query     →  answer a question over the knowledge base
//	POST /api/reindex   →  start a background reindex job
//	GET  /api/reindex   →  observe the current/last reindex job
//	GET  /api/status    →  system status snapshot
//	POST /api/feedback  →  record feedback on an answer
//	GET  /api/feedback  →  list recorded feedback
//	GET  /health        →  liveness probe
//	GET  /ready         →  readiness probe (database ping)
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - query.go, reindex.go, status.go, feedback.go, health.go: handlers
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engineqa/engineqa/internal/feedback"
	"github.com/engineqa/engineqa/internal/jobs"
	"github.com/engineqa/engineqa/internal/knowledge"
	"github.com/engineqa/engineqa/internal/log"
	"github.com/engineqa/engineqa/internal/query"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Query requests sit behind upstream chat calls, so this is generous.
	WriteTimeout = 60 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Deps bundles everything the server's handlers need.
type Deps struct {
	Query    *query.Service
	Jobs     *jobs.Manager
	Indexer  ReindexRunner
	Store    knowledge.Store
	Upstream UpstreamInfo
	Feedback *feedback.Store
	Pool     *pgxpool.Pool
	Table    string
	Logger   log.Logger
}

// Server is the HTTP server for the engineqa REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health   *HealthHandler
	query    *QueryHandler
	reindex  *ReindexHandler
	status   *StatusHandler
	feedback *FeedbackHandler
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(deps Deps) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:      mux,
		logger:   deps.Logger,
		health:   NewHealthHandler(deps.Pool, deps.Logger),
		query:    NewQueryHandler(deps.Query, deps.Logger),
		reindex:  NewReindexHandler(deps.Jobs, deps.Indexer, deps.Logger),
		status:   NewStatusHandler(deps.Upstream, deps.Store, deps.Jobs, deps.Table, deps.Logger),
		feedback: NewFeedbackHandler(deps.Feedback, deps.Logger),
	}

	s.health.RegisterRoutes(mux)
	s.query.RegisterRoutes(mux)
	s.reindex.RegisterRoutes(mux)
	s.status.RegisterRoutes(mux)
	s.feedback.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger))
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
