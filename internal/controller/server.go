// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"contentplane/internal/controller/handlers"
	"contentplane/internal/controller/middleware"
	"contentplane/internal/logger"
)

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// Options carries the server's dependencies and settings.
type Options struct {
	Addr           string
	Store          handlers.StoreFactory
	Engine         handlers.Orchestrator
	Events         handlers.Subscriber
	AdminSecret    string
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// New creates a new controller server.
func New(opts Options) *Server {
	h := handlers.New(opts.Store, opts.Engine, opts.Events)
	authMW := middleware.AuthMiddleware(opts.Store)
	rateMW := middleware.RateLimitMiddleware()
	adminMW := middleware.AdminOnly(opts.AdminSecret)

	authed := func(fn http.HandlerFunc) http.Handler {
		return authMW(rateMW(fn))
	}

	mux := http.NewServeMux()

	// Admin surface
	mux.Handle("POST /tenants", adminMW(http.HandlerFunc(h.CreateTenant)))

	// Public authenticated apis
	mux.Handle("POST /pipelines", authed(h.SubmitPipeline))
	mux.Handle("GET /pipelines", authed(h.ListPipelines))
	mux.Handle("GET /pipelines/{id}", authed(h.GetPipeline))
	mux.Handle("GET /pipelines/{id}/executions", authed(h.ListStageExecutions))
	mux.Handle("POST /pipelines/{id}/cancel", authed(h.CancelPipeline))
	mux.Handle("GET /ledger", authed(h.ListLedger))

	// The event stream skips the rate limiter: it is one long-lived request.
	mux.Handle("GET /events", authMW(http.HandlerFunc(h.StreamEvents)))

	// Operational endpoints
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	lg := opts.Logger
	if lg == nil {
		lg = logger.New()
	}

	return &Server{
		httpServer: &http.Server{
			Addr:        opts.Addr,
			Handler:     middleware.RequestLog(lg)(mux),
			ReadTimeout: 10 * time.Second,
			// No WriteTimeout: /events holds the response open indefinitely.
			IdleTimeout: 120 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
