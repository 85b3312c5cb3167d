// Package server exposes health, metrics, statistics and replay endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"trade-analytics-lab/internal/feed"
	"trade-analytics-lab/internal/metrics"
	"trade-analytics-lab/internal/observability"
	"trade-analytics-lab/internal/reporting"
	"trade-analytics-lab/internal/sampling"
	"trade-analytics-lab/internal/storage"
)

// Config holds server dependencies.
type Config struct {
	Addr string
	Log  zerolog.Logger

	Aggregator *metrics.Aggregator
	Aggregates storage.AggregateStore
	Replays    storage.ReplayStore
	Reports    *reporting.Generator

	// Executions receives executions posted over HTTP. Nil disables the route.
	Executions *feed.Handler

	// Sampling exposes replay sampling totals and per-user counters. Nil
	// disables the route.
	Sampling *sampling.Policy
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config
	start  time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg,
		start:  time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", observability.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/portfolios/{portfolioID}", func(r chi.Router) {
			r.Get("/stats", s.handlePortfolioStats)
			r.Get("/stats/history", s.handleStatsHistory)
			r.Get("/strategies/{strategyID}/stats", s.handleStrategyStats)
			r.Get("/replays", s.handlePortfolioReplays)
			r.Get("/report", s.handleReport)
		})

		r.Route("/replays", func(r chi.Router) {
			r.Get("/", s.handleFindReplays)
			r.Get("/{replayID}", s.handleGetReplay)
			r.Delete("/{replayID}", s.handleDeleteReplay)
			r.Post("/{replayID}/notes", s.handleAppendNote)
		})

		if s.cfg.Executions != nil {
			r.Post("/executions", s.handlePostExecutions)
		}
		if s.cfg.Sampling != nil {
			r.Get("/sampling", s.handleSampling)
		}
	})
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
