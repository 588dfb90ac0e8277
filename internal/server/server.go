// Package server provides the HTTP server and routing for factorrisk.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aristath/factorrisk/internal/config"
	"github.com/aristath/factorrisk/internal/di"
	betashandlers "github.com/aristath/factorrisk/internal/modules/betas/handlers"
	exposurehandlers "github.com/aristath/factorrisk/internal/modules/exposure/handlers"
	factorshandlers "github.com/aristath/factorrisk/internal/modules/factors/handlers"
	portfoliohandlers "github.com/aristath/factorrisk/internal/modules/portfolio/handlers"
	rankinghandlers "github.com/aristath/factorrisk/internal/modules/ranking/handlers"
	riskhandlers "github.com/aristath/factorrisk/internal/modules/risk/handlers"
	settingshandlers "github.com/aristath/factorrisk/internal/modules/settings/handlers"
	"github.com/aristath/factorrisk/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container        // DI container with all services
	Scheduler *scheduler.Scheduler // optional; job endpoints report 503 without it
	Port      int
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
	runHandlers    *RunHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
		systemHandlers: NewSystemHandlers(
			cfg.Log,
			cfg.Config.DataDir,
			cfg.Config.ReportDir,
			cfg.Container.Databases(),
			cfg.Scheduler,
		),
		runHandlers: NewRunHandlers(cfg.Container.Pipeline, cfg.Container.BetaRepo, cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.container.Registry, promhttp.HandlerOpts{}))

	analytics := s.cfg.Analytics

	s.router.Route("/api", func(r chi.Router) {
		// Factor inputs
		factorshandlers.NewHandler(s.container.FactorService, s.container.FactorRepo, analytics.TradingDays, s.log).RegisterRoutes(r)
		portfoliohandlers.NewHandler(s.container.PortfolioService, s.log).RegisterRoutes(r)

		// Pipeline output, one method at a time
		betashandlers.NewHandler(s.container.BetaRepo, s.log).RegisterRoutes(r)
		exposurehandlers.NewHandler(s.container.ExposureRepo, s.log).RegisterRoutes(r)
		riskhandlers.NewHandler(s.container.RiskRepo, s.log).RegisterRoutes(r)
		rankinghandlers.NewHandler(s.container.RankingService, s.log).RegisterRoutes(r)

		// Runs
		s.runHandlers.RegisterRoutes(r)

		// Settings
		settingshandlers.NewHandler(s.container.SettingsService, s.log).RegisterRoutes(r)

		// System monitoring and operations
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
			r.Get("/disk", s.systemHandlers.HandleDiskUsage)
			r.Get("/jobs", s.systemHandlers.HandleJobsStatus)
			r.Post("/jobs/{name}", s.systemHandlers.HandleTriggerJob)
		})
	})
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
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

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
