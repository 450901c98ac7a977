// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New:
//	  sqlite.DB ─┬→ VoteService    → PollHandler
//	             ├→ ProjectService → ProjectHandler
//	             ├→ UsageService   → UsageHandler
//	             └→ AuthService    → AuthHandler
//	  metrics.Collector → VoteService (vote outcomes), middleware.Metrics (requests)
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes) rather than scattered across the codebase.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/pollar/internal/auth"
	"github.com/sakif/pollar/internal/config"
	"github.com/sakif/pollar/internal/handler"
	"github.com/sakif/pollar/internal/metrics"
	"github.com/sakif/pollar/internal/middleware"
	sqliteRepo "github.com/sakif/pollar/internal/repository/sqlite"
	"github.com/sakif/pollar/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. Start closes it after the HTTP
// server has drained, so in-flight votes can still commit.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	clock    clock.Clock
	db       *sqliteRepo.DB
	registry *prometheus.Registry
}

// New opens the database and wires every layer. A nil clock means the
// wall clock.
func New(cfg *config.Config, logger *slog.Logger, clk clock.Clock) (*Server, error) {
	if clk == nil {
		clk = clock.WallClock
	}

	if cfg.DBPath != ":memory:" {
		// Ensure the data directory exists (like `mkdir -p`).
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath, clk)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		clock:    clk,
		db:       db,
		registry: prometheus.NewRegistry(),
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /poll?pollId=              → poll with counts          (public)
// POST   /poll                      → vote                      (public)
// GET    /plans                     → pricing table             (public)
// POST   /auth/signup|login|logout  → password accounts         (public)
// GET    /auth/validate             → session check             (public)
// GET    /auth/{provider}/login     → OAuth redirect            (public)
// GET    /auth/{provider}/callback  → OAuth callback            (public)
// POST   /projects                  → create project            (auth)
// GET    /projects/{id}             → project analytics         (auth)
// POST   /projects/add-poll         → add poll                  (auth)
// GET    /dashboard                 → overview                  (auth)
// GET    /usage                     → plan usage                (auth)
// GET    /me, PATCH /me             → account                   (auth)
// GET    /healthz, /metrics         → operations                (public)
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns a unique ID to each request (logged by Logger)
// 2. RealIP: extracts the real client IP from proxy headers
// 3. Logger, Metrics: observe the finished request
// 4. Recoverer: innermost, so a panic becomes a 500 that is still logged and counted
func (s *Server) setupRoutes() error {
	collector := metrics.NewCollector()
	if err := s.registry.Register(collector); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	secret := s.config.JWTSecret
	if secret == "" {
		var err error
		if secret, err = randomSecret(); err != nil {
			return err
		}
		s.logger.Warn("JWT_SECRET not set; using a random secret, sessions will not survive a restart")
	}
	tokens, err := auth.NewTokenService(secret, s.config.SessionTTL, s.clock)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(s.config.BcryptCost)
	providers := auth.NewProviders(
		auth.ProviderConfig{
			ClientID:     s.config.GitHub.ClientID,
			ClientSecret: s.config.GitHub.ClientSecret,
			CallbackURL:  s.config.GitHub.CallbackURL,
		},
		auth.ProviderConfig{
			ClientID:     s.config.Google.ClientID,
			ClientSecret: s.config.Google.ClientSecret,
			CallbackURL:  s.config.Google.CallbackURL,
		},
	)
	for name := range providers {
		s.logger.Info("identity provider enabled", slog.String("provider", name))
	}

	// === Services ===
	// s.db implements every repository interface; each service only sees
	// the interfaces it needs.
	voteService := service.NewVoteService(s.db, s.clock, collector, s.logger)
	projectService := service.NewProjectService(s.db, s.db, s.db, s.clock, s.logger)
	usageService := service.NewUsageService(s.db, s.db, s.logger)
	authService := service.NewAuthService(s.db, tokens, passwords, s.logger)

	// === Handlers ===
	pollHandler := handler.NewPollHandler(voteService, s.config.CookieSecure, s.logger)
	projectHandler := handler.NewProjectHandler(projectService, s.logger)
	usageHandler := handler.NewUsageHandler(usageService, s.logger)
	authHandler := handler.NewAuthHandler(authService, providers, tokens.TTL(), s.config.CookieSecure, s.logger)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(collector))
	s.router.Use(chimiddleware.Recoverer)

	// === Public Routes ===
	s.router.Get("/healthz", handler.HandleHealth(s.db, s.logger))
	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.router.Get("/poll", pollHandler.HandleGet)
	s.router.Post("/poll", pollHandler.HandleVote)
	s.router.Get("/plans", usageHandler.HandlePlans)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignup)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/validate", authHandler.HandleValidate)
		r.Get("/{provider}/login", authHandler.HandleProviderLogin)
		r.Get("/{provider}/callback", authHandler.HandleProviderCallback)
	})

	// === Protected Routes ===
	// RequireAuth rejects the request with 401 before any handler runs.
	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Post("/projects", projectHandler.HandleCreate)
		r.Post("/projects/add-poll", projectHandler.HandleAddPoll)
		r.Get("/projects/{id}", projectHandler.HandleGet)
		r.Get("/dashboard", projectHandler.HandleDashboard)
		r.Get("/usage", usageHandler.HandleUsage)
		r.Get("/me", authHandler.HandleMe)
		r.Patch("/me", authHandler.HandleUpdateMe)
	})

	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (SHUTDOWN_TIMEOUT)
// 3. Close the database connection (flushes WAL, releases the file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
