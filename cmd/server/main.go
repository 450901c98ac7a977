// Package main is the entry point for the Pollar server.
//
// The main package is kept minimal. Its job is to:
// 1. Read configuration (environment and an optional .env file)
// 2. Create the logger
// 3. Start the application
//
// All actual logic lives in internal/ packages.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/juju/clock"

	"github.com/sakif/pollar/internal/config"
	"github.com/sakif/pollar/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// Log levels (from least to most severe): Debug → Info → Warn → Error.
	logger := newLogger(os.Stdout, cfg)
	slog.SetDefault(logger)

	// === 3. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger, clock.WallClock)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newLogger builds a text logger for terminals or a JSON logger for log
// shippers, depending on LOG_FORMAT.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
