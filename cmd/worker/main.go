package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"geoattend/internal/app"
	"geoattend/internal/config"
	"geoattend/internal/logger"
	"geoattend/internal/worker"
)

// Worker consumes attendance events and keeps the leaderboard cache current.
func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	lg := logger.New(cfg.Env, cfg.LogLevel).With("component", "worker")
	slog.SetDefault(lg)

	if cfg.QueueBackend != "redis" {
		lg.Error("standalone worker needs QUEUE_BACKEND=redis; the api consumes in-memory queues itself")
		os.Exit(1)
	}
	// the worker never verifies sign-ins
	cfg.IdentityProvider = "dev"

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := app.Open(ctx, cfg, lg)
	if err != nil {
		lg.Error("backend init failed", "error", err)
		os.Exit(1)
	}
	defer backends.Close()

	cache := backends.Cache(cfg)
	if err := backends.Seed(ctx, cache); err != nil {
		lg.Warn("leaderboard seed failed, continuing with existing cache", "error", err)
	}

	if err := worker.Run(ctx, backends.Queue(cfg), cache, lg); err != nil {
		lg.Error("worker failed", "error", err)
		os.Exit(1)
	}
}
