package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"geoattend/internal/app"
	"geoattend/internal/attendance"
	"geoattend/internal/auth"
	"geoattend/internal/config"
	"geoattend/internal/geofence"
	"geoattend/internal/httpapi"
	"geoattend/internal/logger"
	"geoattend/internal/queue"
	"geoattend/internal/worker"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	lg := logger.New(cfg.Env, cfg.LogLevel)
	slog.SetDefault(lg)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, lg); err != nil {
		lg.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

func runHTTP(cfg config.App, lg *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := app.Open(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer backends.Close()

	fence, err := geofence.New(cfg.Center(), cfg.RadiusMeters)
	if err != nil {
		return err
	}
	zone, err := cfg.Zone()
	if err != nil {
		return err
	}
	svc := attendance.NewService(backends.Store, fence,
		attendance.WithLocker(backends.Locker(cfg)),
		attendance.WithZone(zone),
		attendance.WithLogger(lg),
	)

	q := backends.Queue(cfg)
	cache := backends.Cache(cfg)
	if err := backends.Seed(ctx, cache); err != nil {
		lg.Warn("leaderboard seed failed", "error", err)
	}
	// an in-memory queue is only visible to this process, so consume it here
	if _, ok := q.(*queue.InMemory); ok {
		go func() {
			if err := worker.Run(ctx, q, cache, lg.With("component", "worker")); err != nil {
				lg.Error("in-process worker failed", "error", err)
			}
		}()
	}

	health := map[string]httpapi.HealthCheck{}
	for name, check := range backends.Health() {
		health[name] = check
	}

	r := httpapi.NewRouter(httpapi.Deps{
		Service:         svc,
		Provider:        backends.Provider(cfg),
		Issuer:          auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Queue:           q,
		Cache:           cache,
		Health:          health,
		Log:             lg,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("starting server", "port", cfg.HTTPPort, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	lg.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("server forced shutdown", "error", err)
	}
	lg.Info("server exited")
	return nil
}
