// Package main is the entrypoint for the SunGate API gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suncrest/sungate/internal/api"
	"github.com/suncrest/sungate/internal/api/handler"
	mw "github.com/suncrest/sungate/internal/api/middleware"
	"github.com/suncrest/sungate/internal/audit"
	"github.com/suncrest/sungate/internal/auth"
	"github.com/suncrest/sungate/internal/cache"
	"github.com/suncrest/sungate/internal/config"
	"github.com/suncrest/sungate/internal/store"
	"github.com/suncrest/sungate/internal/sweep"
	"github.com/suncrest/sungate/internal/webhook"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Core services
	pgStore := store.NewPostgresStore(pool)

	auditLogger := audit.NewLogger(pgStore, cfg.Audit.BufferSize)
	defer auditLogger.Close()

	authenticator := auth.NewAuthenticator(pgStore)
	registry := webhook.NewRegistry(pgStore, redisCache)
	dispatcher := webhook.NewDispatcher(pgStore, redisCache, auditLogger,
		cfg.Webhook.DeliveryTimeout, cfg.Webhook.SubscriberCacheTTL)
	defer dispatcher.Close()

	// 6. Maintenance sweep
	sweeper := sweep.New(pgStore, cfg.Sweep.RetentionDays)
	if err := sweeper.Start(cfg.Sweep.Cron); err != nil {
		return fmt.Errorf("start sweep: %w", err)
	}
	defer sweeper.Stop()
	slog.Info("maintenance sweep scheduled", "cron", cfg.Sweep.Cron)

	// 7. Build router with dependencies
	router := api.NewRouter(api.Dependencies{
		Auth:         mw.NewAuth(authenticator, auditLogger),
		Health:       handler.NewHealth(pgStore, redisCache),
		Credentials:  handler.NewCredentials(pgStore),
		Webhooks:     handler.NewWebhooks(registry, dispatcher),
		EventTrigger: handler.NewEventTrigger(dispatcher),
	})

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
