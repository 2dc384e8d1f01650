// Package main is the entrypoint for the batchtrack API server.
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

	"github.com/kiranshivaraju/batchtrack/internal/api"
	"github.com/kiranshivaraju/batchtrack/internal/api/handler"
	mw "github.com/kiranshivaraju/batchtrack/internal/api/middleware"
	"github.com/kiranshivaraju/batchtrack/internal/api/response"
	"github.com/kiranshivaraju/batchtrack/internal/batch"
	"github.com/kiranshivaraju/batchtrack/internal/cache"
	"github.com/kiranshivaraju/batchtrack/internal/config"
	"github.com/kiranshivaraju/batchtrack/internal/store"
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
	// 1. Load config, failing fast on anything invalid
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"rate_limit_rpm", cfg.Server.RateLimitRPM,
		"batch_cache_ttl", cfg.Cache.BatchTTL.String(),
	)

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
	if err := store.RunMigrations(cfg.Database.URL, cfg.Server.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied", "dir", cfg.Server.MigrationsDir)

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

	// 5. Build store and batch service
	pgStore := store.NewPostgresStore(pool)
	batches := batch.NewService(pgStore, redisCache, cfg.Cache.BatchTTL)

	// 6. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitRPM),

		HealthHandler: healthHandler(pgStore, redisCache),

		CreateBatch:    handler.NewCreateBatchHandler(batches),
		ListBatches:    handler.NewListBatchesHandler(batches),
		GetBatch:       handler.NewGetBatchHandler(batches),
		UpdatePhase:    handler.NewUpdatePhaseHandler(batches),
		FinishBatch:    handler.NewFinishBatchHandler(batches),
		DeleteBatch:    handler.NewDeleteBatchHandler(batches),
		BatchMovements: handler.NewBatchMovementsHandler(batches),

		CreateIngredient:    handler.NewCreateIngredientHandler(pgStore),
		GetIngredient:       handler.NewGetIngredientHandler(pgStore),
		CreateIngredientMix: handler.NewCreateIngredientMixHandler(pgStore),
		GetIngredientMix:    handler.NewGetIngredientMixHandler(pgStore),
		CreateProduct:       handler.NewCreateProductHandler(pgStore),
		GetProduct:          handler.NewGetProductHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
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

// pinger is anything whose backing connection can be checked.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			slog.Warn("health check failed", "service", "database", "error", err)
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			slog.Warn("health check failed", "service", "cache", "error", err)
			checks["cache"] = "degraded"
		}

		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
