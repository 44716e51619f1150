// Package main is the entry point for the photostore server.
// It loads configuration, connects to services, wires the catalog, starts
// the background workers and serves the API with graceful shutdown support.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"photostore/internal/cache"
	"photostore/internal/capacity"
	"photostore/internal/catalog"
	"photostore/internal/config"
	"photostore/internal/database"
	"photostore/internal/handlers"
	"photostore/internal/jobs"
	"photostore/internal/lock"
	"photostore/internal/mainitem"
	"photostore/internal/middleware"
	"photostore/internal/router"
	"photostore/internal/storage"
	"photostore/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured logger: text in development, JSON elsewhere.
	var handler slog.Handler
	if cfg.IsDev() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"lock_backend", cfg.LockBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.Connect(ctx, cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	if err := database.Seed(ctx, db); err != nil {
		slog.Error("failed to seed database", "error", err)
		os.Exit(1)
	}

	// Valkey backs the named locks, the category view cache and the upload
	// rate limiter.
	valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
	if err != nil {
		slog.Error("failed to connect to valkey", "error", err)
		os.Exit(1)
	}
	defer valkeyClient.Close()

	var locker lock.Locker
	switch cfg.LockBackend {
	case config.LockBackendLocal:
		slog.Warn("using process-local locks, run a single instance only")
		locker = lock.NewLocalLocker()
	default:
		locker = lock.NewRedisLocker(valkeyClient, 0)
	}
	categoryLock := lock.Options{Block: cfg.CategoryLockBlock, Lease: cfg.CategoryLockLease}
	accountLock := lock.Options{Block: cfg.AccountLockBlock, Lease: cfg.AccountLockLease}

	// Initialize data stores.
	categoryStore := store.NewCategoryStore(db)
	itemStore := store.NewItemStore(db)
	accountStore := store.NewAccountStore(db)

	views := cache.NewCategoryCache(valkeyClient, cache.DefaultCategoryTTL)
	invalidate := func(ctx context.Context, id uuid.UUID) { views.Invalidate(ctx, id) }

	engine := mainitem.New(categoryStore, itemStore, locker, categoryLock)
	engine.Notify(invalidate)

	queue := jobs.NewQueue(jobs.Options{
		Workers:     cfg.JobWorkers,
		MaxAttempts: cfg.JobMaxAttempts,
		Retryable:   catalog.Retryable,
	})
	// Jobs outlive the signal context so Stop can drain them.
	queue.Start(context.Background())

	remote := storage.NewProvider()
	selector := capacity.NewSelector(accountStore, locker, accountLock)
	refresher := capacity.NewRefresher(accountStore, remote, locker, accountLock)
	scheduler := capacity.NewScheduler(accountStore, refresher, queue, cfg.RefreshInterval)

	svc := catalog.New(catalog.Deps{
		Categories: categoryStore,
		Items:      itemStore,
		Accounts:   accountStore,
		Engine:     engine,
		Capacity:   selector,
		Remote:     remote,
		Queue:      queue,
		UploadDir:  cfg.UploadDir,
	})
	svc.Notify(invalidate)

	// Cached views may predate this process's schema or a crashed walk.
	views.InvalidateAll(ctx)

	if n, err := svc.ResumePending(ctx); err != nil {
		slog.Error("failed to resume pending uploads", "error", err)
	} else if n > 0 {
		slog.Info("resumed pending uploads", "count", n)
	}

	if err := scheduler.EnqueueAll(ctx); err != nil {
		slog.Warn("initial capacity refresh not queued", "error", err)
	}
	scheduler.Start(ctx)

	var uploadLimiter *middleware.RateLimiter
	if cfg.UploadRateLimit > 0 {
		uploadLimiter = middleware.NewRateLimiter(valkeyClient, "upload", cfg.UploadRateLimit, time.Minute)
		defer uploadLimiter.Stop()
	}

	api := handlers.NewAPI(svc, categoryStore, itemStore, accountStore, scheduler, views)
	r := router.New(api, router.Options{
		TokenHash:     cfg.AdminTokenHash,
		UploadLimiter: uploadLimiter,
		Checks: map[string]router.Check{
			"postgres": db.PingContext,
			"valkey":   func(ctx context.Context) error { return valkeyClient.Ping(ctx).Err() },
		},
	})

	// WriteTimeout leaves room for large multipart uploads.
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	// Give active requests and running jobs up to 30 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	scheduler.Stop()
	if err := queue.Stop(shutdownCtx); err != nil {
		slog.Warn("job queue did not drain", "error", err)
	}

	slog.Info("server stopped gracefully")
}
