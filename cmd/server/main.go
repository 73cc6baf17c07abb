package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"merkaz/internal/server/api"
	"merkaz/internal/server/auth"
	"merkaz/internal/server/config"
	"merkaz/internal/server/database"
	"merkaz/internal/server/ledger"
	"merkaz/internal/server/metrics"
	"merkaz/internal/server/presence"
	"merkaz/internal/server/service"
	"merkaz/internal/server/storage"
)

func main() {
	// Load config
	cfg := config.Load()

	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("configuration loaded",
		"port", cfg.Port,
		"staging_path", cfg.StagingPath,
		"shared_path", cfg.SharedPath,
		"upload_ledger", cfg.UploadLedgerPath,
		"decline_ledger", cfg.DeclineLedgerPath,
		"max_upload_size", cfg.MaxUploadSize,
		"presence_backend", cfg.PresenceBackend,
	)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// User directory: Postgres when configured, otherwise in memory
	var (
		directory database.Directory
		health    api.HealthChecker
	)
	if cfg.DatabaseURL != "" {
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("database migrations complete")
		directory = database.NewRepository(db)
		health = db
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory user directory")
		directory = database.NewMemoryDirectory()
	}

	// Initialize storage
	staging := storage.NewFileSystemStore(cfg.StagingPath)
	shared := storage.NewFileSystemStore(cfg.SharedPath)
	for _, store := range []*storage.FileSystemStore{staging, shared} {
		if err := store.EnsureDir(); err != nil {
			slog.Error("failed to initialize storage", "error", err)
			os.Exit(1)
		}
	}
	slog.Info("file storage initialized", "staging", staging.Root(), "shared", shared.Root())

	// Presence
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	var (
		tracker presence.Store
		sweeper *presence.Sweeper
	)
	switch cfg.PresenceBackend {
	case "redis":
		client, err := presence.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer client.Close()
		tracker = presence.NewRedisStore(client, cfg.PresenceStaleAfter)
	default:
		mem := presence.NewMemoryStore(cfg.PresenceStaleAfter)
		tracker = mem
		if cfg.PresenceStaleAfter > 0 && cfg.PresenceSweepInterval > 0 {
			sweeper = presence.NewSweeper(mem, cfg.PresenceSweepInterval)
			sweeper.Start(sweepCtx)
		}
	}

	// Ledgers and services
	uploads := ledger.NewUploadLedger(cfg.UploadLedgerPath)
	declines := ledger.NewDeclineLedger(cfg.DeclineLedgerPath)
	intake := service.NewUploadService(uploads, staging, directory, cfg)
	review := service.NewReviewService(uploads, declines, staging, shared, directory)

	// Setup HTTP router
	m := metrics.New()
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	handler := api.NewHandler(intake, review, tracker, directory, m, health)
	e := api.SetupRouter(handler, cfg, issuer, m)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop presence sweeper
	sweepCancel()
	if sweeper != nil {
		sweeper.Wait()
	}

	slog.Info("server exited cleanly")
}
