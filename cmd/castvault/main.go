package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"castvault/internal/config"
	"castvault/internal/database"
	"castvault/internal/downloader"
	"castvault/internal/episodes"
	"castvault/internal/feeds"
	"castvault/internal/itunes"
	"castvault/internal/offlinecache"
	"castvault/internal/playback"
	"castvault/internal/prefs"
	"castvault/internal/subscriptions"
	"castvault/internal/web"
)

// version identifies the build; the offline cache is keyed by it so an
// upgrade invalidates stale cached responses.
const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup structured logging
	setupLogging(cfg.LogLevel, cfg.LogFile)

	slog.Info("Starting castvault", "version", version)

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()

	// Initialize the offline cache and purge caches of other versions
	cache := offlinecache.NewStore(cfg.CacheDir, version)
	if err := cache.Activate(); err != nil {
		return fmt.Errorf("failed to activate offline cache: %w", err)
	}

	// Initialize services
	episodeSvc := episodes.NewService(db)
	orchestrator := downloader.NewOrchestrator(db, downloader.NewBroker(), cache, cfg.MaxConcurrentDownloads)
	subscriptionSvc := subscriptions.NewService(db, feeds.NewFetcher(), episodeSvc)

	server := web.NewServer(cfg, web.Deps{
		DB:            db,
		Orchestrator:  orchestrator,
		Subscriptions: subscriptionSvc,
		Episodes:      episodeSvc,
		Playback:      playback.NewTracker(db),
		Cache:         cache,
		Prefs:         prefs.NewStore(cfg.PrefsPath),
		ITunes:        itunes.NewClient(""),
		WhatsNewCount: cfg.WhatsNewCount,
	})

	return runServer(server, orchestrator, db)
}

func runServer(server *web.Server, orchestrator *downloader.Orchestrator, db *database.DB) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reconcile durable download state from the previous session and resume
	// the queue
	if err := orchestrator.Recover(); err != nil {
		slog.Error("Failed to recover download state", "error", err)
	}

	// Start stale transfer-record cleanup routine (runs daily)
	go startProgressCleanup(ctx, db)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	}

	// Stop background work, then drain HTTP connections
	cancel()
	orchestrator.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// setupLogging configures structured logging. With a log file configured,
// output goes through a size-capped rotating writer.
func setupLogging(level, logFile string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if logFile != "" {
		out = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    20, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

// startProgressCleanup drops terminal transfer records older than the
// retention window so the progress table stays small.
func startProgressCleanup(ctx context.Context, db *database.DB) {
	const retention = 30 * 24 * time.Hour

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	cleanup := func() {
		removed, err := db.DeleteStaleDownloadProgress(retention)
		if err != nil {
			slog.Error("Failed to clean up stale download progress", "error", err)
			return
		}
		if removed > 0 {
			slog.Info("Cleaned up stale download progress records", "count", removed)
		}
	}

	// Run cleanup immediately on startup
	cleanup()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Progress cleanup routine shutting down")
			return
		case <-ticker.C:
			cleanup()
		}
	}
}
