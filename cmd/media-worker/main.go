package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mikeyudex/erp-totalmotors/internal/app"
	"github.com/Mikeyudex/erp-totalmotors/internal/config"
	"github.com/Mikeyudex/erp-totalmotors/internal/dbosruntime"
	"github.com/Mikeyudex/erp-totalmotors/internal/ledger"
	"github.com/Mikeyudex/erp-totalmotors/internal/log"
	"github.com/Mikeyudex/erp-totalmotors/internal/publish"
)

// Media service whose publish runs are durable DBOS workflows on
// PostgreSQL, deduplicated through the publish ledger table.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.L().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)
	logger := log.Component("media-worker")

	// Initialize DBOS runtime (required)
	if cfg.DatabaseURL == "" {
		logger.Error("DBOS_SYSTEM_DATABASE_URL is required")
		os.Exit(1)
	}

	a := app.New(cfg)
	defer a.Close()

	store, err := a.Store()
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	dbosRuntime, err := dbosruntime.NewRuntime(context.Background(), dbosruntime.Config{
		DatabaseURL: cfg.DatabaseURL,
		AppName:     "media-worker",
		QueueName:   cfg.QueueName,
		Concurrency: cfg.Concurrency,
	})
	if err != nil {
		logger.Error("failed to initialize DBOS", "error", err)
		os.Exit(1)
	}

	l, err := ledger.New(context.Background(), dbosRuntime.DB())
	if err != nil {
		logger.Error("failed to initialize publish ledger", "error", err)
		os.Exit(1)
	}

	// Registers the publish workflow with DBOS
	runner := publish.NewRunner(a.Publisher(store, l), dbosRuntime)

	// Launch DBOS (must be done after workflow registration)
	if err := dbosRuntime.Launch(); err != nil {
		logger.Error("failed to launch DBOS", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbosRuntime.Shutdown(10 * time.Second); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: a.Handler(runner, "worker", dbosRuntime.Ping),
	}

	// Start server in goroutine
	go func() {
		logger.Info("media worker starting", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}
