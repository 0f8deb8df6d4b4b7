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
	"github.com/Mikeyudex/erp-totalmotors/internal/ledger"
	"github.com/Mikeyudex/erp-totalmotors/internal/log"
	"github.com/Mikeyudex/erp-totalmotors/internal/publish"
)

// Standalone media service for a single workstation.
// Publishing runs inline and duplicates are tracked in memory.
// No database needed.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.L().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)
	logger := log.Component("media-standalone")

	logger.Info("media standalone service",
		"storage", cfg.Storage,
		"storage_dir", cfg.StorageDir,
		"camera", cfg.Camera,
		"http_addr", cfg.HTTPAddr)

	a := app.New(cfg)
	defer a.Close()

	store, err := a.Store()
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	runner := publish.NewRunner(a.Publisher(store, ledger.NewMemory()), nil)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: a.Handler(runner, "standalone", nil),
	}

	// Start server in goroutine
	go func() {
		logger.Info("media service ready", "addr", cfg.HTTPAddr)
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
