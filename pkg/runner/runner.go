// Package runner lets other Go programs enqueue durable product-image
// publishing on the same DBOS queue the media worker serves.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/Mikeyudex/erp-totalmotors/internal/dbosruntime"
	"github.com/Mikeyudex/erp-totalmotors/internal/imageproc"
	"github.com/Mikeyudex/erp-totalmotors/internal/ledger"
	"github.com/Mikeyudex/erp-totalmotors/internal/publish"
	"github.com/Mikeyudex/erp-totalmotors/internal/storage"
	"github.com/Mikeyudex/erp-totalmotors/pkg/media"
)

// Config holds the configuration for initializing the publish runner
type Config struct {
	DatabaseURL        string // DBOS PostgreSQL connection string
	AppName            string // Application name for DBOS
	QueueName          string // DBOS queue name
	Concurrency        int    // Number of concurrent workers
	APIURL             string // ERP REST API receiving the images
	APIToken           string // Optional bearer token for the ERP API
	StorageDir         string // Used instead of APIURL when set
	ApplicationVersion string // Optional: Override binary hash for version matching
}

// Runner provides a high-level API for running publish workflows via DBOS
type Runner struct {
	runtime *dbosruntime.Runtime
	runner  *publish.Runner
}

// New creates and initializes a new publish runner with DBOS integration
func New(ctx context.Context, cfg Config) (*Runner, error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	// Create DBOS runtime
	dbosRuntime, err := dbosruntime.NewRuntime(ctx, dbosruntime.Config{
		DatabaseURL:        cfg.DatabaseURL,
		AppName:            cfg.AppName,
		QueueName:          cfg.QueueName,
		Concurrency:        cfg.Concurrency,
		ApplicationVersion: cfg.ApplicationVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DBOS: %w", err)
	}

	l, err := ledger.New(ctx, dbosRuntime.DB())
	if err != nil {
		dbosRuntime.Shutdown(time.Second)
		return nil, err
	}

	thumb, _ := imageproc.DefaultRegistry().Get(imageproc.PresetThumbnail)
	publisher := publish.NewPublisher(store,
		publish.WithLedger(l),
		publish.WithThumbnails(imageproc.New(), thumb.Options()),
	)

	// Register the publish workflow
	r := publish.NewRunner(publisher, dbosRuntime)

	// Launch DBOS (must be after workflow registration)
	if err := dbosRuntime.Launch(); err != nil {
		return nil, fmt.Errorf("failed to launch DBOS: %w", err)
	}

	return &Runner{
		runtime: dbosRuntime,
		runner:  r,
	}, nil
}

func newStore(cfg Config) (storage.ImageStore, error) {
	switch {
	case cfg.StorageDir != "":
		return storage.NewFilesystemStore(cfg.StorageDir)
	case cfg.APIURL != "":
		return storage.NewHTTPStore(cfg.APIURL, cfg.APIToken), nil
	}
	return nil, fmt.Errorf("either APIURL or StorageDir is required")
}

// Publish enqueues the images of a product and returns the run id
func (r *Runner) Publish(ctx context.Context, productSKU string, images []string) (string, error) {
	return r.runner.RunAsync(ctx, media.PublishRequest{
		ProductSKU: productSKU,
		Images:     images,
	})
}

// PublishFiles optimizes local files with opts and enqueues them
func (r *Runner) PublishFiles(ctx context.Context, productSKU string, opts imageproc.Options, files ...imageproc.File) (string, error) {
	proc := imageproc.New()
	images := make([]string, 0, len(files))
	for _, f := range files {
		img, err := proc.Process(ctx, f, opts, nil)
		if err != nil {
			return "", err
		}
		images = append(images, img.DataURL)
	}
	return r.Publish(ctx, productSKU, images)
}

// Status returns the state of a publish run
func (r *Runner) Status(ctx context.Context, runID string) (*media.RunStatus, error) {
	return r.runner.Status(ctx, runID)
}

// Shutdown waits for running publish workflows and closes the database.
func (r *Runner) Shutdown(timeoutSeconds int) error {
	if r.runtime == nil {
		return nil
	}
	return r.runtime.Shutdown(time.Duration(timeoutSeconds) * time.Second)
}
