// Package app wires the acquisition core, storage and metrics into the HTTP
// service shared by the media binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tendant/simple-content/pkg/simplecontent/presets"

	"github.com/Mikeyudex/erp-totalmotors/internal/acquisition"
	"github.com/Mikeyudex/erp-totalmotors/internal/capture"
	"github.com/Mikeyudex/erp-totalmotors/internal/capture/cvcam"
	"github.com/Mikeyudex/erp-totalmotors/internal/collection"
	"github.com/Mikeyudex/erp-totalmotors/internal/config"
	"github.com/Mikeyudex/erp-totalmotors/internal/handlers"
	"github.com/Mikeyudex/erp-totalmotors/internal/imageproc"
	"github.com/Mikeyudex/erp-totalmotors/internal/imageproc/cvwebp"
	"github.com/Mikeyudex/erp-totalmotors/internal/ledger"
	"github.com/Mikeyudex/erp-totalmotors/internal/log"
	"github.com/Mikeyudex/erp-totalmotors/internal/metrics"
	"github.com/Mikeyudex/erp-totalmotors/internal/publish"
	"github.com/Mikeyudex/erp-totalmotors/internal/storage"
)

// App holds the long-lived components of a media service.
type App struct {
	Config      *config.Config
	Metrics     *metrics.Metrics
	Processor   *imageproc.Processor
	Session     *capture.Session
	Collection  *collection.Collection
	Notices     *acquisition.Recorder
	Coordinator *acquisition.Coordinator

	logger  *slog.Logger
	cleanup []func()
}

// New builds the acquisition core from cfg.
func New(cfg *config.Config) *App {
	a := &App{
		Config:     cfg,
		Metrics:    metrics.New(),
		Collection: collection.New(),
		Notices:    acquisition.NewRecorder(20),
		logger:     log.Component("app"),
	}

	a.Processor = imageproc.New(
		cvwebp.Option(),
		imageproc.WithObserver(a.Metrics),
	)

	var platform capture.Platform = capture.Disabled{}
	if cfg.Camera == config.CameraOpenCV {
		platform = cvcam.New()
	}
	a.Session = capture.NewSession(capture.NewProber(platform))
	a.Session.OnStateChange = a.Metrics.ObserveCameraState
	a.Collection.OnChange = a.Metrics.SetCollectionSize

	a.Coordinator = acquisition.New(a.Processor, a.Session, a.Collection, a.Notices, acquisition.Config{
		Options:             cfg.Options,
		ShowCompressionInfo: cfg.ShowCompressionInfo,
	})

	a.logger.Info("acquisition core ready",
		"preset", cfg.Preset,
		"width", cfg.Options.Width,
		"height", cfg.Options.Height,
		"format", cfg.Options.Format,
		"camera", cfg.Camera)
	return a
}

// Store opens the image store selected by the configuration.
func (a *App) Store() (storage.ImageStore, error) {
	switch a.Config.Storage {
	case config.StorageFilesystem:
		a.logger.Info("using filesystem storage", "dir", a.Config.StorageDir)
		return storage.NewFilesystemStore(a.Config.StorageDir)
	case config.StorageHTTP:
		a.logger.Info("using ERP API storage", "url", a.Config.APIURL)
		return storage.NewHTTPStore(a.Config.APIURL, a.Config.APIToken), nil
	case config.StorageContent:
		// In-memory repository + filesystem blobs
		svc, cleanup, err := presets.NewDevelopment(presets.WithDevStorage(a.Config.StorageDir))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize simple-content service: %w", err)
		}
		a.cleanup = append(a.cleanup, cleanup)
		a.logger.Info("using embedded simple-content storage", "dir", a.Config.StorageDir)
		return storage.NewContentStore(svc, a.Config.OwnerID, a.Config.TenantID), nil
	}
	return nil, fmt.Errorf("unknown storage %q", a.Config.Storage)
}

// Publisher creates a publisher over store that records outcomes and stores
// thumbnail renditions where the store supports them.
func (a *App) Publisher(store storage.ImageStore, l ledger.Store) *publish.Publisher {
	thumb, err := a.Config.Presets.Get(imageproc.PresetThumbnail)
	if err != nil {
		thumb = imageproc.DefaultPresets()[2]
	}
	return publish.NewPublisher(store,
		publish.WithLedger(l),
		publish.WithThumbnails(a.Processor, thumb.Options()),
		publish.WithOutcomeRecorder(a.Metrics.RecordPublish),
	)
}

// Handler returns the HTTP API served with pub.
func (a *App) Handler(pub handlers.Publisher, mode string, ping func(context.Context) error) http.Handler {
	return handlers.New(handlers.Deps{
		Coordinator: a.Coordinator,
		Collection:  a.Collection,
		Presets:     a.Config.Presets,
		Notices:     a.Notices,
		Publisher:   pub,
		Metrics:     a.Metrics.Handler(),
		Mode:        mode,
		Ping:        ping,
	}).Routes()
}

// Close stops the camera and releases storage.
func (a *App) Close() {
	a.Coordinator.Close()
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}
