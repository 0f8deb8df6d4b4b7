// Package acquisition runs the image picker: it offers upload and camera as
// two mutually exclusive modes, feeds every image through the processor and
// hands accepted results to the collection.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mikeyudex/erp-totalmotors/internal/capture"
	"github.com/Mikeyudex/erp-totalmotors/internal/collection"
	"github.com/Mikeyudex/erp-totalmotors/internal/imageproc"
	"github.com/Mikeyudex/erp-totalmotors/internal/log"
)

var (
	// ErrCollectionFull is returned by Open when no more images fit.
	ErrCollectionFull = errors.New("acquisition: image limit reached")

	// ErrNotOpen is returned by operations that need an open picker.
	ErrNotOpen = errors.New("acquisition: picker is not open")

	// ErrWrongMode is returned when an operation does not match the current mode.
	ErrWrongMode = errors.New("acquisition: operation not available in this mode")

	// ErrDiscarded marks a result that resolved after the picker was closed
	// or reopened.
	ErrDiscarded = errors.New("acquisition: result discarded")

	// ErrSkipped marks files beyond the remaining capacity.
	ErrSkipped = errors.New("acquisition: file skipped, image limit reached")
)

// Mode of the picker.
type Mode string

const (
	ModeUpload Mode = "upload"
	ModeCamera Mode = "camera"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeUpload, ModeCamera:
		return Mode(s), nil
	case "":
		return ModeUpload, nil
	}
	return "", fmt.Errorf("unknown picker mode %q", s)
}

// Processor normalizes images.
type Processor interface {
	Process(ctx context.Context, src imageproc.Source, opts imageproc.Options, progress imageproc.ProgressFunc) (*imageproc.ProcessedImage, error)
}

// Camera is the capture session used in camera mode.
type Camera interface {
	Start(ctx context.Context, deviceID string) error
	Stop()
	SwitchDevice(ctx context.Context, deviceID string) error
	ToggleFacing(ctx context.Context) error
	Retry(ctx context.Context) error
	CaptureFrame() (capture.Frame, error)
	Devices(ctx context.Context) ([]capture.Device, error)
	State() capture.State
}

// Collector stores accepted images.
type Collector interface {
	Add(dataURL string) bool
	Len() int
}

// Config for a Coordinator.
type Config struct {
	Options imageproc.Options

	// ShowCompressionInfo emits a success notice with the compression
	// metrics of every accepted image.
	ShowCompressionInfo bool

	// OnProgress receives processing progress per source.
	OnProgress func(source string, fraction float64)
}

// Result is the outcome for one uploaded file.
type Result struct {
	Name  string                    `json:"name"`
	Image *imageproc.ProcessedImage `json:"image,omitempty"`
	Err   error                     `json:"-"`
}

// State is a snapshot of the picker.
type State struct {
	Open      bool              `json:"open"`
	Mode      Mode              `json:"mode"`
	Count     int               `json:"count"`
	Remaining int               `json:"remaining"`
	CanAdd    bool              `json:"can_add"`
	Camera    capture.State     `json:"camera"`
	Options   imageproc.Options `json:"options"`
}

// Coordinator is the picker workflow. Closing or reopening the picker bumps
// an epoch; results that resolve under an older epoch are discarded.
type Coordinator struct {
	processor Processor
	camera    Camera
	collector Collector
	notifier  Notifier
	logger    *slog.Logger

	mu       sync.Mutex
	open     bool
	mode     Mode
	epoch    uint64
	opts     imageproc.Options
	showInfo bool
	progress func(string, float64)
}

// New creates a closed coordinator.
func New(p Processor, cam Camera, c Collector, n Notifier, cfg Config) *Coordinator {
	if n == nil {
		n = NotifierFunc(func(Notice) {})
	}
	return &Coordinator{
		processor: p,
		camera:    cam,
		collector: c,
		notifier:  n,
		logger:    log.Component("acquisition"),
		mode:      ModeUpload,
		opts:      cfg.Options,
		showInfo:  cfg.ShowCompressionInfo,
		progress:  cfg.OnProgress,
	}
}

// Open shows the picker in mode. It fails with ErrCollectionFull once the
// collection holds the maximum number of images.
func (c *Coordinator) Open(ctx context.Context, mode Mode) error {
	if c.collector.Len() >= collection.MaxImages {
		c.notifier.Notify(NoticeFor(ErrCollectionFull))
		return ErrCollectionFull
	}

	c.mu.Lock()
	if c.open && c.mode == ModeCamera && mode != ModeCamera {
		c.camera.Stop()
	}
	c.open = true
	c.mode = mode
	c.epoch++
	c.mu.Unlock()

	c.logger.Info("picker opened", "mode", mode)
	if mode == ModeCamera {
		c.startCamera(ctx, "")
	}
	return nil
}

// SetMode switches between upload and camera. Leaving camera mode stops the
// session.
func (c *Coordinator) SetMode(ctx context.Context, mode Mode) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ErrNotOpen
	}
	prev := c.mode
	c.mode = mode
	if prev == ModeCamera && mode != ModeCamera {
		c.camera.Stop()
	}
	c.mu.Unlock()

	if mode == ModeCamera && prev != ModeCamera {
		c.startCamera(ctx, "")
	}
	return nil
}

// Close stops the camera unconditionally, then marks the picker closed.
func (c *Coordinator) Close() {
	c.camera.Stop()

	c.mu.Lock()
	wasOpen := c.open
	c.open = false
	c.epoch++
	c.mu.Unlock()

	if wasOpen {
		c.logger.Info("picker closed")
	}
}

// Upload processes up to the remaining capacity of files; extras are
// reported as ErrSkipped. Each file fails independently. The picker closes
// after the batch.
func (c *Coordinator) Upload(ctx context.Context, files []imageproc.File) ([]Result, error) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil, ErrNotOpen
	}
	if c.mode != ModeUpload {
		c.mu.Unlock()
		return nil, ErrWrongMode
	}
	epoch := c.epoch
	opts := c.opts
	c.mu.Unlock()

	limit := collection.MaxImages - c.collector.Len()
	if limit < 0 {
		limit = 0
	}

	results := make([]Result, len(files))
	accepted := 0
	for i, f := range files {
		results[i].Name = f.Describe()
		if i >= limit {
			results[i].Err = ErrSkipped
			continue
		}
		img, err := c.accept(ctx, epoch, f, opts)
		results[i].Image = img
		results[i].Err = err
		if err == nil {
			accepted++
		}
	}
	if skipped := len(files) - limit; skipped > 0 {
		c.logger.Info("ignored files beyond image limit", "skipped", skipped)
	}
	c.logger.Info("upload batch finished", "files", len(files), "accepted", accepted)

	if c.current(epoch) {
		c.Close()
	}
	return results, nil
}

// Capture takes one still from the camera and processes it. The session
// stays open for further captures until the collection is full.
func (c *Coordinator) Capture(ctx context.Context) (*imageproc.ProcessedImage, error) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil, ErrNotOpen
	}
	if c.mode != ModeCamera {
		c.mu.Unlock()
		return nil, ErrWrongMode
	}
	epoch := c.epoch
	opts := c.opts
	c.mu.Unlock()

	frame, err := c.camera.CaptureFrame()
	if err != nil {
		c.notifier.Notify(NoticeFor(err))
		return nil, err
	}
	img, err := c.accept(ctx, epoch, imageproc.RawImage{Image: frame.Image}, opts)
	if err != nil {
		return nil, err
	}
	if c.collector.Len() >= collection.MaxImages && c.current(epoch) {
		c.Close()
	}
	return img, nil
}

// accept processes src and adds the result unless the epoch moved on.
func (c *Coordinator) accept(ctx context.Context, epoch uint64, src imageproc.Source, opts imageproc.Options) (*imageproc.ProcessedImage, error) {
	var progress imageproc.ProgressFunc
	if c.progress != nil {
		name := src.Describe()
		progress = func(f float64) { c.progress(name, f) }
	}

	start := time.Now()
	img, err := c.processor.Process(ctx, src, opts, progress)
	if err != nil {
		c.logger.Warn("image rejected", "source", src.Describe(), "error", err)
		c.notifier.Notify(NoticeFor(err))
		return nil, err
	}
	if !c.current(epoch) {
		c.logger.Debug("discarded result of closed picker", "source", src.Describe())
		return nil, ErrDiscarded
	}
	if !c.collector.Add(img.DataURL) {
		c.notifier.Notify(NoticeFor(ErrCollectionFull))
		return nil, ErrSkipped
	}

	c.logger.Info("image accepted",
		"source", src.Describe(),
		"original_size", img.OriginalSize,
		"compressed_size", img.CompressedSize,
		"ratio", img.CompressionRatio,
		"duration", time.Since(start))
	if c.showInfo {
		c.notifier.Notify(Notice{
			Severity: SeveritySuccess,
			Title:    "Image optimized",
			Message:  img.Summary(),
			Time:     time.Now(),
		})
	}
	return img, nil
}

func (c *Coordinator) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open && c.epoch == epoch
}

func (c *Coordinator) startCamera(ctx context.Context, deviceID string) {
	c.cameraResult(c.camera.Start(ctx, deviceID))
}

func (c *Coordinator) cameraResult(err error) error {
	if err == nil || errors.Is(err, capture.ErrSuperseded) {
		return nil
	}
	c.notifier.Notify(NoticeFor(err))
	return err
}

func (c *Coordinator) requireCamera() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNotOpen
	}
	if c.mode != ModeCamera {
		return ErrWrongMode
	}
	return nil
}

// SwitchDevice restarts the camera on deviceID.
func (c *Coordinator) SwitchDevice(ctx context.Context, deviceID string) error {
	if err := c.requireCamera(); err != nil {
		return err
	}
	return c.cameraResult(c.camera.SwitchDevice(ctx, deviceID))
}

// ToggleFacing switches between front and rear cameras.
func (c *Coordinator) ToggleFacing(ctx context.Context) error {
	if err := c.requireCamera(); err != nil {
		return err
	}
	return c.cameraResult(c.camera.ToggleFacing(ctx))
}

// Retry re-enters starting after a camera failure.
func (c *Coordinator) Retry(ctx context.Context) error {
	if err := c.requireCamera(); err != nil {
		return err
	}
	return c.cameraResult(c.camera.Retry(ctx))
}

// Devices lists the cameras available for selection.
func (c *Coordinator) Devices(ctx context.Context) ([]capture.Device, error) {
	devices, err := c.camera.Devices(ctx)
	if err != nil {
		c.notifier.Notify(NoticeFor(err))
		return nil, err
	}
	return devices, nil
}

// SetOptions replaces the processing options for later images.
func (c *Coordinator) SetOptions(opts imageproc.Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.opts = opts
	c.mu.Unlock()
	return nil
}

// Options returns the current processing options.
func (c *Coordinator) Options() imageproc.Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// State returns a snapshot of the picker and its camera.
func (c *Coordinator) State() State {
	n := c.collector.Len()
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Open:      c.open,
		Mode:      c.mode,
		Count:     n,
		Remaining: collection.MaxImages - n,
		CanAdd:    n < collection.MaxImages,
		Camera:    c.camera.State(),
		Options:   c.opts,
	}
}
