// Package imageproc normalizes product images: it decodes an uploaded file,
// captured frame or data URL, fits it to a preset box, re-encodes it and
// reports before/after size metrics.
package imageproc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/vincent-petithory/dataurl"

	"github.com/Mikeyudex/erp-totalmotors/internal/log"
)

// Dimensions of an output image in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ProcessedImage is the immutable result of one Process call.
type ProcessedImage struct {
	DataURL          string     `json:"data_url"`
	Format           Format     `json:"format"`
	OriginalSize     int64      `json:"original_size"`
	CompressedSize   int64      `json:"compressed_size"`
	CompressionRatio float64    `json:"compression_ratio"`
	Dimensions       Dimensions `json:"dimensions"`
}

// Summary renders the compression metrics for display, e.g.
// "2.1 MB → 84 kB (96.0% smaller, 800x536)".
func (p *ProcessedImage) Summary() string {
	return fmt.Sprintf("%s → %s (%.1f%% smaller, %dx%d)",
		humanize.Bytes(uint64(p.OriginalSize)),
		humanize.Bytes(uint64(p.CompressedSize)),
		p.CompressionRatio,
		p.Dimensions.Width, p.Dimensions.Height)
}

// CompressionRatio returns (1 - compressed/original) * 100 clamped to [0, 100].
func CompressionRatio(originalSize, compressedSize int64) float64 {
	if originalSize <= 0 {
		return 0
	}
	ratio := (1 - float64(compressedSize)/float64(originalSize)) * 100
	return math.Max(0, math.Min(100, ratio))
}

// ProgressFunc receives fractional progress in [0,1].
type ProgressFunc func(fraction float64)

// Observer receives processing outcomes, e.g. for metrics.
type Observer interface {
	ObserveProcessed(img *ProcessedImage, elapsed time.Duration)
	ObserveFailure(stage string)
}

// Option configures a Processor.
type Option func(*Processor)

// WithEncoder registers or replaces the encoder for a format.
func WithEncoder(f Format, e Encoder) Option {
	return func(p *Processor) { p.encoders[f] = e }
}

// WithObserver attaches an observer.
func WithObserver(o Observer) Option {
	return func(p *Processor) { p.observer = o }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// Processor resizes and re-encodes images. It is safe for concurrent use.
type Processor struct {
	encoders map[Format]Encoder
	observer Observer
	logger   *slog.Logger
}

// New creates a processor with JPEG and PNG encoders registered.
func New(opts ...Option) *Processor {
	p := &Processor{
		encoders: defaultEncoders(),
		logger:   log.Component("imageproc"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Supports reports whether an encoder is registered for f.
func (p *Processor) Supports(f Format) bool {
	_, ok := p.encoders[f]
	return ok
}

// Process decodes src, fits it to opts and re-encodes it.
// DecodeError and EncodeError are terminal for this call only.
func (p *Processor) Process(ctx context.Context, src Source, opts Options, progress ProgressFunc) (*ProcessedImage, error) {
	start := time.Now()
	report := func(f float64) {
		if progress != nil {
			progress(f)
		}
	}

	if err := opts.Validate(); err != nil {
		p.fail("options")
		return nil, err
	}
	encoder, ok := p.encoders[opts.Format]
	if !ok {
		p.fail("encode")
		return nil, &EncodeError{Format: opts.Format, Quality: opts.Quality, Err: noEncoder(opts.Format)}
	}

	img, originalSize, err := src.load(ctx)
	if err != nil {
		p.fail("decode")
		p.logger.Warn("decode failed", "source", src.Describe(), "error", err)
		return nil, err
	}
	report(0.3)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := Fit(img, opts)
	report(0.6)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := encoder.Encode(&buf, out, opts.Quality); err != nil {
		p.fail("encode")
		return nil, &EncodeError{Format: opts.Format, Quality: opts.Quality, Err: err}
	}
	if buf.Len() == 0 {
		p.fail("encode")
		return nil, &EncodeError{Format: opts.Format, Quality: opts.Quality, Err: fmt.Errorf("encoder produced no data")}
	}
	report(0.9)

	compressedSize := int64(buf.Len())
	bounds := out.Bounds()
	result := &ProcessedImage{
		DataURL:          dataurl.New(buf.Bytes(), opts.Format.MIMEType()).String(),
		Format:           opts.Format,
		OriginalSize:     originalSize,
		CompressedSize:   compressedSize,
		CompressionRatio: CompressionRatio(originalSize, compressedSize),
		Dimensions:       Dimensions{Width: bounds.Dx(), Height: bounds.Dy()},
	}
	report(1)

	elapsed := time.Since(start)
	if p.observer != nil {
		p.observer.ObserveProcessed(result, elapsed)
	}
	p.logger.Debug("image processed",
		"source", src.Describe(),
		"format", opts.Format,
		"original_size", originalSize,
		"compressed_size", compressedSize,
		"ratio", fmt.Sprintf("%.1f", result.CompressionRatio),
		"elapsed", elapsed)

	return result, nil
}

func (p *Processor) fail(stage string) {
	if p.observer != nil {
		p.observer.ObserveFailure(stage)
	}
}

// Fit computes the output bitmap for opts.
//
// With MaintainAspectRatio the image is scaled down (never up) to fit the
// target box. When its aspect ratio differs from the box it is centred on a
// canvas of exactly the box size filled with the background colour; a source
// with the box's aspect ratio is returned at its fitted size. Without
// MaintainAspectRatio the image is stretched to the box.
func Fit(img image.Image, opts Options) *image.NRGBA {
	if !opts.MaintainAspectRatio {
		stretched := imaging.Resize(img, opts.Width, opts.Height, imaging.Lanczos)
		return flatten(stretched, opts)
	}

	fitted := imaging.Fit(img, opts.Width, opts.Height, imaging.Lanczos)
	if sameAspect(img.Bounds(), opts) {
		return flatten(fitted, opts)
	}
	canvas := imaging.New(opts.Width, opts.Height, opts.Background())
	return imaging.OverlayCenter(canvas, fitted, 1.0)
}

func sameAspect(b image.Rectangle, opts Options) bool {
	return int64(b.Dx())*int64(opts.Height) == int64(b.Dy())*int64(opts.Width)
}

// flatten composites translucent pixels over the background; JPEG has no alpha.
func flatten(img *image.NRGBA, opts Options) *image.NRGBA {
	if img.Opaque() {
		return img
	}
	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), opts.Background())
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}
