package imageproc

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"

	"github.com/disintegration/imaging"
)

// ErrNoEncoder is wrapped in an EncodeError when a format has no registered encoder.
var ErrNoEncoder = errors.New("no encoder registered for format")

// Encoder writes img in one output format. Quality is in (0,1].
type Encoder interface {
	Encode(w io.Writer, img image.Image, quality float64) error
}

// EncoderFunc adapts a function to the Encoder interface.
type EncoderFunc func(w io.Writer, img image.Image, quality float64) error

func (f EncoderFunc) Encode(w io.Writer, img image.Image, quality float64) error {
	return f(w, img, quality)
}

// JPEGEncoder encodes baseline JPEG with quality mapped onto 1-100.
var JPEGEncoder = EncoderFunc(func(w io.Writer, img image.Image, quality float64) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(QualityPercent(quality)))
})

// PNGEncoder is lossless; low quality settings trade CPU for a smaller file.
var PNGEncoder = EncoderFunc(func(w io.Writer, img image.Image, quality float64) error {
	level := png.DefaultCompression
	if quality < 0.5 {
		level = png.BestCompression
	}
	return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(level))
})

// QualityPercent maps a (0,1] quality onto the 1-100 scale used by codecs.
func QualityPercent(quality float64) int {
	q := int(math.Round(quality * 100))
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

func defaultEncoders() map[Format]Encoder {
	return map[Format]Encoder{
		FormatJPEG: JPEGEncoder,
		FormatPNG:  PNGEncoder,
	}
}

func noEncoder(f Format) error {
	return fmt.Errorf("%w: %s", ErrNoEncoder, f)
}
