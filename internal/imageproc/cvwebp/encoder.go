// Package cvwebp encodes WebP through OpenCV. The standard library and
// x/image only decode WebP, so the binaries register this encoder when they
// are built with OpenCV available.
package cvwebp

import (
	"fmt"
	"image"
	"io"

	"gocv.io/x/gocv"

	"github.com/Mikeyudex/erp-totalmotors/internal/imageproc"
)

// Encoder implements imageproc.Encoder for WebP.
type Encoder struct{}

// Encode writes img as lossy WebP. Quality 1.0 is mapped to 100, which
// OpenCV treats as lossless.
func (Encoder) Encode(w io.Writer, img image.Image, quality float64) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("convert to mat: %w", err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.WebpFileExt, mat, []int{
		int(gocv.IMWriteWebpQuality), imageproc.QualityPercent(quality),
	})
	if err != nil {
		return fmt.Errorf("opencv webp encode: %w", err)
	}
	defer buf.Close()

	_, err = w.Write(buf.GetBytes())
	return err
}

// Option returns the processor option that registers this encoder.
func Option() imageproc.Option {
	return imageproc.WithEncoder(imageproc.FormatWebP, Encoder{})
}
