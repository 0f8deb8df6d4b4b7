package imageproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"io"

	"github.com/disintegration/imaging"
	"github.com/vincent-petithory/dataurl"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// MaxPixels bounds the decoded size of an encoded source. Larger images are
// rejected from their header, before any pixel memory is allocated.
const MaxPixels = 50_000_000

// frameEncodeQuality is the quality of the intermediate encoding used to
// measure the original size of a captured frame.
const frameEncodeQuality = 92

// Source is an input to the processor: a File, a RawImage or a DataURL.
type Source interface {
	// Describe names the source in errors and logs.
	Describe() string

	load(ctx context.Context) (image.Image, int64, error)
}

// File is an uploaded file held in memory.
type File struct {
	Name string
	Data []byte
}

// ReadFile reads r fully into a File.
func ReadFile(name string, r io.Reader) (File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return File{}, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return File{Name: name, Data: data}, nil
}

func (f File) Describe() string {
	if f.Name == "" {
		return "file"
	}
	return f.Name
}

func (f File) load(ctx context.Context) (image.Image, int64, error) {
	img, err := decodeBytes(f.Data)
	if err != nil {
		return nil, 0, &DecodeError{Source: f.Describe(), Err: err}
	}
	return img, int64(len(f.Data)), nil
}

// RawImage is an unencoded still, typically a captured camera frame.
type RawImage struct {
	Image image.Image
}

func (r RawImage) Describe() string { return "camera frame" }

func (r RawImage) load(ctx context.Context) (image.Image, int64, error) {
	if r.Image == nil {
		return nil, 0, &DecodeError{Source: r.Describe(), Err: errors.New("no pixel data")}
	}
	b := r.Image.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, 0, &DecodeError{Source: r.Describe(), Err: errors.New("zero dimensions")}
	}

	// Original size is the frame as the camera widget would have encoded it.
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, r.Image, imaging.JPEG, imaging.JPEGQuality(frameEncodeQuality)); err != nil {
		return nil, 0, &DecodeError{Source: r.Describe(), Err: err}
	}
	return r.Image, int64(buf.Len()), nil
}

// DataURL is an already encoded image in data URL form.
type DataURL string

func (d DataURL) Describe() string { return "data url" }

func (d DataURL) load(ctx context.Context) (image.Image, int64, error) {
	payload, _, err := d.Payload()
	if err != nil {
		return nil, 0, err
	}
	img, err := decodeBytes(payload)
	if err != nil {
		return nil, 0, &DecodeError{Source: d.Describe(), Err: err}
	}
	return img, int64(len(payload)), nil
}

// Payload returns the encoded bytes and their content type.
func (d DataURL) Payload() ([]byte, string, error) {
	parsed, err := dataurl.DecodeString(string(d))
	if err != nil {
		return nil, "", &DecodeError{Source: d.Describe(), Err: err}
	}
	return parsed.Data, parsed.ContentType(), nil
}

// DecodeDataURL decodes the image carried by a data URL.
func DecodeDataURL(s string) (image.Image, error) {
	img, _, err := DataURL(s).load(context.Background())
	return img, err
}

func decodeBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty input")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, MaxPixels)
	}
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}
