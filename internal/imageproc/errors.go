package imageproc

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode is matched by every *DecodeError.
	ErrDecode = errors.New("imageproc: decode failed")

	// ErrEncode is matched by every *EncodeError.
	ErrEncode = errors.New("imageproc: encode failed")

	// ErrTooLarge is wrapped by a DecodeError for sources above MaxPixels.
	ErrTooLarge = errors.New("imageproc: image dimensions too large")

	// ErrInvalidOptions is returned when processing options break a preset invariant.
	ErrInvalidOptions = errors.New("imageproc: invalid options")

	// ErrUnknownPreset is returned when a preset name is not in the registry.
	ErrUnknownPreset = errors.New("imageproc: unknown preset")
)

// DecodeError reports a source that could not be read as an image.
type DecodeError struct {
	// Source describes the input (file name, "camera frame", "data url").
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("imageproc: decode %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is reports whether target is ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// EncodeError reports an encoder that rejected the requested format/quality.
type EncodeError struct {
	Format  Format
	Quality float64
	Err     error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("imageproc: encode %s (quality %.2f): %v", e.Format, e.Quality, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Is reports whether target is ErrEncode.
func (e *EncodeError) Is(target error) bool { return target == ErrEncode }
