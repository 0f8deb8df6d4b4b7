package capture

import (
	"errors"
	"fmt"
)

// Sentinel errors for capture failures.
var (
	// ErrCameraUnavailable is matched by every *UnavailableError.
	ErrCameraUnavailable = errors.New("capture: camera unavailable")

	// ErrPermissionDenied is returned by platforms when the user refused camera access.
	ErrPermissionDenied = errors.New("capture: permission denied")

	// ErrNoDevice is returned by platforms when no camera is present.
	ErrNoDevice = errors.New("capture: no camera found")

	// ErrConstraintsUnsatisfiable is returned by platforms when no camera matches the request.
	ErrConstraintsUnsatisfiable = errors.New("capture: constraints unsatisfiable")

	// ErrNotReady is returned by CaptureFrame before the stream delivers frames.
	ErrNotReady = errors.New("capture: session not ready")

	// ErrSuperseded is returned by Start when a later Start or Stop invalidated it.
	ErrSuperseded = errors.New("capture: request superseded")
)

// UnavailableError reports a failed stream negotiation. Callers must not
// assume any partial success.
type UnavailableError struct {
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("capture: camera unavailable: %s", e.Reason)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is reports whether target is ErrCameraUnavailable.
func (e *UnavailableError) Is(target error) bool { return target == ErrCameraUnavailable }

// unavailable wraps a platform failure with a human-readable reason.
func unavailable(err error) *UnavailableError {
	return &UnavailableError{Reason: reasonFor(err), Err: err}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "camera permission denied"
	case errors.Is(err, ErrNoDevice):
		return "no camera found"
	case errors.Is(err, ErrConstraintsUnsatisfiable):
		return "no camera matches the requested resolution or device"
	case err == nil:
		return "unknown error"
	default:
		return err.Error()
	}
}
