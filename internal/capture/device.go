// Package capture owns camera access for the image picker: device
// enumeration, stream negotiation with fallback constraints, and the capture
// session that turns a live stream into still frames.
package capture

import (
	"context"
	"image"
)

// FacingMode is a hint for which camera to prefer when no device is named.
type FacingMode string

const (
	FacingUser        FacingMode = "user"
	FacingEnvironment FacingMode = "environment"
)

// Toggle returns the opposite facing mode.
func (f FacingMode) Toggle() FacingMode {
	if f == FacingUser {
		return FacingEnvironment
	}
	return FacingUser
}

// Device is a capture device as enumerated by the platform.
type Device struct {
	ID    string `json:"device_id"`
	Label string `json:"label"`
}

// Degraded reports whether the label was withheld, which platforms do
// before the user has granted camera permission.
func (d Device) Degraded() bool { return d.Label == "" }

// Resolution bounds requested from the platform.
const (
	IdealWidth  = 1280
	IdealHeight = 720
	MinWidth    = 640
	MinHeight   = 480
)

// Constraints describe the stream requested from the platform.
type Constraints struct {
	// DeviceID, when set, requires that exact device.
	DeviceID string

	// FacingMode is a preference only; the platform may substitute.
	FacingMode FacingMode

	IdealWidth  int
	IdealHeight int
	MinWidth    int
	MinHeight   int
}

// Track is one media track of a stream.
type Track interface {
	ID() string
	Stop()
	Live() bool
}

// Stream is a live camera stream.
type Stream interface {
	// DeviceID is the device the platform actually opened.
	DeviceID() string
	Tracks() []Track

	// WaitReady blocks until the stream has decodable frame data.
	WaitReady(ctx context.Context) error

	// Frame returns the current frame at the source's native resolution,
	// with pixels as the device delivers them.
	Frame() (image.Image, error)

	// Mirrored reports whether delivered pixels are horizontally flipped
	// relative to the scene.
	Mirrored() bool
}

// Platform is the boundary to the operating system's media devices.
type Platform interface {
	Devices(ctx context.Context) ([]Device, error)
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Disabled is a Platform without cameras, used when capture is turned off.
type Disabled struct{}

func (Disabled) Devices(context.Context) ([]Device, error) { return nil, nil }

func (Disabled) Open(context.Context, Constraints) (Stream, error) { return nil, ErrNoDevice }

func stopStream(s Stream) {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
