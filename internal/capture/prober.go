package capture

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Mikeyudex/erp-totalmotors/internal/log"
)

// Prober enumerates cameras and negotiates streams.
type Prober struct {
	platform Platform
	logger   *slog.Logger
}

// NewProber creates a prober over platform.
func NewProber(platform Platform) *Prober {
	return &Prober{
		platform: platform,
		logger:   log.Component("capture.prober"),
	}
}

// ListCameras returns the current device list. Empty labels mean the user
// has not granted permission yet; the list is still usable.
func (p *Prober) ListCameras(ctx context.Context) ([]Device, error) {
	devices, err := p.platform.Devices(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	for _, d := range devices {
		if d.Degraded() {
			p.logger.Debug("device labels withheld, permission not granted yet", "count", len(devices))
			break
		}
	}
	return devices, nil
}

// StreamConstraints builds the request for a device id or facing hint.
// A named device is requested exactly; otherwise the facing mode is a hint
// with ideal and minimum resolutions.
func StreamConstraints(deviceID string, facing FacingMode) Constraints {
	if deviceID != "" {
		return Constraints{DeviceID: deviceID}
	}
	if facing == "" {
		facing = FacingEnvironment
	}
	return Constraints{
		FacingMode:  facing,
		IdealWidth:  IdealWidth,
		IdealHeight: IdealHeight,
		MinWidth:    MinWidth,
		MinHeight:   MinHeight,
	}
}

// Negotiate opens a stream. Every failure is an *UnavailableError.
func (p *Prober) Negotiate(ctx context.Context, deviceID string, facing FacingMode) (Stream, error) {
	c := StreamConstraints(deviceID, facing)
	stream, err := p.platform.Open(ctx, c)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &UnavailableError{Reason: "camera request cancelled", Err: ctx.Err()}
		}
		p.logger.Warn("stream negotiation failed", "device_id", deviceID, "facing_mode", facing, "error", err)
		return nil, unavailable(err)
	}
	if stream == nil {
		return nil, unavailable(errors.New("platform returned no stream"))
	}
	p.logger.Info("stream negotiated", "device_id", stream.DeviceID(), "facing_mode", c.FacingMode)
	return stream, nil
}
