package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/Mikeyudex/erp-totalmotors/internal/log"
)

// Status of a capture session.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusStarting Status = "starting"
	StatusActive   Status = "active"
	StatusError    Status = "error"
)

// State is the observable part of a session.
type State struct {
	Status     Status     `json:"status"`
	DeviceID   string     `json:"device_id,omitempty"`
	FacingMode FacingMode `json:"facing_mode"`
	Error      string     `json:"error,omitempty"`
}

// Frame is a still copied out of the live stream.
type Frame struct {
	Image    *image.NRGBA
	Width    int
	Height   int
	DeviceID string
}

// Session owns at most one live stream.
//
// Start calls are serialized, and every Start or Stop bumps a generation
// counter: a negotiation that resolves after its generation was superseded
// stops its stream on arrival instead of installing it. A new Start or Stop
// also cancels the context of the Start in flight, so requests never queue
// behind a camera that is slow to deliver frames.
type Session struct {
	id     string
	prober *Prober
	logger *slog.Logger

	// starting holds a token while a negotiation is in flight.
	starting chan struct{}

	mu        sync.Mutex
	gen       uint64
	requests  uint64
	cancel    context.CancelFunc
	stream    Stream
	state     State
	requested string

	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(State)
}

// NewSession creates an idle session preferring the environment camera.
func NewSession(prober *Prober) *Session {
	id := uuid.New().String()
	return &Session{
		id:       id,
		prober:   prober,
		logger:   log.Component("capture.session").With("session", id),
		starting: make(chan struct{}, 1),
		state:    State{Status: StatusIdle, FacingMode: FacingEnvironment},
	}
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// State returns a snapshot of the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Devices lists cameras through the session's prober.
func (s *Session) Devices(ctx context.Context) ([]Device, error) {
	return s.prober.ListCameras(ctx)
}

// Start tears down any existing stream and negotiates a new one. An empty
// deviceID uses the current facing mode as a hint. Start returns once the
// stream is active, failed, or was superseded (ErrSuperseded).
func (s *Session) Start(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	s.requests++
	ticket := s.requests
	s.gen++
	s.cancelLocked()
	s.mu.Unlock()

	select {
	case s.starting <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.starting }()

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	s.mu.Lock()
	if ticket != s.requests {
		// A later Start or Stop arrived while this one waited its turn.
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.cancel = cancel
	s.teardownLocked()
	s.gen++
	gen := s.gen
	s.requested = deviceID
	s.state = State{Status: StatusStarting, DeviceID: deviceID, FacingMode: s.state.FacingMode}
	facing := s.state.FacingMode
	s.mu.Unlock()
	s.publish()

	stream, err := s.prober.Negotiate(ctx, deviceID, facing)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		if stream != nil {
			stopStream(stream)
			s.logger.Debug("released stream that arrived after stop")
		}
		return ErrSuperseded
	}
	if err != nil {
		s.failLocked(err)
		s.mu.Unlock()
		s.publish()
		return err
	}
	s.stream = stream
	if id := stream.DeviceID(); id != "" {
		s.state.DeviceID = id
	}
	s.mu.Unlock()

	readyErr := stream.WaitReady(ctx)

	s.mu.Lock()
	if gen != s.gen {
		// Whoever bumped the generation already released the stream.
		s.mu.Unlock()
		return ErrSuperseded
	}
	if readyErr != nil {
		s.teardownLocked()
		err := &UnavailableError{Reason: "camera produced no frames", Err: readyErr}
		s.failLocked(err)
		s.mu.Unlock()
		s.publish()
		return err
	}
	s.state.Status = StatusActive
	s.state.Error = ""
	deviceID = s.state.DeviceID
	s.mu.Unlock()
	s.publish()

	s.logger.Info("camera active", "device_id", deviceID)
	return nil
}

// SwitchDevice stops the current stream and starts the named device.
func (s *Session) SwitchDevice(ctx context.Context, deviceID string) error {
	return s.Start(ctx, deviceID)
}

// ToggleFacing flips between the user and environment cameras and restarts.
func (s *Session) ToggleFacing(ctx context.Context) error {
	s.mu.Lock()
	s.state.FacingMode = s.state.FacingMode.Toggle()
	s.mu.Unlock()
	return s.Start(ctx, "")
}

// Retry restarts with the device of the last Start.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	deviceID := s.requested
	s.mu.Unlock()
	return s.Start(ctx, deviceID)
}

// Stop releases every track and returns to idle. Stopping an idle session
// is a no-op. A negotiation still in flight is invalidated.
func (s *Session) Stop() {
	s.mu.Lock()
	s.requests++
	s.gen++
	s.cancelLocked()
	changed := s.state.Status != StatusIdle || s.stream != nil
	s.teardownLocked()
	s.state.Status = StatusIdle
	s.state.Error = ""
	s.mu.Unlock()

	if changed {
		s.logger.Info("camera stopped")
		s.publish()
	}
}

// CaptureFrame copies the current frame at native resolution. Mirrored
// streams are flipped back so the still always shows the scene as a third
// party would see it.
func (s *Session) CaptureFrame() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != StatusActive || s.stream == nil {
		return Frame{}, ErrNotReady
	}
	img, err := s.stream.Frame()
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	if img == nil {
		return Frame{}, ErrNotReady
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return Frame{}, ErrNotReady
	}

	var still *image.NRGBA
	if s.stream.Mirrored() {
		still = imaging.FlipH(img)
	} else {
		still = imaging.Clone(img)
	}
	return Frame{Image: still, Width: b.Dx(), Height: b.Dy(), DeviceID: s.state.DeviceID}, nil
}

func (s *Session) cancelLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) teardownLocked() {
	if s.stream == nil {
		return
	}
	stopStream(s.stream)
	s.stream = nil
}

func (s *Session) failLocked(err error) {
	s.state.Status = StatusError
	var ue *UnavailableError
	if errors.As(err, &ue) {
		s.state.Error = ue.Reason
	} else {
		s.state.Error = err.Error()
	}
	s.logger.Warn("camera failed", "reason", s.state.Error)
}

func (s *Session) publish() {
	if s.OnStateChange == nil {
		return
	}
	s.OnStateChange(s.State())
}
