package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"
)

// MockPlatform implements Platform for testing.
// It tracks how many streams are live at once.
type MockPlatform struct {
	// DeviceList is returned by Devices.
	DeviceList []Device
	// DevicesErr, if set, is returned by Devices.
	DevicesErr error
	// OpenErr, if set, is returned by Open.
	OpenErr error
	// Gate, if set, makes Open wait for a value (or ctx) before resolving.
	Gate chan struct{}
	// ManualReady makes streams wait for MockStream.MarkReady.
	ManualReady bool
	// Mirror makes streams deliver horizontally flipped frames.
	Mirror bool
	// Width and Height of delivered frames; default 1280x720.
	Width, Height int

	mu          sync.Mutex
	constraints []Constraints
	streams     []*MockStream
	live        int
	maxLive     int
}

// NewMockPlatform creates a mock with the given devices.
func NewMockPlatform(devices ...Device) *MockPlatform {
	return &MockPlatform{DeviceList: devices}
}

func (m *MockPlatform) Devices(ctx context.Context) ([]Device, error) {
	if m.DevicesErr != nil {
		return nil, m.DevicesErr
	}
	return append([]Device(nil), m.DeviceList...), nil
}

func (m *MockPlatform) Open(ctx context.Context, c Constraints) (Stream, error) {
	m.mu.Lock()
	m.constraints = append(m.constraints, c)
	openErr := m.OpenErr
	gate := m.Gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if openErr != nil {
		return nil, openErr
	}

	deviceID := c.DeviceID
	if deviceID == "" {
		if len(m.DeviceList) == 0 {
			return nil, ErrNoDevice
		}
		deviceID = m.DeviceList[0].ID
	} else if !m.hasDevice(deviceID) {
		return nil, ErrConstraintsUnsatisfiable
	}

	w, h := m.Width, m.Height
	if w == 0 || h == 0 {
		w, h = 1280, 720
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s := &MockStream{
		platform: m,
		id:       fmt.Sprintf("stream-%d", len(m.streams)+1),
		deviceID: deviceID,
		width:    w,
		height:   h,
		mirrored: m.Mirror,
		ready:    make(chan struct{}),
		stopped:  make(chan struct{}),
		live:     true,
	}
	if !m.ManualReady {
		close(s.ready)
	}
	m.streams = append(m.streams, s)
	m.live++
	if m.live > m.maxLive {
		m.maxLive = m.live
	}
	return s, nil
}

func (m *MockPlatform) hasDevice(id string) bool {
	for _, d := range m.DeviceList {
		if d.ID == id {
			return true
		}
	}
	return false
}

// SetOpenErr changes OpenErr while other goroutines may be opening streams.
func (m *MockPlatform) SetOpenErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenErr = err
}

// Live returns the number of streams with live tracks.
func (m *MockPlatform) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// MaxLive returns the highest number of simultaneously live streams seen.
func (m *MockPlatform) MaxLive() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxLive
}

// Streams returns every stream opened so far.
func (m *MockPlatform) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockStream(nil), m.streams...)
}

// Constraints returns every constraint set passed to Open.
func (m *MockPlatform) Constraints() []Constraints {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Constraints(nil), m.constraints...)
}

// MockStream is a single-track stream producing a two-colour test pattern:
// red on the left half of the scene, blue on the right.
type MockStream struct {
	platform *MockPlatform
	id       string
	deviceID string
	width    int
	height   int
	mirrored bool

	readyOnce sync.Once
	ready     chan struct{}
	stopped   chan struct{}

	// FrameErr, if set, is returned by Frame.
	FrameErr error

	live bool
}

// MarkReady releases WaitReady.
func (s *MockStream) MarkReady() {
	s.readyOnce.Do(func() {
		select {
		case <-s.ready:
		default:
			close(s.ready)
		}
	})
}

func (s *MockStream) DeviceID() string { return s.deviceID }

func (s *MockStream) Tracks() []Track { return []Track{mockTrack{s}} }

func (s *MockStream) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.stopped:
		return errors.New("stream stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MockStream) Frame() (image.Image, error) {
	if s.FrameErr != nil {
		return nil, s.FrameErr
	}
	if !s.Live() {
		return nil, errors.New("stream stopped")
	}
	img := imaging.New(s.width, s.height, color.NRGBA{B: 255, A: 255})
	left := imaging.New(s.width/2, s.height, color.NRGBA{R: 255, A: 255})
	img = imaging.Paste(img, left, image.Pt(0, 0))
	if s.mirrored {
		img = imaging.FlipH(img)
	}
	return img, nil
}

func (s *MockStream) Mirrored() bool { return s.mirrored }

// Live reports whether the stream's track is still running.
func (s *MockStream) Live() bool {
	s.platform.mu.Lock()
	defer s.platform.mu.Unlock()
	return s.live
}

type mockTrack struct{ s *MockStream }

func (t mockTrack) ID() string { return t.s.id + "/video" }

func (t mockTrack) Live() bool { return t.s.Live() }

func (t mockTrack) Stop() {
	m := t.s.platform
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.s.live {
		t.s.live = false
		m.live--
		close(t.s.stopped)
	}
}
