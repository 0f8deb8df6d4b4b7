package capture_test

import (
	"context"
	"errors"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mikeyudex/erp-totalmotors/internal/capture"
)

var (
	rear  = capture.Device{ID: "cam-rear", Label: "Rear Camera"}
	front = capture.Device{ID: "cam-front", Label: "Front Camera"}
)

func newSession(p *capture.MockPlatform) *capture.Session {
	return capture.NewSession(capture.NewProber(p))
}

func TestSessionStartBecomesActive(t *testing.T) {
	p := capture.NewMockPlatform(rear, front)
	s := newSession(p)

	var seen []capture.Status
	var mu sync.Mutex
	s.OnStateChange = func(st capture.State) {
		mu.Lock()
		seen = append(seen, st.Status)
		mu.Unlock()
	}

	require.NoError(t, s.Start(context.Background(), ""))

	st := s.State()
	assert.Equal(t, capture.StatusActive, st.Status)
	assert.Equal(t, "cam-rear", st.DeviceID)
	assert.Equal(t, capture.FacingEnvironment, st.FacingMode)
	assert.Equal(t, 1, p.Live())

	mu.Lock()
	assert.Equal(t, []capture.Status{capture.StatusStarting, capture.StatusActive}, seen)
	mu.Unlock()

	c := p.Constraints()
	require.Len(t, c, 1)
	assert.Equal(t, capture.StreamConstraints("", capture.FacingEnvironment), c[0])
}

func TestCaptureBeforeActiveFailsNotReady(t *testing.T) {
	p := capture.NewMockPlatform(rear)
	p.ManualReady = true
	s := newSession(p)

	_, err := s.CaptureFrame()
	assert.ErrorIs(t, err, capture.ErrNotReady)

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background(), "") }()

	require.Eventually(t, func() bool { return len(p.Streams()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, capture.StatusStarting, s.State().Status)
	_, err = s.CaptureFrame()
	assert.ErrorIs(t, err, capture.ErrNotReady)

	p.Streams()[0].MarkReady()
	require.NoError(t, <-done)

	frame, err := s.CaptureFrame()
	require.NoError(t, err)
	assert.Equal(t, 1280, frame.Width)
	assert.Equal(t, 720, frame.Height)
	assert.Equal(t, 1280, frame.Image.Bounds().Dx())
}

func TestCaptureFrameUndoesMirroring(t *testing.T) {
	for _, mirrored := range []bool{false, true} {
		p := capture.NewMockPlatform(front)
		p.Mirror = mirrored
		p.Width, p.Height = 64, 32
		s := newSession(p)
		require.NoError(t, s.Start(context.Background(), ""))

		frame, err := s.CaptureFrame()
		require.NoError(t, err)
		assert.Equal(t, color.NRGBA{R: 255, A: 255}, frame.Image.NRGBAAt(1, 16), "mirrored=%v", mirrored)
		assert.Equal(t, color.NRGBA{B: 255, A: 255}, frame.Image.NRGBAAt(62, 16), "mirrored=%v", mirrored)
	}
}

func TestCaptureFrameErrorIsNotReady(t *testing.T) {
	p := capture.NewMockPlatform(rear)
	s := newSession(p)
	require.NoError(t, s.Start(context.Background(), ""))

	p.Streams()[0].FrameErr = errors.New("no frame decoded")
	_, err := s.CaptureFrame()
	assert.ErrorIs(t, err, capture.ErrNotReady)
}

func TestStopIdleIsNoop(t *testing.T) {
	s := newSession(capture.NewMockPlatform(rear))
	calls := 0
	s.OnStateChange = func(capture.State) { calls++ }

	s.Stop()
	s.Stop()

	assert.Equal(t, capture.StatusIdle, s.State().Status)
	assert.Zero(t, calls)
}

func TestStopReleasesTracks(t *testing.T) {
	p := capture.NewMockPlatform(rear)
	s := newSession(p)
	require.NoError(t, s.Start(context.Background(), ""))
	require.Equal(t, 1, p.Live())

	s.Stop()

	assert.Equal(t, 0, p.Live())
	assert.Equal(t, capture.StatusIdle, s.State().Status)
	_, err := s.CaptureFrame()
	assert.ErrorIs(t, err, capture.ErrNotReady)
}

func TestStartTwiceNeverHoldsTwoStreams(t *testing.T) {
	p := capture.NewMockPlatform(rear, front)
	s := newSession(p)

	require.NoError(t, s.Start(context.Background(), ""))
	require.NoError(t, s.Start(context.Background(), ""))
	require.NoError(t, s.SwitchDevice(context.Background(), "cam-front"))

	assert.Equal(t, 1, p.MaxLive())
	assert.Equal(t, 1, p.Live())
	assert.Len(t, p.Streams(), 3)
	assert.Equal(t, "cam-front", s.State().DeviceID)
}

func TestConcurrentStartsNeverHoldTwoStreams(t *testing.T) {
	p := capture.NewMockPlatform(rear, front)
	s := newSession(p)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := rear.ID
			if i%2 == 1 {
				id = front.ID
			}
			_ = s.Start(context.Background(), id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, p.MaxLive())
	assert.Equal(t, 1, p.Live())
	assert.Equal(t, capture.StatusActive, s.State().Status)
}

func TestStopDuringNegotiationReleasesLateStream(t *testing.T) {
	p := capture.NewMockPlatform(rear)
	p.Gate = make(chan struct{})
	s := newSession(p)

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background(), "") }()
	require.Eventually(t, func() bool { return len(p.Constraints()) == 1 }, time.Second, time.Millisecond)

	s.Stop()
	assert.Equal(t, capture.StatusIdle, s.State().Status)

	close(p.Gate)
	assert.ErrorIs(t, <-done, capture.ErrSuperseded)

	assert.Equal(t, 0, p.Live())
	assert.Equal(t, capture.StatusIdle, s.State().Status)
}

func TestStopWhileWaitingForFrames(t *testing.T) {
	p := capture.NewMockPlatform(rear)
	p.ManualReady = true
	s := newSession(p)

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background(), "") }()
	require.Eventually(t, func() bool { return len(p.Streams()) == 1 }, time.Second, time.Millisecond)

	s.Stop()
	require.Eventually(t, func() bool { return p.Live() == 0 }, time.Second, time.Millisecond)
	p.Streams()[0].MarkReady()

	assert.ErrorIs(t, <-done, capture.ErrSuperseded)
	assert.Equal(t, capture.StatusIdle, s.State().Status)
}

func TestStartAfterStopDoesNotWaitForStalledStream(t *testing.T) {
	p := capture.NewMockPlatform(rear)
	p.ManualReady = true
	s := newSession(p)

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background(), "") }()
	require.Eventually(t, func() bool { return len(p.Streams()) == 1 }, time.Second, time.Millisecond)

	s.Stop()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, capture.ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("Start still blocked after Stop")
	}

	p.ManualReady = false
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Start(ctx, ""))
	assert.Equal(t, capture.StatusActive, s.State().Status)
	assert.Equal(t, 1, p.Live())
}

func TestStartSupersedesStalledStart(t *testing.T) {
	p := capture.NewMockPlatform(rear, front)
	p.ManualReady = true
	s := newSession(p)

	first := make(chan error, 1)
	go func() { first <- s.Start(context.Background(), rear.ID) }()
	require.Eventually(t, func() bool { return len(p.Streams()) == 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- s.Start(context.Background(), front.ID) }()
	require.Eventually(t, func() bool { return len(p.Streams()) == 2 }, time.Second, time.Millisecond)
	assert.ErrorIs(t, <-first, capture.ErrSuperseded)

	p.Streams()[1].MarkReady()
	require.NoError(t, <-second)

	st := s.State()
	assert.Equal(t, capture.StatusActive, st.Status)
	assert.Equal(t, front.ID, st.DeviceID)
	assert.Equal(t, 1, p.MaxLive())
}

func TestNegotiationRejectedThenRetry(t *testing.T) {
	p := capture.NewMockPlatform(rear)
	p.OpenErr = capture.ErrPermissionDenied
	s := newSession(p)

	err := s.Start(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, capture.ErrCameraUnavailable)
	assert.ErrorIs(t, err, capture.ErrPermissionDenied)

	st := s.State()
	assert.Equal(t, capture.StatusError, st.Status)
	assert.NotEmpty(t, st.Error)
	assert.Equal(t, 0, p.Live())

	p.OpenErr = nil
	var statuses []capture.Status
	s.OnStateChange = func(st capture.State) { statuses = append(statuses, st.Status) }

	require.NoError(t, s.Retry(context.Background()))
	assert.Equal(t, []capture.Status{capture.StatusStarting, capture.StatusActive}, statuses)
	assert.Empty(t, s.State().Error)
}

func TestStartUnknownDevice(t *testing.T) {
	p := capture.NewMockPlatform(rear)
	s := newSession(p)

	err := s.Start(context.Background(), "cam-missing")
	assert.ErrorIs(t, err, capture.ErrConstraintsUnsatisfiable)
	assert.Equal(t, capture.StatusError, s.State().Status)
	assert.Equal(t, capture.Constraints{DeviceID: "cam-missing"}, p.Constraints()[0])
}

func TestStartFailsWhenNoFramesArrive(t *testing.T) {
	p := capture.NewMockPlatform(rear)
	p.ManualReady = true
	s := newSession(p)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Start(ctx, "")
	assert.ErrorIs(t, err, capture.ErrCameraUnavailable)
	assert.Equal(t, capture.StatusError, s.State().Status)
	assert.Equal(t, 0, p.Live())
}

func TestToggleFacing(t *testing.T) {
	p := capture.NewMockPlatform(rear, front)
	s := newSession(p)
	require.NoError(t, s.Start(context.Background(), ""))

	require.NoError(t, s.ToggleFacing(context.Background()))

	assert.Equal(t, capture.FacingUser, s.State().FacingMode)
	c := p.Constraints()
	assert.Equal(t, capture.FacingUser, c[len(c)-1].FacingMode)
	assert.Equal(t, 1, p.Live())
}
