// Package cvcam is a capture.Platform over V4L2 cameras opened through OpenCV.
package cvcam

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/Mikeyudex/erp-totalmotors/internal/capture"
	"github.com/Mikeyudex/erp-totalmotors/internal/log"
)

const sysfsRoot = "/sys/class/video4linux"

// Platform enumerates /dev/video* devices and streams them with gocv.
type Platform struct {
	// MirrorUserFacing marks streams from user-facing cameras as mirrored.
	MirrorUserFacing bool

	root   string
	logger *slog.Logger
}

// New creates a platform reading devices from sysfs.
func New() *Platform {
	return &Platform{root: sysfsRoot, logger: log.Component("capture.cvcam")}
}

type node struct {
	index int
	dev   string
	label string
}

func (p *Platform) nodes() ([]node, error) {
	entries, err := os.ReadDir(p.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []node
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(name, "video"))
		if err != nil {
			continue
		}
		n := node{index: idx, dev: "/dev/" + name}
		// The label is only exposed to users who may open the device.
		if f, err := os.OpenFile(n.dev, os.O_RDWR, 0); err == nil {
			f.Close()
			if b, err := os.ReadFile(filepath.Join(p.root, name, "name")); err == nil {
				n.label = strings.TrimSpace(string(b))
			}
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out, nil
}

// Devices lists video nodes. Labels are empty for nodes the process cannot open.
func (p *Platform) Devices(ctx context.Context) ([]capture.Device, error) {
	nodes, err := p.nodes()
	if err != nil {
		return nil, fmt.Errorf("enumerate cameras: %w", err)
	}
	devices := make([]capture.Device, 0, len(nodes))
	for _, n := range nodes {
		devices = append(devices, capture.Device{ID: n.dev, Label: n.label})
	}
	return devices, nil
}

// Open starts a reader for the requested device, or for the best match of
// the facing hint.
func (p *Platform) Open(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	nodes, err := p.nodes()
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, capture.ErrNoDevice
	}

	n, ok := pick(nodes, c)
	if !ok {
		return nil, capture.ErrConstraintsUnsatisfiable
	}
	f, err := os.OpenFile(n.dev, os.O_RDWR, 0)
	if errors.Is(err, fs.ErrPermission) {
		return nil, capture.ErrPermissionDenied
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", n.dev, err)
	}
	f.Close()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCapture(n.index)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", n.dev, err)
	}
	if c.IdealWidth > 0 && c.IdealHeight > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.IdealWidth))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.IdealHeight))
	}
	w := int(vc.Get(gocv.VideoCaptureFrameWidth))
	h := int(vc.Get(gocv.VideoCaptureFrameHeight))
	if (c.MinWidth > 0 && w < c.MinWidth) || (c.MinHeight > 0 && h < c.MinHeight) {
		vc.Close()
		p.logger.Info("camera below minimum resolution", "device", n.dev, "width", w, "height", h)
		return nil, capture.ErrConstraintsUnsatisfiable
	}

	s := &stream{
		deviceID: n.dev,
		vc:       vc,
		mirrored: p.MirrorUserFacing && facingOf(n.label) == capture.FacingUser,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		live:     true,
		logger:   p.logger.With("device", n.dev),
	}
	go s.run()
	p.logger.Info("camera opened", "device", n.dev, "label", n.label, "width", w, "height", h)
	return s, nil
}

func pick(nodes []node, c capture.Constraints) (node, bool) {
	if c.DeviceID != "" {
		for _, n := range nodes {
			if n.dev == c.DeviceID {
				return n, true
			}
		}
		return node{}, false
	}
	for _, n := range nodes {
		if facingOf(n.label) == c.FacingMode {
			return n, true
		}
	}
	// The facing mode is only a preference.
	return nodes[0], true
}

// facingOf guesses the facing mode from a device label.
func facingOf(label string) capture.FacingMode {
	l := strings.ToLower(label)
	for _, hint := range []string{"front", "user", "facetime", "integrated", "webcam"} {
		if strings.Contains(l, hint) {
			return capture.FacingUser
		}
	}
	return capture.FacingEnvironment
}

type stream struct {
	deviceID string
	vc       *gocv.VideoCapture
	mirrored bool
	logger   *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	stopOnce  sync.Once

	mu     sync.Mutex
	latest image.Image
	live   bool
}

func (s *stream) run() {
	mat := gocv.NewMat()
	defer mat.Close()
	defer func() {
		s.mu.Lock()
		s.live = false
		s.mu.Unlock()
		s.vc.Close()
	}()

	for {
		select {
		case <-s.done:
			return
		default:
		}
		if ok := s.vc.Read(&mat); !ok {
			s.logger.Warn("camera read failed")
			s.stopOnce.Do(func() { close(s.done) })
			return
		}
		if mat.Empty() {
			continue
		}
		img, err := mat.ToImage()
		if err != nil {
			s.logger.Debug("frame conversion failed", "error", err)
			continue
		}
		s.mu.Lock()
		s.latest = img
		s.mu.Unlock()
		s.readyOnce.Do(func() { close(s.ready) })
	}
}

func (s *stream) DeviceID() string { return s.deviceID }

func (s *stream) Tracks() []capture.Track { return []capture.Track{track{s}} }

func (s *stream) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.done:
		return errors.New("stream stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return nil, errors.New("no frame yet")
	}
	return s.latest, nil
}

func (s *stream) Mirrored() bool { return s.mirrored }

type track struct{ s *stream }

func (t track) ID() string { return t.s.deviceID + "#video" }

func (t track) Stop() { t.s.stopOnce.Do(func() { close(t.s.done) }) }

func (t track) Live() bool {
	select {
	case <-t.s.done:
		return false
	default:
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.live
}
