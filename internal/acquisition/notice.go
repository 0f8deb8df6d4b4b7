package acquisition

import (
	"errors"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Mikeyudex/erp-totalmotors/internal/capture"
	"github.com/Mikeyudex/erp-totalmotors/internal/collection"
	"github.com/Mikeyudex/erp-totalmotors/internal/imageproc"
)

// Severity of a user-facing notice.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notice is a message for the toast surface. Retry marks camera failures
// that can be retried with one click.
type Notice struct {
	Severity Severity  `json:"severity"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Retry    bool      `json:"retry,omitempty"`
	Time     time.Time `json:"time"`
}

// Notifier receives notices.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// NoticeFor maps an error from the acquisition core to a specific message.
func NoticeFor(err error) Notice {
	n := Notice{Severity: SeverityError, Time: time.Now()}

	var ue *capture.UnavailableError
	var de *imageproc.DecodeError
	var ee *imageproc.EncodeError
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		n.Title = "Camera access denied"
		n.Message = "Allow camera access for this site in your browser or system settings, then retry."
		n.Retry = true
	case errors.Is(err, capture.ErrNoDevice):
		n.Title = "No camera found"
		n.Message = "Connect a camera or use the upload option instead."
		n.Retry = true
	case errors.Is(err, capture.ErrConstraintsUnsatisfiable):
		n.Title = "Camera not supported"
		n.Message = "The selected camera cannot deliver at least 640x480. Choose another camera and retry."
		n.Retry = true
	case errors.As(err, &ue):
		n.Title = "Could not access the camera"
		n.Message = "Camera unavailable: " + ue.Reason + ". Check that no other application is using it and retry."
		n.Retry = true
	case errors.Is(err, capture.ErrNotReady):
		n.Severity = SeverityWarning
		n.Title = "Camera not ready"
		n.Message = "Wait until the preview shows an image, then capture again."
	case errors.Is(err, imageproc.ErrTooLarge):
		n.Title = "Image too large"
		n.Message = "The image has more than " + humanize.Comma(imageproc.MaxPixels) + " pixels. Resize it before uploading."
	case errors.As(err, &de):
		n.Title = "Unreadable image"
		n.Message = de.Source + " could not be decoded. Choose a JPEG, PNG or WebP image."
	case errors.Is(err, imageproc.ErrNoEncoder):
		n.Title = "Output format unavailable"
		n.Message = "This installation cannot write the selected format. Choose JPEG or PNG."
	case errors.As(err, &ee):
		n.Title = "Could not compress image"
		n.Message = "Encoding as " + string(ee.Format) + " failed. Try another quality or format."
	case errors.Is(err, imageproc.ErrInvalidOptions):
		n.Title = "Invalid image settings"
		n.Message = err.Error()
	case errors.Is(err, ErrCollectionFull):
		n.Severity = SeverityWarning
		n.Title = "Image limit reached"
		n.Message = "A product can have at most 4 images. Remove one to add another."
	case errors.Is(err, collection.ErrIndexOutOfRange):
		n.Title = "Image not found"
		n.Message = "The image you tried to remove no longer exists."
	case errors.Is(err, ErrNotOpen):
		n.Severity = SeverityWarning
		n.Title = "Image picker closed"
		n.Message = "Open the image picker first."
	case errors.Is(err, ErrWrongMode):
		n.Severity = SeverityWarning
		n.Title = "Wrong picker mode"
		n.Message = "Switch the picker to the matching mode first."
	default:
		n.Title = "Image could not be added"
		n.Message = err.Error()
	}
	return n
}

// Recorder keeps the most recent notices for polling clients.
type Recorder struct {
	mu      sync.Mutex
	max     int
	notices []Notice
}

// NewRecorder keeps up to max notices.
func NewRecorder(max int) *Recorder {
	if max <= 0 {
		max = 20
	}
	return &Recorder{max: max}
}

func (r *Recorder) Notify(n Notice) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	if over := len(r.notices) - r.max; over > 0 {
		r.notices = append(r.notices[:0], r.notices[over:]...)
	}
}

// Recent returns the retained notices, oldest first.
func (r *Recorder) Recent() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}
