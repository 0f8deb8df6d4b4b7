// Package media holds the wire types of the media service HTTP API.
package media

import "time"

// Picker modes.
const (
	ModeUpload = "upload"
	ModeCamera = "camera"
)

// Run states reported for publish runs.
const (
	RunCompleted = "completed"
	RunEnqueued  = "enqueued"
)

// Options are the processing options applied to every image.
type Options struct {
	Width               int     `json:"width"`
	Height              int     `json:"height"`
	Quality             float64 `json:"quality"`
	Format              string  `json:"format"`
	MaintainAspectRatio bool    `json:"maintain_aspect_ratio"`
	BackgroundColor     string  `json:"background_color"`
}

// OptionsOverride carries the fields a caller wants to change.
type OptionsOverride struct {
	Preset              string   `json:"preset,omitempty"`
	Width               *int     `json:"width,omitempty"`
	Height              *int     `json:"height,omitempty"`
	Quality             *float64 `json:"quality,omitempty"`
	Format              *string  `json:"format,omitempty"`
	MaintainAspectRatio *bool    `json:"maintain_aspect_ratio,omitempty"`
	BackgroundColor     *string  `json:"background_color,omitempty"`
}

// Preset is a named set of options.
type Preset struct {
	Name    string  `json:"name"`
	Label   string  `json:"label"`
	Options Options `json:"options"`
}

// PresetsResponse lists the registry and the options in effect.
type PresetsResponse struct {
	Presets []Preset `json:"presets"`
	Current Options  `json:"current"`
}

// Dimensions in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ProcessedImage is an accepted image with its compression metrics.
type ProcessedImage struct {
	DataURL          string     `json:"data_url"`
	Format           string     `json:"format"`
	OriginalSize     int64      `json:"original_size"`
	CompressedSize   int64      `json:"compressed_size"`
	CompressionRatio float64    `json:"compression_ratio"`
	Dimensions       Dimensions `json:"dimensions"`
	Summary          string     `json:"summary"`
}

// UploadResult is the outcome for one uploaded file.
type UploadResult struct {
	Name  string          `json:"name"`
	Image *ProcessedImage `json:"image,omitempty"`
	Error string          `json:"error,omitempty"`
}

// UploadResponse reports every file of an upload batch.
type UploadResponse struct {
	Results  []UploadResult `json:"results"`
	Accepted int            `json:"accepted"`
}

// Device is a selectable camera.
type Device struct {
	DeviceID string `json:"device_id"`
	Label    string `json:"label"`
}

// CameraState is the state of the capture session.
type CameraState struct {
	Status     string `json:"status"`
	DeviceID   string `json:"device_id,omitempty"`
	FacingMode string `json:"facing_mode"`
	Error      string `json:"error,omitempty"`
}

// Notice is a user-facing message.
type Notice struct {
	Severity string    `json:"severity"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Retry    bool      `json:"retry,omitempty"`
	Time     time.Time `json:"time"`
}

// PickerState describes the image picker.
type PickerState struct {
	Open      bool        `json:"open"`
	Mode      string      `json:"mode"`
	Count     int         `json:"count"`
	Remaining int         `json:"remaining"`
	CanAdd    bool        `json:"can_add"`
	Camera    CameraState `json:"camera"`
	Options   Options     `json:"options"`
	Notices   []Notice    `json:"notices"`
}

// ModeRequest selects a picker mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// SwitchRequest selects a camera.
type SwitchRequest struct {
	DeviceID string `json:"device_id"`
}

// ImagesResponse lists the accepted images in order.
type ImagesResponse struct {
	Images    []string `json:"images"`
	Count     int      `json:"count"`
	Remaining int      `json:"remaining"`
}

// PublishRequest asks to store a product's images. With no Images the
// service publishes its current collection.
type PublishRequest struct {
	ProductSKU string   `json:"product_sku"`
	Images     []string `json:"images,omitempty"`
	// Keep leaves the collection in place after a successful publish.
	Keep bool `json:"keep,omitempty"`
}

// ImageResult is the outcome for one published image.
type ImageResult struct {
	Position  int    `json:"position"`
	FileName  string `json:"file_name"`
	Digest    string `json:"digest,omitempty"`
	StoredID  string `json:"stored_id,omitempty"`
	Location  string `json:"location,omitempty"`
	Size      int64  `json:"size,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	VariantID string `json:"variant_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PublishResult summarizes one publish run.
type PublishResult struct {
	RunID      string        `json:"run_id"`
	ProductSKU string        `json:"product_sku"`
	Images     []ImageResult `json:"images"`
	Stored     int           `json:"stored"`
	Duplicates int           `json:"duplicates"`
	Failed     int           `json:"failed"`
}

// PublishResponse is returned by POST /v1/publish.
type PublishResponse struct {
	RunID  string         `json:"run_id"`
	Status string         `json:"status"`
	Result *PublishResult `json:"result,omitempty"`
}

// RunStatus is the state of a durable publish run.
type RunStatus struct {
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string  `json:"error"`
	Notice *Notice `json:"notice,omitempty"`
}
