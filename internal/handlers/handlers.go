// Package handlers exposes the image picker, the camera, the collection and
// publishing over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Mikeyudex/erp-totalmotors/internal/acquisition"
	"github.com/Mikeyudex/erp-totalmotors/internal/capture"
	"github.com/Mikeyudex/erp-totalmotors/internal/collection"
	"github.com/Mikeyudex/erp-totalmotors/internal/dbosruntime"
	"github.com/Mikeyudex/erp-totalmotors/internal/imageproc"
	"github.com/Mikeyudex/erp-totalmotors/internal/log"
	"github.com/Mikeyudex/erp-totalmotors/internal/publish"
	"github.com/Mikeyudex/erp-totalmotors/pkg/media"
)

// MaxUploadBytes bounds a multipart upload request.
const MaxUploadBytes = 64 << 20

// Publisher runs publish requests.
type Publisher interface {
	Run(ctx context.Context, req media.PublishRequest) (*media.PublishResult, error)
	RunAsync(ctx context.Context, req media.PublishRequest) (string, error)
	Status(ctx context.Context, runID string) (*media.RunStatus, error)
	Durable() bool
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	coordinator *acquisition.Coordinator
	collection  *collection.Collection
	presets     *imageproc.Registry
	notices     *acquisition.Recorder
	publisher   Publisher
	metrics     http.Handler
	ping        func(context.Context) error
	mode        string
	logger      *slog.Logger
}

// Deps are the components served by a Handler.
type Deps struct {
	Coordinator *acquisition.Coordinator
	Collection  *collection.Collection
	Presets     *imageproc.Registry
	Notices     *acquisition.Recorder
	Publisher   Publisher
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Mode is reported by /health, e.g. "standalone" or "worker".
	Mode string
	// Ping, when set, makes /health report the database connection.
	Ping func(context.Context) error
}

// New creates a handler.
func New(d Deps) *Handler {
	return &Handler{
		coordinator: d.Coordinator,
		collection:  d.Collection,
		presets:     d.Presets,
		notices:     d.Notices,
		publisher:   d.Publisher,
		metrics:     d.Metrics,
		ping:        d.Ping,
		mode:        d.Mode,
		logger:      log.Component("handlers"),
	}
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.handleHealth)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	mux.HandleFunc("GET /v1/presets", h.handlePresets)
	mux.HandleFunc("PUT /v1/options", h.handleSetOptions)

	mux.HandleFunc("GET /v1/images", h.handleImages)
	mux.HandleFunc("DELETE /v1/images/{index}", h.handleRemoveImage)

	mux.HandleFunc("GET /v1/picker", h.handlePickerState)
	mux.HandleFunc("POST /v1/picker/open", h.handleOpen)
	mux.HandleFunc("POST /v1/picker/mode", h.handleMode)
	mux.HandleFunc("POST /v1/picker/close", h.handleClose)
	mux.HandleFunc("POST /v1/picker/upload", h.handleUpload)

	mux.HandleFunc("GET /v1/camera/devices", h.handleDevices)
	mux.HandleFunc("POST /v1/camera/capture", h.handleCapture)
	mux.HandleFunc("POST /v1/camera/switch", h.handleSwitch)
	mux.HandleFunc("POST /v1/camera/facing", h.handleFacing)
	mux.HandleFunc("POST /v1/camera/retry", h.handleRetry)

	if h.publisher != nil {
		mux.HandleFunc("POST /v1/publish", h.handlePublish)
		mux.HandleFunc("GET /v1/runs/{id}", h.handleRunStatus)
	}
	return mux
}

// handleHealth returns health status
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			h.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"mode":   h.mode,
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"mode":   h.mode,
	})
}

func (h *Handler) presetsResponse() media.PresetsResponse {
	resp := media.PresetsResponse{Current: toOptions(h.coordinator.Options())}
	for _, p := range h.presets.All() {
		resp.Presets = append(resp.Presets, media.Preset{Name: p.Name, Label: p.Label, Options: toOptions(p.Options())})
	}
	return resp
}

// handlePresets handles GET /v1/presets
func (h *Handler) handlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.presetsResponse())
}

// handleSetOptions handles PUT /v1/options - selects a preset and/or
// overrides individual fields for later images
func (h *Handler) handleSetOptions(w http.ResponseWriter, r *http.Request) {
	var req media.OptionsOverride
	if !h.decode(w, r, &req) {
		return
	}
	opts, err := fromOverride(h.presets, h.coordinator.Options(), req)
	if err == nil {
		err = h.coordinator.SetOptions(opts)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("processing options changed", "preset", req.Preset, "width", opts.Width, "height", opts.Height, "format", opts.Format)
	writeJSON(w, http.StatusOK, h.presetsResponse())
}

func (h *Handler) imagesResponse() media.ImagesResponse {
	items := h.collection.Items()
	return media.ImagesResponse{
		Images:    items,
		Count:     len(items),
		Remaining: collection.MaxImages - len(items),
	}
}

// handleImages handles GET /v1/images
func (h *Handler) handleImages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.imagesResponse())
}

// handleRemoveImage handles DELETE /v1/images/{index}
func (h *Handler) handleRemoveImage(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: %q", collection.ErrIndexOutOfRange, r.PathValue("index")))
		return
	}
	if err := h.collection.RemoveAt(i); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.imagesResponse())
}

func (h *Handler) pickerState() media.PickerState {
	return toPickerState(h.coordinator.State(), h.notices.Recent())
}

// handlePickerState handles GET /v1/picker
func (h *Handler) handlePickerState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pickerState())
}

func (h *Handler) decodeMode(w http.ResponseWriter, r *http.Request) (acquisition.Mode, bool) {
	var req media.ModeRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return "", false
	}
	mode, err := acquisition.ParseMode(req.Mode)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, media.ErrorResponse{Error: err.Error()})
		return "", false
	}
	return mode, true
}

// handleOpen handles POST /v1/picker/open
func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	mode, ok := h.decodeMode(w, r)
	if !ok {
		return
	}
	if err := h.coordinator.Open(r.Context(), mode); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.pickerState())
}

// handleMode handles POST /v1/picker/mode
func (h *Handler) handleMode(w http.ResponseWriter, r *http.Request) {
	mode, ok := h.decodeMode(w, r)
	if !ok {
		return
	}
	if err := h.coordinator.SetMode(r.Context(), mode); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.pickerState())
}

// handleClose handles POST /v1/picker/close
func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	h.coordinator.Close()
	writeJSON(w, http.StatusOK, h.pickerState())
}

// handleUpload handles POST /v1/picker/upload with multipart "files"
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, media.ErrorResponse{Error: fmt.Sprintf("Invalid upload: %v", err)})
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, media.ErrorResponse{Error: "files is required"})
		return
	}

	files := make([]imageproc.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.writeError(w, err)
			return
		}
		file, err := imageproc.ReadFile(fh.Filename, f)
		f.Close()
		if err != nil {
			h.writeError(w, err)
			return
		}
		files = append(files, file)
	}

	results, err := h.coordinator.Upload(r.Context(), files)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUploadResponse(results))
}

// handleDevices handles GET /v1/camera/devices
func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.coordinator.Devices(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDevices(devices))
}

// handleCapture handles POST /v1/camera/capture
func (h *Handler) handleCapture(w http.ResponseWriter, r *http.Request) {
	img, err := h.coordinator.Capture(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toImage(img))
}

// handleSwitch handles POST /v1/camera/switch
func (h *Handler) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req media.SwitchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.DeviceID == "" {
		writeJSON(w, http.StatusBadRequest, media.ErrorResponse{Error: "device_id is required"})
		return
	}
	h.cameraOp(w, h.coordinator.SwitchDevice(r.Context(), req.DeviceID))
}

// handleFacing handles POST /v1/camera/facing
func (h *Handler) handleFacing(w http.ResponseWriter, r *http.Request) {
	h.cameraOp(w, h.coordinator.ToggleFacing(r.Context()))
}

// handleRetry handles POST /v1/camera/retry
func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	h.cameraOp(w, h.coordinator.Retry(r.Context()))
}

func (h *Handler) cameraOp(w http.ResponseWriter, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.pickerState())
}

// handlePublish handles POST /v1/publish - publishes the given images, or
// the collection when none are given
func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req media.PublishRequest
	if !h.decode(w, r, &req) {
		return
	}
	fromCollection := len(req.Images) == 0
	var snapshot []string
	if fromCollection {
		snapshot = h.collection.Items()
		req.Images = snapshot
	}
	if err := publish.Validate(req); err != nil {
		h.writeError(w, err)
		return
	}

	if h.publisher.Durable() {
		runID, err := h.publisher.RunAsync(r.Context(), req)
		if err != nil {
			h.logger.Error("failed to enqueue publish", "product_sku", req.ProductSKU, "error", err)
			h.writeError(w, err)
			return
		}
		if fromCollection && !req.Keep {
			h.releasePublished(snapshot)
		}
		writeJSON(w, http.StatusAccepted, media.PublishResponse{RunID: runID, Status: media.RunEnqueued})
		return
	}

	result, err := h.publisher.Run(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if fromCollection && !req.Keep && result.Failed == 0 {
		h.releasePublished(snapshot)
	}
	writeJSON(w, http.StatusOK, media.PublishResponse{RunID: result.RunID, Status: media.RunCompleted, Result: result})
}

// releasePublished drops the published images from the collection. Images
// added during the publish stay.
func (h *Handler) releasePublished(snapshot []string) {
	if !h.collection.TrimPrefix(snapshot) {
		h.logger.Info("collection changed during publish, keeping images", "published", len(snapshot))
	}
}

// handleRunStatus handles GET /v1/runs/{id}
func (h *Handler) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.publisher.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, media.ErrorResponse{Error: fmt.Sprintf("Invalid request: %v", err)})
		return false
	}
	return true
}

// writeError answers with the status for err and the matching notice.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "error", err)
	}
	notice := toNotice(acquisition.NoticeFor(err))
	writeJSON(w, status, media.ErrorResponse{Error: err.Error(), Notice: &notice})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, acquisition.ErrCollectionFull),
		errors.Is(err, acquisition.ErrNotOpen),
		errors.Is(err, acquisition.ErrWrongMode),
		errors.Is(err, acquisition.ErrSkipped),
		errors.Is(err, capture.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, imageproc.ErrDecode),
		errors.Is(err, imageproc.ErrInvalidOptions),
		errors.Is(err, imageproc.ErrUnknownPreset),
		errors.Is(err, collection.ErrIndexOutOfRange),
		errors.Is(err, publish.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, imageproc.ErrNoEncoder),
		errors.Is(err, imageproc.ErrEncode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dbosruntime.ErrWorkflowNotFound):
		return http.StatusNotFound
	case errors.Is(err, publish.ErrAsyncUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, capture.ErrCameraUnavailable),
		errors.Is(err, capture.ErrPermissionDenied),
		errors.Is(err, capture.ErrNoDevice),
		errors.Is(err, capture.ErrConstraintsUnsatisfiable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
