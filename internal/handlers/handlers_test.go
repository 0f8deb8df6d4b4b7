package handlers_test

import (
	"bytes"
	"context"
	"errors"
	"encoding/json"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mikeyudex/erp-totalmotors/internal/acquisition"
	"github.com/Mikeyudex/erp-totalmotors/internal/capture"
	"github.com/Mikeyudex/erp-totalmotors/internal/collection"
	"github.com/Mikeyudex/erp-totalmotors/internal/handlers"
	"github.com/Mikeyudex/erp-totalmotors/internal/imageproc"
	"github.com/Mikeyudex/erp-totalmotors/internal/ledger"
	"github.com/Mikeyudex/erp-totalmotors/internal/publish"
	"github.com/Mikeyudex/erp-totalmotors/internal/storage"
	"github.com/Mikeyudex/erp-totalmotors/pkg/media"
)

type server struct {
	*httptest.Server
	collection *collection.Collection
	platform   *capture.MockPlatform
}

func newServer(t *testing.T) *server {
	t.Helper()
	platform := capture.NewMockPlatform(
		capture.Device{ID: "cam-rear", Label: "Rear"},
		capture.Device{ID: "cam-front", Label: ""},
	)
	platform.Width, platform.Height = 640, 480

	coll := collection.New()
	reg := imageproc.DefaultRegistry()
	thumb, err := reg.Get(imageproc.PresetThumbnail)
	require.NoError(t, err)

	notices := acquisition.NewRecorder(10)
	coord := acquisition.New(imageproc.New(), capture.NewSession(capture.NewProber(platform)), coll, notices,
		acquisition.Config{Options: thumb.Options(), ShowCompressionInfo: true})

	fs, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	runner := publish.NewRunner(publish.NewPublisher(fs, publish.WithLedger(ledger.NewMemory())), nil)

	h := handlers.New(handlers.Deps{
		Coordinator: coord,
		Collection:  coll,
		Presets:     reg,
		Notices:     notices,
		Publisher:   runner,
		Metrics:     http.NotFoundHandler(),
		Mode:        "standalone",
	})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(func() {
		coord.Close()
		srv.Close()
	})
	return &server{Server: srv, collection: coll, platform: platform}
}

func (s *server) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	} else {
		r = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, color.NRGBA{R: 90, G: 160, B: 30, A: 255}), imaging.JPEG))
	return buf.Bytes()
}

func (s *server) upload(t *testing.T, files map[string][]byte, out any) int {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, data := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(s.URL+"/v1/picker/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil, &body))
	assert.Equal(t, "standalone", body["mode"])
}

func TestHealthReportsDatabase(t *testing.T) {
	coll := collection.New()
	reg := imageproc.DefaultRegistry()
	wc, err := reg.Get(imageproc.PresetWooCommerce)
	require.NoError(t, err)
	coord := acquisition.New(imageproc.New(), capture.NewSession(capture.NewProber(capture.Disabled{})), coll, nil,
		acquisition.Config{Options: wc.Options()})
	h := handlers.New(handlers.Deps{
		Coordinator: coord,
		Collection:  coll,
		Presets:     reg,
		Notices:     acquisition.NewRecorder(1),
		Mode:        "worker",
		Ping:        func(context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestPresetsAndOptions(t *testing.T) {
	s := newServer(t)

	var presets media.PresetsResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/presets", nil, &presets))
	require.Len(t, presets.Presets, 3)
	assert.Equal(t, imageproc.PresetWooCommerce, presets.Presets[0].Name)
	assert.Equal(t, 300, presets.Current.Width)

	quality := 0.6
	format := "image/png"
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/v1/options",
		media.OptionsOverride{Preset: imageproc.PresetGallery, Quality: &quality, Format: &format}, &presets))
	assert.Equal(t, 1200, presets.Current.Width)
	assert.Equal(t, 0.6, presets.Current.Quality)
	assert.Equal(t, "png", presets.Current.Format)

	var errResp media.ErrorResponse
	zero := 0
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/v1/options", media.OptionsOverride{Width: &zero}, &errResp))
	assert.Contains(t, errResp.Error, "width")
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/v1/options", media.OptionsOverride{Preset: "poster"}, &errResp))
}

func TestUploadFlow(t *testing.T) {
	s := newServer(t)

	var errResp media.ErrorResponse
	assert.Equal(t, http.StatusConflict, s.upload(t, map[string][]byte{"a.jpg": jpegBytes(t, 600, 400)}, &errResp))
	require.NotNil(t, errResp.Notice)
	assert.Equal(t, "Image picker closed", errResp.Notice.Title)

	var state media.PickerState
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/picker/open", media.ModeRequest{Mode: "upload"}, &state))
	assert.True(t, state.Open)

	var resp media.UploadResponse
	require.Equal(t, http.StatusOK, s.upload(t, map[string][]byte{
		"a.jpg":   jpegBytes(t, 600, 400),
		"bad.jpg": []byte("not an image"),
	}, &resp))
	assert.Equal(t, 1, resp.Accepted)
	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		if r.Name == "bad.jpg" {
			assert.NotEmpty(t, r.Error)
		} else {
			require.NotNil(t, r.Image)
			assert.Equal(t, media.Dimensions{Width: 300, Height: 200}, r.Image.Dimensions)
			assert.NotEmpty(t, r.Image.Summary)
		}
	}

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/picker", nil, &state))
	assert.False(t, state.Open, "picker closes after an upload batch")
	assert.Equal(t, 1, state.Count)
	assert.NotEmpty(t, state.Notices)

	var images media.ImagesResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/images", nil, &images))
	assert.Equal(t, 1, images.Count)
	assert.Equal(t, 3, images.Remaining)
	assert.True(t, strings.HasPrefix(images.Images[0], "data:image/jpeg;base64,"))
}

func TestRemoveImage(t *testing.T) {
	s := newServer(t)
	s.collection.Add("a")
	s.collection.Add("b")

	var images media.ImagesResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/v1/images/0", nil, &images))
	assert.Equal(t, []string{"b"}, images.Images)

	var errResp media.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodDelete, "/v1/images/5", nil, &errResp))
	assert.Equal(t, "Image not found", errResp.Notice.Title)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodDelete, "/v1/images/x", nil, &errResp))
}

func TestOpenWhenFull(t *testing.T) {
	s := newServer(t)
	for i := 0; i < collection.MaxImages; i++ {
		s.collection.Add("img")
	}
	var errResp media.ErrorResponse
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/v1/picker/open", media.ModeRequest{Mode: "camera"}, &errResp))
	assert.Equal(t, "Image limit reached", errResp.Notice.Title)
	assert.Equal(t, 0, s.platform.Live())
}

func TestInvalidMode(t *testing.T) {
	s := newServer(t)
	var errResp media.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/v1/picker/open", media.ModeRequest{Mode: "scanner"}, &errResp))
}

func TestCameraFlow(t *testing.T) {
	s := newServer(t)

	var devices []media.Device
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/camera/devices", nil, &devices))
	require.Len(t, devices, 2)
	assert.Equal(t, "Rear", devices[0].Label)
	assert.Equal(t, "Camera 2", devices[1].Label)

	var state media.PickerState
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/picker/open", media.ModeRequest{Mode: "camera"}, &state))
	assert.Equal(t, "active", state.Camera.Status)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/camera/switch", media.SwitchRequest{DeviceID: "cam-front"}, &state))
	assert.Equal(t, "cam-front", state.Camera.DeviceID)
	assert.Equal(t, 1, s.platform.MaxLive())

	var img media.ProcessedImage
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/camera/capture", nil, &img))
	assert.Equal(t, media.Dimensions{Width: 300, Height: 200}, img.Dimensions)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/camera/facing", nil, &state))
	assert.Equal(t, "active", state.Camera.Status)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/picker/close", nil, &state))
	assert.False(t, state.Open)
	assert.Equal(t, 0, s.platform.Live())

	var errResp media.ErrorResponse
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/v1/camera/capture", nil, &errResp))
}

func TestCameraWrongMode(t *testing.T) {
	s := newServer(t)
	var state media.PickerState
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/picker/open", nil, &state))
	assert.Equal(t, "upload", state.Mode)

	var errResp media.ErrorResponse
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/v1/camera/retry", nil, &errResp))
	assert.Equal(t, "Wrong picker mode", errResp.Notice.Title)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/v1/camera/switch", media.SwitchRequest{}, &errResp))
}

func TestCameraFailureIsRetryable(t *testing.T) {
	s := newServer(t)
	s.platform.SetOpenErr(capture.ErrPermissionDenied)

	var state media.PickerState
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/picker/open", media.ModeRequest{Mode: "camera"}, &state))
	assert.Equal(t, "error", state.Camera.Status)
	require.NotEmpty(t, state.Notices)
	assert.True(t, state.Notices[len(state.Notices)-1].Retry)

	var errResp media.ErrorResponse
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodPost, "/v1/camera/retry", nil, &errResp))

	s.platform.SetOpenErr(nil)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/camera/retry", nil, &state))
	assert.Equal(t, "active", state.Camera.Status)
}

func TestPublishCollection(t *testing.T) {
	s := newServer(t)
	var state media.PickerState
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/picker/open", nil, &state))
	var up media.UploadResponse
	require.Equal(t, http.StatusOK, s.upload(t, map[string][]byte{"a.jpg": jpegBytes(t, 500, 500)}, &up))
	require.Equal(t, 1, s.collection.Len())

	var resp media.PublishResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/publish", media.PublishRequest{ProductSKU: "BRK-9"}, &resp))
	assert.Equal(t, media.RunCompleted, resp.Status)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 1, resp.Result.Stored)
	assert.Equal(t, "BRK-9-1.jpg", resp.Result.Images[0].FileName)
	assert.Equal(t, 0, s.collection.Len(), "collection cleared after publish")

	var errResp media.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/v1/publish", media.PublishRequest{ProductSKU: "BRK-9"}, &errResp))
	assert.Equal(t, http.StatusNotImplemented, s.do(t, http.MethodGet, "/v1/runs/abc", nil, &errResp))
}

// appendingPublisher adds an image to the collection while a publish runs.
type appendingPublisher struct {
	coll  *collection.Collection
	added string
}

func (p *appendingPublisher) Run(ctx context.Context, req media.PublishRequest) (*media.PublishResult, error) {
	p.coll.Add(p.added)
	return &media.PublishResult{RunID: "run-1", ProductSKU: req.ProductSKU, Stored: len(req.Images)}, nil
}

func (p *appendingPublisher) RunAsync(ctx context.Context, req media.PublishRequest) (string, error) {
	return "", publish.ErrAsyncUnavailable
}

func (p *appendingPublisher) Status(ctx context.Context, runID string) (*media.RunStatus, error) {
	return nil, publish.ErrAsyncUnavailable
}

func (p *appendingPublisher) Durable() bool { return false }

func TestPublishKeepsImagesAddedDuringRun(t *testing.T) {
	coll := collection.New()
	require.True(t, coll.Add("data:image/jpeg;base64,AAAA"))

	reg := imageproc.DefaultRegistry()
	wc, err := reg.Get(imageproc.PresetWooCommerce)
	require.NoError(t, err)
	coord := acquisition.New(imageproc.New(), capture.NewSession(capture.NewProber(capture.Disabled{})), coll, nil,
		acquisition.Config{Options: wc.Options()})
	h := handlers.New(handlers.Deps{
		Coordinator: coord,
		Collection:  coll,
		Presets:     reg,
		Notices:     acquisition.NewRecorder(1),
		Publisher:   &appendingPublisher{coll: coll, added: "data:image/jpeg;base64,BBBB"},
		Mode:        "standalone",
	})

	body := strings.NewReader(`{"product_sku":"BRK-1"}`)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/publish", body))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"data:image/jpeg;base64,BBBB"}, coll.Items())
}

func TestImagesOfEmptyCollection(t *testing.T) {
	s := newServer(t)
	resp, err := http.Get(s.URL + "/v1/images")
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.JSONEq(t, `[]`, string(raw["images"]))
}
