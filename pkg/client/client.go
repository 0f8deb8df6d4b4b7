// Package client is an HTTP client for the media service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Mikeyudex/erp-totalmotors/pkg/media"
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	Notice     *media.Notice
}

func (e *APIError) Error() string {
	if e.Notice != nil {
		return fmt.Sprintf("unexpected status %d: %s: %s", e.StatusCode, e.Notice.Title, e.Message)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

// Client is an HTTP client for the media service
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new media client
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// NewWithHTTPClient creates a new media client with a custom HTTP client
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Presets lists the preset registry and the options in effect
func (c *Client) Presets(ctx context.Context) (*media.PresetsResponse, error) {
	return call[media.PresetsResponse](ctx, c, http.MethodGet, "/v1/presets", nil)
}

// SetOptions selects a preset and/or overrides fields
func (c *Client) SetOptions(ctx context.Context, o media.OptionsOverride) (*media.PresetsResponse, error) {
	return call[media.PresetsResponse](ctx, c, http.MethodPut, "/v1/options", o)
}

// Picker returns the picker state
func (c *Client) Picker(ctx context.Context) (*media.PickerState, error) {
	return call[media.PickerState](ctx, c, http.MethodGet, "/v1/picker", nil)
}

// Open opens the picker in mode
func (c *Client) Open(ctx context.Context, mode string) (*media.PickerState, error) {
	return call[media.PickerState](ctx, c, http.MethodPost, "/v1/picker/open", media.ModeRequest{Mode: mode})
}

// Close closes the picker
func (c *Client) Close(ctx context.Context) (*media.PickerState, error) {
	return call[media.PickerState](ctx, c, http.MethodPost, "/v1/picker/close", nil)
}

// UploadFiles uploads local files through the open picker
func (c *Client) UploadFiles(ctx context.Context, paths ...string) (*media.UploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range paths {
		if err := addFile(mw, p); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/picker/upload", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var resp media.UploadResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func addFile(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	part, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// Capture takes a still from the camera
func (c *Client) Capture(ctx context.Context) (*media.ProcessedImage, error) {
	return call[media.ProcessedImage](ctx, c, http.MethodPost, "/v1/camera/capture", nil)
}

// Devices lists the cameras
func (c *Client) Devices(ctx context.Context) ([]media.Device, error) {
	resp, err := call[[]media.Device](ctx, c, http.MethodGet, "/v1/camera/devices", nil)
	if err != nil {
		return nil, err
	}
	return *resp, nil
}

// Images returns the accepted images
func (c *Client) Images(ctx context.Context) (*media.ImagesResponse, error) {
	return call[media.ImagesResponse](ctx, c, http.MethodGet, "/v1/images", nil)
}

// RemoveImage removes the image at index
func (c *Client) RemoveImage(ctx context.Context, index int) (*media.ImagesResponse, error) {
	return call[media.ImagesResponse](ctx, c, http.MethodDelete, fmt.Sprintf("/v1/images/%d", index), nil)
}

// Publish stores the images of a product
func (c *Client) Publish(ctx context.Context, req media.PublishRequest) (*media.PublishResponse, error) {
	return call[media.PublishResponse](ctx, c, http.MethodPost, "/v1/publish", req)
}

// RunStatus returns the status of a durable publish run
func (c *Client) RunStatus(ctx context.Context, runID string) (*media.RunStatus, error) {
	return call[media.RunStatus](ctx, c, http.MethodGet, "/v1/runs/"+runID, nil)
}

func call[T any](ctx context.Context, c *Client, method, path string, in any) (*T, error) {
	var out T
	if err := c.doJSON(ctx, method, path, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return c.do(httpReq, out)
}

func (c *Client) do(httpReq *http.Request, out any) error {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
		var er media.ErrorResponse
		if json.Unmarshal(bodyBytes, &er) == nil && er.Error != "" {
			apiErr.Message = er.Error
			apiErr.Notice = er.Notice
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}
