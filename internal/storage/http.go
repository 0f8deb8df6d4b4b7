package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPStore uploads images to the ERP REST API.
type HTTPStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPStore creates a store for the API at baseURL. token, if set, is sent
// as a bearer token.
func NewHTTPStore(baseURL, token string) *HTTPStore {
	return &HTTPStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type uploadResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Put posts the image as multipart form data to
// {base}/api/v1/products/{sku}/images.
func (hs *HTTPStore) Put(ctx context.Context, req PutRequest) (*Stored, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("position", strconv.Itoa(req.Position)); err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, req.FileName))
	h.Set("Content-Type", req.ContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if _, err := part.Write(req.Data); err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	u := fmt.Sprintf("%s/api/v1/products/%s/images", hs.baseURL, url.PathEscape(req.ProductSKU))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	hs.authorize(httpReq)

	resp, err := hs.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var result uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.ID == "" {
		return nil, fmt.Errorf("no ID in response")
	}

	return &Stored{ID: result.ID, Location: result.URL, Size: int64(len(req.Data))}, nil
}

// Exists checks if an image exists by id via HEAD {base}/api/v1/images/{id}.
func (hs *HTTPStore) Exists(ctx context.Context, id string) (bool, error) {
	u := fmt.Sprintf("%s/api/v1/images/%s", hs.baseURL, url.PathEscape(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	hs.authorize(req)

	resp, err := hs.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to check image: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
}

func (hs *HTTPStore) authorize(req *http.Request) {
	if hs.token != "" {
		req.Header.Set("Authorization", "Bearer "+hs.token)
	}
}
