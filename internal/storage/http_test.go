package storage_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mikeyudex/erp-totalmotors/internal/storage"
)

func TestHTTPStorePut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/products/BRK-001/images", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "2", r.FormValue("position"))
		f, hdr, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		assert.Equal(t, "BRK-001-2.jpg", hdr.Filename)
		assert.Equal(t, "image/jpeg", hdr.Header.Get("Content-Type"))
		data, _ := io.ReadAll(f)
		assert.Equal(t, "jpeg", string(data))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "img-42", "url": "https://cdn.example/img-42.jpg"})
	}))
	defer srv.Close()

	hs := storage.NewHTTPStore(srv.URL+"/", "secret")
	stored, err := hs.Put(context.Background(), storage.PutRequest{
		ProductSKU:  "BRK-001",
		Position:    2,
		FileName:    "BRK-001-2.jpg",
		ContentType: "image/jpeg",
		Data:        []byte("jpeg"),
	})
	require.NoError(t, err)
	assert.Equal(t, "img-42", stored.ID)
	assert.Equal(t, "https://cdn.example/img-42.jpg", stored.Location)
}

func TestHTTPStorePutFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "product not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := storage.NewHTTPStore(srv.URL, "").Put(context.Background(), storage.PutRequest{ProductSKU: "X", FileName: "X-1.jpg", Data: []byte("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "product not found")
}

func TestHTTPStoreExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		switch r.URL.Path {
		case "/api/v1/images/known":
			w.WriteHeader(http.StatusOK)
		case "/api/v1/images/broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	hs := storage.NewHTTPStore(srv.URL, "")
	ctx := context.Background()

	ok, err := hs.Exists(ctx, "known")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hs.Exists(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = hs.Exists(ctx, "broken")
	assert.Error(t, err)
}
