// Package storage persists published product images.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned for keys with no stored image.
var ErrNotFound = errors.New("storage: image not found")

// PutRequest describes one image to store.
type PutRequest struct {
	ProductSKU  string
	Position    int
	FileName    string
	ContentType string
	Data        []byte
	Tags        []string
}

// Stored identifies a stored image.
type Stored struct {
	ID       string `json:"id"`
	Location string `json:"location"`
	Size     int64  `json:"size"`
}

// ImageStore stores product images.
type ImageStore interface {
	// Put stores the image and returns its id.
	Put(ctx context.Context, req PutRequest) (*Stored, error)

	// Exists checks if an image exists with the given id
	Exists(ctx context.Context, id string) (bool, error)
}

// Reader provides read access to stored images
type Reader interface {
	// GetReader returns a reader for the image with the given id
	GetReader(ctx context.Context, id string) (io.ReadCloser, error)

	// GetMetadata returns metadata for the image with the given id
	GetMetadata(ctx context.Context, id string) (*Metadata, error)
}

// Metadata contains storage object metadata
type Metadata struct {
	Size        int64
	ContentType string
}

// VariantStore stores derived renditions of a stored image, such as the
// thumbnail shown in product listings.
type VariantStore interface {
	HasVariant(ctx context.Context, parentID, variant string) (bool, error)
	PutVariant(ctx context.Context, parentID, variant, fileName string, r io.Reader) (string, error)
}
