package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemStore keeps images under baseDir/<sku>/<file name>.
type FilesystemStore struct {
	baseDir string
}

// NewFilesystemStore creates a new filesystem store
func NewFilesystemStore(baseDir string) (*FilesystemStore, error) {
	// Ensure base directory exists
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	return &FilesystemStore{
		baseDir: abs,
	}, nil
}

// path resolves an id below baseDir and rejects traversal.
func (fs *FilesystemStore) path(id string) (string, error) {
	path := filepath.Join(fs.baseDir, filepath.FromSlash(id))
	rel, err := filepath.Rel(fs.baseDir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid key %q: path traversal detected", id)
	}
	return path, nil
}

// Put writes the image atomically and returns "<sku>/<file name>" as its id.
func (fs *FilesystemStore) Put(ctx context.Context, req PutRequest) (*Stored, error) {
	if req.ProductSKU == "" || req.FileName == "" {
		return nil, fmt.Errorf("product sku and file name are required")
	}
	id := req.ProductSKU + "/" + req.FileName
	path, err := fs.path(id)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create product directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(req.Data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("failed to move file into place: %w", err)
	}

	return &Stored{ID: id, Location: path, Size: int64(len(req.Data))}, nil
}

// GetReader returns a reader for the image with the given id
func (fs *FilesystemStore) GetReader(ctx context.Context, id string) (io.ReadCloser, error) {
	path, err := fs.path(id)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Exists checks if an image exists with the given id
func (fs *FilesystemStore) Exists(ctx context.Context, id string) (bool, error) {
	path, err := fs.path(id)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}

	return true, nil
}

// GetMetadata returns size and, from the extension, content type.
func (fs *FilesystemStore) GetMetadata(ctx context.Context, id string) (*Metadata, error) {
	path, err := fs.path(id)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &Metadata{
		Size:        info.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
	}, nil
}
