package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/tendant/simple-content/pkg/simplecontent"
)

// ContentStore stores images in a simple-content service. Product images
// are uploaded as contents; renditions as derived contents of them.
type ContentStore struct {
	service  simplecontent.Service
	ownerID  uuid.UUID
	tenantID uuid.UUID
}

// NewContentStore creates a store uploading on behalf of owner and tenant.
func NewContentStore(service simplecontent.Service, ownerID, tenantID uuid.UUID) *ContentStore {
	return &ContentStore{
		service:  service,
		ownerID:  ownerID,
		tenantID: tenantID,
	}
}

// Put uploads the image as a new content tagged with the product sku.
func (cs *ContentStore) Put(ctx context.Context, req PutRequest) (*Stored, error) {
	tags := append([]string{"product-image", "sku:" + req.ProductSKU}, req.Tags...)
	content, err := cs.service.UploadContent(ctx, simplecontent.UploadContentRequest{
		OwnerID:      cs.ownerID,
		TenantID:     cs.tenantID,
		Name:         fmt.Sprintf("%s image %d", req.ProductSKU, req.Position),
		DocumentType: req.ContentType,
		Reader:       bytes.NewReader(req.Data),
		FileName:     req.FileName,
		Tags:         tags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload content: %w", err)
	}

	return &Stored{
		ID:       content.ID.String(),
		Location: "content://" + content.ID.String(),
		Size:     int64(len(req.Data)),
	}, nil
}

// GetReader returns a reader for content by content ID
func (cs *ContentStore) GetReader(ctx context.Context, id string) (io.ReadCloser, error) {
	contentID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid content ID: %w", err)
	}

	reader, err := cs.service.DownloadContent(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to download content: %w", err)
	}

	return reader, nil
}

// Exists checks if content exists by content ID
func (cs *ContentStore) Exists(ctx context.Context, id string) (bool, error) {
	contentID, err := uuid.Parse(id)
	if err != nil {
		return false, fmt.Errorf("invalid content ID: %w", err)
	}

	// The service does not distinguish not-found from other lookup errors.
	if _, err := cs.service.GetContent(ctx, contentID); err != nil {
		return false, nil
	}

	return true, nil
}

// GetMetadata returns metadata for content
func (cs *ContentStore) GetMetadata(ctx context.Context, id string) (*Metadata, error) {
	contentID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid content ID: %w", err)
	}

	details, err := cs.service.GetContentDetails(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get content details: %w", err)
	}

	return &Metadata{
		Size:        details.FileSize,
		ContentType: details.MimeType,
	}, nil
}

// HasVariant checks if a rendition of the given variant exists for parentID.
func (cs *ContentStore) HasVariant(ctx context.Context, parentID, variant string) (bool, error) {
	id, err := uuid.Parse(parentID)
	if err != nil {
		return false, fmt.Errorf("invalid content ID: %w", err)
	}

	derived, err := cs.service.ListDerivedContent(ctx,
		simplecontent.WithParentID(id),
		simplecontent.WithDerivationType(variant),
	)
	if err != nil {
		return false, fmt.Errorf("failed to list derived content: %w", err)
	}
	for _, d := range derived {
		if d.DerivationType == variant {
			return true, nil
		}
	}
	return false, nil
}

// PutVariant uploads a rendition as derived content of parentID.
func (cs *ContentStore) PutVariant(ctx context.Context, parentID, variant, fileName string, r io.Reader) (string, error) {
	id, err := uuid.Parse(parentID)
	if err != nil {
		return "", fmt.Errorf("invalid content ID: %w", err)
	}

	derived, err := cs.service.UploadDerivedContent(ctx, simplecontent.UploadDerivedContentRequest{
		ParentID:       id,
		DerivationType: variant,
		Variant:        variant,
		Reader:         r,
		FileName:       fileName,
		Tags:           []string{"product-image", variant},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload derived content: %w", err)
	}

	return derived.ID.String(), nil
}
