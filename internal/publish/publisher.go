// Package publish stores a product's accepted images, either inline or as a
// durable DBOS workflow.
package publish

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/Mikeyudex/erp-totalmotors/internal/imageproc"
	"github.com/Mikeyudex/erp-totalmotors/internal/ledger"
	"github.com/Mikeyudex/erp-totalmotors/internal/log"
	"github.com/Mikeyudex/erp-totalmotors/internal/storage"
	"github.com/Mikeyudex/erp-totalmotors/pkg/media"
)

// Publish outcomes, as counted by metrics.
const (
	OutcomeStored    = "stored"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// VariantThumbnail is the rendition stored next to every image when
// thumbnails are enabled.
const VariantThumbnail = "thumbnail"

var skuPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Publisher decodes data URLs and stores them under deterministic names.
type Publisher struct {
	store     storage.ImageStore
	ledger    ledger.Store
	processor *imageproc.Processor
	thumbOpts *imageproc.Options
	record    func(outcome string)
	logger    *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLedger deduplicates images already published for the product.
func WithLedger(l ledger.Store) Option {
	return func(p *Publisher) { p.ledger = l }
}

// WithThumbnails stores a rendition made with opts next to every image,
// when the store supports variants.
func WithThumbnails(proc *imageproc.Processor, opts imageproc.Options) Option {
	return func(p *Publisher) {
		p.processor = proc
		p.thumbOpts = &opts
	}
}

// WithOutcomeRecorder receives one outcome per image.
func WithOutcomeRecorder(fn func(outcome string)) Option {
	return func(p *Publisher) { p.record = fn }
}

// NewPublisher creates a publisher writing to store.
func NewPublisher(store storage.ImageStore, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: log.Component("publish"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate checks a request before any image is stored.
func Validate(req media.PublishRequest) error {
	if !skuPattern.MatchString(req.ProductSKU) {
		return fmt.Errorf("%w: product_sku %q must be 1-64 letters, digits, '.', '_' or '-'", ErrInvalidRequest, req.ProductSKU)
	}
	if len(req.Images) == 0 {
		return fmt.Errorf("%w: no images", ErrInvalidRequest)
	}
	return nil
}

// Publish stores every image of req. Each image fails independently; the
// error is only non-nil for an invalid request.
func (p *Publisher) Publish(ctx context.Context, runID string, req media.PublishRequest) (*media.PublishResult, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	logger := p.logger.With("run_id", runID, "product_sku", req.ProductSKU)
	logger.Info("publishing images", "count", len(req.Images))

	result := &media.PublishResult{
		RunID:      runID,
		ProductSKU: req.ProductSKU,
		Images:     make([]media.ImageResult, 0, len(req.Images)),
	}
	for i, dataURL := range req.Images {
		r := p.publishOne(ctx, req.ProductSKU, i+1, dataURL)
		switch {
		case r.Error != "":
			result.Failed++
			p.count(OutcomeFailed)
			logger.Warn("image not published", "position", r.Position, "error", r.Error)
		case r.Duplicate:
			result.Duplicates++
			p.count(OutcomeDuplicate)
			logger.Info("image already published", "position", r.Position, "stored_id", r.StoredID)
		default:
			result.Stored++
			p.count(OutcomeStored)
			logger.Info("image stored", "position", r.Position, "stored_id", r.StoredID, "size", r.Size)
		}
		result.Images = append(result.Images, r)
	}

	logger.Info("publish finished", "stored", result.Stored, "duplicates", result.Duplicates, "failed", result.Failed)
	return result, nil
}

func (p *Publisher) publishOne(ctx context.Context, sku string, position int, dataURL string) media.ImageResult {
	r := media.ImageResult{Position: position}
	fail := func(err error) media.ImageResult {
		r.Error = err.Error()
		return r
	}

	payload, contentType, err := imageproc.DataURL(dataURL).Payload()
	if err != nil {
		return fail(err)
	}
	format, err := imageproc.ParseFormat(contentType)
	if err != nil {
		return fail(err)
	}
	sum := sha256.Sum256(payload)
	r.Digest = hex.EncodeToString(sum[:])
	r.FileName = fmt.Sprintf("%s-%d.%s", sku, position, format.Extension())

	if p.ledger != nil {
		entry, err := p.ledger.Lookup(ctx, sku, r.Digest)
		if err != nil {
			return fail(err)
		}
		if entry != nil {
			if _, err := p.ledger.Record(ctx, sku, r.Digest, entry.StoredID); err != nil {
				p.logger.Warn("failed to bump ledger entry", "digest", r.Digest, "error", err)
			}
			r.StoredID = entry.StoredID
			r.Duplicate = true
			return r
		}
	}

	stored, err := p.store.Put(ctx, storage.PutRequest{
		ProductSKU:  sku,
		Position:    position,
		FileName:    r.FileName,
		ContentType: format.MIMEType(),
		Data:        payload,
		Tags:        []string{"position:" + fmt.Sprint(position)},
	})
	if err != nil {
		return fail(err)
	}
	r.StoredID = stored.ID
	r.Location = stored.Location
	r.Size = stored.Size

	if p.ledger != nil {
		if _, err := p.ledger.Record(ctx, sku, r.Digest, stored.ID); err != nil {
			p.logger.Warn("failed to record ledger entry", "digest", r.Digest, "error", err)
		}
	}

	if id, err := p.thumbnail(ctx, stored.ID, sku, position, dataURL); err != nil {
		p.logger.Warn("thumbnail not stored", "stored_id", stored.ID, "error", err)
	} else {
		r.VariantID = id
	}
	return r
}

// thumbnail stores the thumbnail rendition unless it already exists.
func (p *Publisher) thumbnail(ctx context.Context, parentID, sku string, position int, dataURL string) (string, error) {
	vs, ok := p.store.(storage.VariantStore)
	if !ok || p.thumbOpts == nil || p.processor == nil {
		return "", nil
	}
	has, err := vs.HasVariant(ctx, parentID, VariantThumbnail)
	if err != nil {
		return "", err
	}
	if has {
		return "", nil
	}
	img, err := p.processor.Process(ctx, imageproc.DataURL(dataURL), *p.thumbOpts, nil)
	if err != nil {
		return "", err
	}
	data, _, err := imageproc.DataURL(img.DataURL).Payload()
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%d-%s.%s", sku, position, VariantThumbnail, img.Format.Extension())
	return vs.PutVariant(ctx, parentID, VariantThumbnail, name, bytes.NewReader(data))
}

func (p *Publisher) count(outcome string) {
	if p.record != nil {
		p.record(outcome)
	}
}
