// Package ledger records which image payloads were already published for a
// product, so republishing the same picture does not store it twice.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Mikeyudex/erp-totalmotors/internal/log"
)

// Entry is one published image.
type Entry struct {
	ProductSKU  string
	Digest      string
	StoredID    string
	FirstSeenAt time.Time
	SeenCount   int
}

// Store is implemented by the PostgreSQL and in-memory ledgers.
type Store interface {
	// Lookup returns the entry for sku and digest, or nil if none exists.
	Lookup(ctx context.Context, sku, digest string) (*Entry, error)

	// Record upserts the entry and returns how often it was seen.
	Record(ctx context.Context, sku, digest, storedID string) (int, error)
}

// Ledger is the PostgreSQL ledger.
type Ledger struct {
	db *sql.DB
}

// New creates a ledger and its table if it does not exist.
func New(ctx context.Context, db *sql.DB) (*Ledger, error) {
	l := &Ledger{db: db}

	if err := l.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger table: %w", err)
	}

	return l, nil
}

const createTable = `
	CREATE TABLE IF NOT EXISTS product_image_ledger (
		product_sku TEXT NOT NULL,
		digest TEXT NOT NULL,
		stored_id TEXT NOT NULL,
		first_seen_at TIMESTAMPTZ DEFAULT NOW(),
		last_seen_at TIMESTAMPTZ DEFAULT NOW(),
		seen_count INTEGER DEFAULT 1,
		PRIMARY KEY (product_sku, digest)
	)
`

func (l *Ledger) ensureTable(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create product_image_ledger table: %w", err)
	}

	log.Component("ledger").Info("product_image_ledger table ready")
	return nil
}

// Lookup returns the entry for sku and digest, or nil if none exists.
func (l *Ledger) Lookup(ctx context.Context, sku, digest string) (*Entry, error) {
	query := `
		SELECT product_sku, digest, stored_id, first_seen_at, seen_count
		FROM product_image_ledger
		WHERE product_sku = $1 AND digest = $2
	`

	var e Entry
	err := l.db.QueryRowContext(ctx, query, sku, digest).Scan(&e.ProductSKU, &e.Digest, &e.StoredID, &e.FirstSeenAt, &e.SeenCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up image: %w", err)
	}

	return &e, nil
}

// Record upserts the entry and returns how often it was seen.
func (l *Ledger) Record(ctx context.Context, sku, digest, storedID string) (int, error) {
	query := `
		INSERT INTO product_image_ledger (product_sku, digest, stored_id, first_seen_at, last_seen_at, seen_count)
		VALUES ($1, $2, $3, NOW(), NOW(), 1)
		ON CONFLICT (product_sku, digest) DO UPDATE
		SET last_seen_at = NOW(),
		    seen_count = product_image_ledger.seen_count + 1,
		    stored_id = EXCLUDED.stored_id
		RETURNING seen_count
	`

	var seenCount int
	if err := l.db.QueryRowContext(ctx, query, sku, digest, storedID).Scan(&seenCount); err != nil {
		return 0, fmt.Errorf("failed to record image: %w", err)
	}

	return seenCount, nil
}

// Memory is a process-local ledger for deployments without a database.
type Memory struct {
	mu      sync.Mutex
	entries map[[2]string]*Entry
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{entries: make(map[[2]string]*Entry)}
}

func (m *Memory) Lookup(ctx context.Context, sku, digest string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[[2]string{sku, digest}]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *Memory) Record(ctx context.Context, sku, digest, storedID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{sku, digest}
	e, ok := m.entries[key]
	if !ok {
		e = &Entry{ProductSKU: sku, Digest: digest, FirstSeenAt: time.Now()}
		m.entries[key] = e
	}
	e.StoredID = storedID
	e.SeenCount++
	return e.SeenCount, nil
}
