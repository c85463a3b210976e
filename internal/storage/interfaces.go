package storage

import (
	"context"
	"time"
)

// Fingerprint is the last observed token-account fingerprint for a wallet
// on one endpoint.
type Fingerprint struct {
	ConnectionURL string
	Wallet        string
	Value         string
	UpdatedAt     time.Time
}

// FingerprintStore persists change-detection fingerprints so a restarted
// background process does not re-announce an unchanged token set.
type FingerprintStore interface {
	// Get returns the fingerprint for (url, wallet). Returns ErrNotFound if none saved.
	Get(ctx context.Context, url, wallet string) (*Fingerprint, error)

	// Put saves the fingerprint, replacing any previous value.
	Put(ctx context.Context, f *Fingerprint) error

	// Delete removes the fingerprint for (url, wallet). Missing rows are not an error.
	Delete(ctx context.Context, url, wallet string) error
}

// CallRecord is one outbound RPC dispatch observed by the caching transport.
type CallRecord struct {
	Timestamp     time.Time
	ConnectionURL string
	Method        string
	CacheHit      bool
	DurationMs    int64
	Error         string
}

// MethodStats aggregates call records for one method.
type MethodStats struct {
	Method    string
	Calls     uint64
	CacheHits uint64
	Errors    uint64
}

// CallLogStore is an append-only log of RPC dispatches.
type CallLogStore interface {
	// InsertBulk appends records. Empty input is a no-op.
	InsertBulk(ctx context.Context, records []*CallRecord) error

	// StatsSince aggregates records with Timestamp >= since, ordered by method.
	StatsSince(ctx context.Context, since time.Time) ([]MethodStats, error)
}
