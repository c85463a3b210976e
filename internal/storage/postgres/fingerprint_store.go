package postgres

import (
	"context"
	"fmt"

	"solana-conn-proxy/internal/storage"
)

// FingerprintStore is a PostgreSQL implementation of storage.FingerprintStore.
type FingerprintStore struct {
	pool *Pool
}

// NewFingerprintStore creates a new PostgreSQL fingerprint store.
func NewFingerprintStore(pool *Pool) *FingerprintStore {
	return &FingerprintStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FingerprintStore = (*FingerprintStore)(nil)

// Get returns the fingerprint for (url, wallet). Returns ErrNotFound if none saved.
func (s *FingerprintStore) Get(ctx context.Context, url, wallet string) (*storage.Fingerprint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT connection_url, wallet, fingerprint, updated_at
		FROM token_account_fingerprints
		WHERE connection_url = $1 AND wallet = $2
	`, url, wallet)

	var f storage.Fingerprint
	if err := row.Scan(&f.ConnectionURL, &f.Wallet, &f.Value, &f.UpdatedAt); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get fingerprint: %w", err)
	}
	return &f, nil
}

// Put saves the fingerprint. Uses upsert to handle initial insert and updates.
func (s *FingerprintStore) Put(ctx context.Context, f *storage.Fingerprint) error {
	if f == nil || f.ConnectionURL == "" || f.Wallet == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO token_account_fingerprints (connection_url, wallet, fingerprint, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (connection_url, wallet) DO UPDATE
		SET fingerprint = EXCLUDED.fingerprint,
		    updated_at = EXCLUDED.updated_at
	`, f.ConnectionURL, f.Wallet, f.Value, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put fingerprint: %w", err)
	}
	return nil
}

// Delete removes the fingerprint for (url, wallet).
func (s *FingerprintStore) Delete(ctx context.Context, url, wallet string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM token_account_fingerprints
		WHERE connection_url = $1 AND wallet = $2
	`, url, wallet)
	if err != nil {
		return fmt.Errorf("delete fingerprint: %w", err)
	}
	return nil
}
