package memory

import (
	"context"
	"sync"

	"solana-conn-proxy/internal/storage"
)

type fingerprintKey struct {
	url    string
	wallet string
}

// FingerprintStore is an in-memory implementation of storage.FingerprintStore.
type FingerprintStore struct {
	mu   sync.RWMutex
	rows map[fingerprintKey]storage.Fingerprint
}

// NewFingerprintStore creates a new in-memory fingerprint store.
func NewFingerprintStore() *FingerprintStore {
	return &FingerprintStore{
		rows: make(map[fingerprintKey]storage.Fingerprint),
	}
}

// Compile-time interface check.
var _ storage.FingerprintStore = (*FingerprintStore)(nil)

// Get returns the fingerprint for (url, wallet). Returns ErrNotFound if none saved.
func (s *FingerprintStore) Get(_ context.Context, url, wallet string) (*storage.Fingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.rows[fingerprintKey{url, wallet}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &f, nil
}

// Put saves the fingerprint, replacing any previous value.
func (s *FingerprintStore) Put(_ context.Context, f *storage.Fingerprint) error {
	if f == nil || f.ConnectionURL == "" || f.Wallet == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[fingerprintKey{f.ConnectionURL, f.Wallet}] = *f
	return nil
}

// Delete removes the fingerprint for (url, wallet).
func (s *FingerprintStore) Delete(_ context.Context, url, wallet string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rows, fingerprintKey{url, wallet})
	return nil
}
