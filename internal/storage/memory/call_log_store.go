package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-conn-proxy/internal/storage"
)

// CallLogStore is an in-memory implementation of storage.CallLogStore.
type CallLogStore struct {
	mu      sync.RWMutex
	records []storage.CallRecord
}

// NewCallLogStore creates a new in-memory call log store.
func NewCallLogStore() *CallLogStore {
	return &CallLogStore{}
}

// Compile-time interface check.
var _ storage.CallLogStore = (*CallLogStore)(nil)

// InsertBulk appends records.
func (s *CallLogStore) InsertBulk(_ context.Context, records []*storage.CallRecord) error {
	for _, r := range records {
		if r == nil || r.Method == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		s.records = append(s.records, *r)
	}
	return nil
}

// StatsSince aggregates records with Timestamp >= since, ordered by method.
func (s *CallLogStore) StatsSince(_ context.Context, since time.Time) ([]storage.MethodStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byMethod := make(map[string]*storage.MethodStats)
	for _, r := range s.records {
		if r.Timestamp.Before(since) {
			continue
		}
		st, ok := byMethod[r.Method]
		if !ok {
			st = &storage.MethodStats{Method: r.Method}
			byMethod[r.Method] = st
		}
		st.Calls++
		if r.CacheHit {
			st.CacheHits++
		}
		if r.Error != "" {
			st.Errors++
		}
	}

	out := make([]storage.MethodStats, 0, len(byMethod))
	for _, st := range byMethod {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out, nil
}

// Len returns the number of stored records.
func (s *CallLogStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
