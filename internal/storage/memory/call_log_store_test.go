package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-conn-proxy/internal/storage"
)

func TestCallLogStore_StatsSince(t *testing.T) {
	store := NewCallLogStore()
	ctx := context.Background()
	base := time.Unix(1704067200, 0)

	records := []*storage.CallRecord{
		{Timestamp: base.Add(-time.Minute), Method: "getSlot"},
		{Timestamp: base, Method: "getSlot", CacheHit: true},
		{Timestamp: base.Add(time.Second), Method: "getSlot"},
		{Timestamp: base.Add(2 * time.Second), Method: "getBalance", Error: "network"},
	}
	if err := store.InsertBulk(ctx, records); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	if store.Len() != 4 {
		t.Fatalf("expected 4 records, got %d", store.Len())
	}

	stats, err := store.StatsSince(ctx, base)
	if err != nil {
		t.Fatalf("StatsSince failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 methods, got %d", len(stats))
	}

	if stats[0].Method != "getBalance" || stats[0].Calls != 1 || stats[0].Errors != 1 {
		t.Errorf("unexpected getBalance stats: %+v", stats[0])
	}
	if stats[1].Method != "getSlot" || stats[1].Calls != 2 || stats[1].CacheHits != 1 {
		t.Errorf("unexpected getSlot stats: %+v", stats[1])
	}
}

func TestCallLogStore_InvalidInput(t *testing.T) {
	store := NewCallLogStore()
	err := store.InsertBulk(context.Background(), []*storage.CallRecord{{Method: "getSlot"}, nil})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("batch must be rejected atomically, got %d records", store.Len())
	}
}
