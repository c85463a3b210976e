package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-conn-proxy/internal/storage"
	"solana-conn-proxy/internal/storage/memory"
)

type failingStore struct{ calls int }

func (s *failingStore) InsertBulk(context.Context, []*storage.CallRecord) error {
	s.calls++
	return errors.New("unavailable")
}

func (s *failingStore) StatsSince(context.Context, time.Time) ([]storage.MethodStats, error) {
	return nil, nil
}

func TestCallLogWriter_FlushBatches(t *testing.T) {
	store := memory.NewCallLogStore()
	w := storage.NewCallLogWriter(store, storage.CallLogWriterOptions{BatchSize: 2})

	for i := 0; i < 5; i++ {
		w.RecordCall(storage.CallRecord{Timestamp: time.Now(), Method: "getSlot"})
	}
	assert.Equal(t, 5, w.Pending())

	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, 0, w.Pending())
	assert.Equal(t, 5, store.Len())
}

func TestCallLogWriter_DropsOnOverflow(t *testing.T) {
	store := memory.NewCallLogStore()
	w := storage.NewCallLogWriter(store, storage.CallLogWriterOptions{BatchSize: 1})

	for i := 0; i < 100; i++ {
		w.RecordCall(storage.CallRecord{Method: "getSlot"})
	}
	assert.Equal(t, 20, w.Pending())
}

func TestCallLogWriter_FlushErrorDiscards(t *testing.T) {
	store := &failingStore{}
	w := storage.NewCallLogWriter(store, storage.CallLogWriterOptions{BatchSize: 10})
	w.RecordCall(storage.CallRecord{Method: "getSlot"})

	assert.Error(t, w.Flush(context.Background()))
	assert.Equal(t, 0, w.Pending())
	assert.Equal(t, 1, store.calls)
}

func TestCallLogWriter_RunFlushesOnCancel(t *testing.T) {
	store := memory.NewCallLogStore()
	w := storage.NewCallLogWriter(store, storage.CallLogWriterOptions{FlushInterval: time.Hour})
	w.RecordCall(storage.CallRecord{Method: "getSlot"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, store.Len())
}

func TestCallLogWriter_RunFlushesFullBatch(t *testing.T) {
	store := memory.NewCallLogStore()
	w := storage.NewCallLogWriter(store, storage.CallLogWriterOptions{BatchSize: 2, FlushInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.RecordCall(storage.CallRecord{Method: "getSlot"})
	w.RecordCall(storage.CallRecord{Method: "getSlot"})

	assert.Eventually(t, func() bool { return store.Len() == 2 }, 2*time.Second, 10*time.Millisecond)
}
