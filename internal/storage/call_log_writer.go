package storage

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"solana-conn-proxy/internal/observability"
)

// Default call log writer settings.
const (
	DefaultCallLogBatchSize     = 500
	DefaultCallLogFlushInterval = 5 * time.Second
	maxBufferedBatches          = 20
)

// CallLogWriterOptions configures CallLogWriter.
type CallLogWriterOptions struct {
	BatchSize     int
	FlushInterval time.Duration
	Clock         clock.Clock
	Logger        *zap.Logger
	Metrics       *observability.Metrics
}

// CallLogWriter buffers call records and writes them in batches.
// RecordCall never blocks on the store.
type CallLogWriter struct {
	store    CallLogStore
	batch    int
	interval time.Duration
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *observability.Metrics

	mu      sync.Mutex
	buf     []*CallRecord
	dropped int

	kick chan struct{}
}

// NewCallLogWriter creates a writer for store.
func NewCallLogWriter(store CallLogStore, opts CallLogWriterOptions) *CallLogWriter {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultCallLogBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultCallLogFlushInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &CallLogWriter{
		store:    store,
		batch:    opts.BatchSize,
		interval: opts.FlushInterval,
		clock:    opts.Clock,
		logger:   opts.Logger.Named("calllog"),
		metrics:  opts.Metrics,
		kick:     make(chan struct{}, 1),
	}
}

// RecordCall buffers r. When the buffer is full the record is dropped.
func (w *CallLogWriter) RecordCall(r CallRecord) {
	w.mu.Lock()
	if len(w.buf) >= w.batch*maxBufferedBatches {
		w.dropped++
		w.mu.Unlock()
		return
	}
	w.buf = append(w.buf, &r)
	full := len(w.buf) >= w.batch
	w.mu.Unlock()

	if full {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of buffered records.
func (w *CallLogWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf)
}

// Flush writes all buffered records. Records are discarded on store failure.
func (w *CallLogWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	records := w.buf
	w.buf = nil
	dropped := w.dropped
	w.dropped = 0
	w.mu.Unlock()

	if dropped > 0 {
		w.logger.Warn("call log buffer overflow", zap.Int("dropped", dropped))
	}
	if len(records) == 0 {
		return nil
	}

	var err error
	for start := 0; start < len(records); start += w.batch {
		end := min(start+w.batch, len(records))
		if err = w.store.InsertBulk(ctx, records[start:end]); err != nil {
			break
		}
	}
	w.metrics.RecordCallLogFlush(err)
	if err != nil {
		w.logger.Warn("call log flush failed", zap.Int("records", len(records)), zap.Error(err))
		return err
	}
	return nil
}

// Run flushes on every interval or when a batch fills, until ctx is done.
// A final flush runs on a fresh context.
func (w *CallLogWriter) Run(ctx context.Context) {
	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = w.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			_ = w.Flush(ctx)
		case <-w.kick:
			_ = w.Flush(ctx)
		}
	}
}
