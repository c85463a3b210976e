package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-conn-proxy/internal/storage"
)

// CallLogStore implements storage.CallLogStore using ClickHouse.
type CallLogStore struct {
	conn *Conn
}

// NewCallLogStore creates a new CallLogStore.
func NewCallLogStore(conn *Conn) *CallLogStore {
	return &CallLogStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CallLogStore = (*CallLogStore)(nil)

// InsertBulk appends records in a single batch.
func (s *CallLogStore) InsertBulk(ctx context.Context, records []*storage.CallRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r == nil || r.Method == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO rpc_call_log (
			timestamp_ms, connection_url, method, cache_hit, duration_ms, error
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		var hit uint8
		if r.CacheHit {
			hit = 1
		}
		err = batch.Append(
			uint64(r.Timestamp.UnixMilli()), r.ConnectionURL, r.Method,
			hit, uint64(r.DurationMs), r.Error,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// StatsSince aggregates records with timestamp >= since, ordered by method.
func (s *CallLogStore) StatsSince(ctx context.Context, since time.Time) ([]storage.MethodStats, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT
			method,
			count() AS calls,
			countIf(cache_hit = 1) AS hits,
			countIf(error != '') AS errors
		FROM rpc_call_log
		WHERE timestamp_ms >= ?
		GROUP BY method
		ORDER BY method
	`, uint64(since.UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("query call stats: %w", err)
	}
	defer rows.Close()

	var out []storage.MethodStats
	for rows.Next() {
		var st storage.MethodStats
		if err := rows.Scan(&st.Method, &st.Calls, &st.CacheHits, &st.Errors); err != nil {
			return nil, fmt.Errorf("scan call stats: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call stats: %w", err)
	}
	return out, nil
}
