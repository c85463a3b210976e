package main

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"solana-conn-proxy/internal/config"
	"solana-conn-proxy/internal/storage"
	chstore "solana-conn-proxy/internal/storage/clickhouse"
	"solana-conn-proxy/internal/storage/memory"
	"solana-conn-proxy/internal/storage/migrations"
	pgstore "solana-conn-proxy/internal/storage/postgres"
)

// stores holds the persistence backends and their cleanup.
type stores struct {
	fingerprints storage.FingerprintStore
	callLog      storage.CallLogStore
	closers      []func() error
}

func (s *stores) close() error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.closers[i]())
	}
	return err
}

// openStores connects every configured database and runs its migrations.
// Backends without a DSN fall back to memory.
func openStores(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*stores, error) {
	s := &stores{
		fingerprints: memory.NewFingerprintStore(),
		callLog:      memory.NewCallLogStore(),
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		s.fingerprints = pgstore.NewFingerprintStore(pool)
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
		logger.Info("fingerprints stored in postgres")
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		s.callLog = chstore.NewCallLogStore(conn)
		s.closers = append(s.closers, conn.Close)
		logger.Info("call log stored in clickhouse")
	}

	return s, nil
}
