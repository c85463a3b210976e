package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-conn-proxy/internal/storage"
	"solana-conn-proxy/internal/storage/postgres"
)

func TestFingerprintStore_PutAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewFingerprintStore(pool)

	f := &storage.Fingerprint{
		ConnectionURL: "https://api.devnet.solana.com",
		Wallet:        "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Value:         "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8",
		UpdatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.Put(ctx, f))

	got, err := store.Get(ctx, f.ConnectionURL, f.Wallet)
	require.NoError(t, err)
	assert.Equal(t, f.Value, got.Value)
	assert.True(t, f.UpdatedAt.Equal(got.UpdatedAt))
}

func TestFingerprintStore_Upsert(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewFingerprintStore(pool)

	require.NoError(t, store.Put(ctx, &storage.Fingerprint{ConnectionURL: "u", Wallet: "w", Value: "a", UpdatedAt: time.Now()}))
	require.NoError(t, store.Put(ctx, &storage.Fingerprint{ConnectionURL: "u", Wallet: "w", Value: "b", UpdatedAt: time.Now()}))

	got, err := store.Get(ctx, "u", "w")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Value)
}

func TestFingerprintStore_NotFoundAndDelete(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewFingerprintStore(pool)

	_, err := store.Get(ctx, "u", "w")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Put(ctx, &storage.Fingerprint{ConnectionURL: "u", Wallet: "w", Value: "a", UpdatedAt: time.Now()}))
	require.NoError(t, store.Delete(ctx, "u", "w"))

	_, err = store.Get(ctx, "u", "w")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, store.Put(ctx, &storage.Fingerprint{Wallet: "w"}), storage.ErrInvalidInput)
}
