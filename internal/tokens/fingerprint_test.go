package tokens_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-conn-proxy/internal/solana"
	"solana-conn-proxy/internal/solana/stub"
	"solana-conn-proxy/internal/tokens"
)

func token(key, mint byte, amount int64) *tokens.TokenAccount {
	return &tokens.TokenAccount{
		Key:             addr(key),
		ProgramID:       solana.TokenProgramID,
		Mint:            addr(mint),
		Owner:           addr(100),
		Amount:          big.NewInt(amount),
		State:           tokens.AccountInitialized,
		DelegatedAmount: big.NewInt(0),
	}
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := &tokens.Aggregate{
		Fungible: tokens.Group{Tokens: []*tokens.TokenAccount{token(1, 20, 5), token(2, 21, 6), token(3, 22, 7)}},
		NFTs:     tokens.Group{Tokens: []*tokens.TokenAccount{token(4, 23, 1), token(5, 24, 1)}},
	}
	b := &tokens.Aggregate{
		Fungible: tokens.Group{Tokens: []*tokens.TokenAccount{token(3, 22, 7), token(1, 20, 5), token(2, 21, 6)}},
		NFTs:     tokens.Group{Tokens: []*tokens.TokenAccount{token(5, 24, 1), token(4, 23, 1)}},
	}

	fa, err := tokens.Fingerprint(a)
	require.NoError(t, err)
	fb, err := tokens.Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)

	// Input slices are not reordered.
	assert.Equal(t, addr(3), b.Fungible.Tokens[0].Key)
}

func TestFingerprint_Changes(t *testing.T) {
	base := &tokens.Aggregate{
		Fungible: tokens.Group{Tokens: []*tokens.TokenAccount{token(1, 20, 5), token(2, 21, 6)}},
	}
	fp, err := tokens.Fingerprint(base)
	require.NoError(t, err)

	tests := []struct {
		name string
		agg  *tokens.Aggregate
	}{
		{"token added", &tokens.Aggregate{Fungible: tokens.Group{Tokens: []*tokens.TokenAccount{token(1, 20, 5), token(2, 21, 6), token(3, 22, 1)}}}},
		{"token removed", &tokens.Aggregate{Fungible: tokens.Group{Tokens: []*tokens.TokenAccount{token(1, 20, 5)}}}},
		{"balance changed", &tokens.Aggregate{Fungible: tokens.Group{Tokens: []*tokens.TokenAccount{token(1, 20, 5), token(2, 21, 9)}}}},
		{"moved to nfts", &tokens.Aggregate{
			Fungible: tokens.Group{Tokens: []*tokens.TokenAccount{token(1, 20, 5)}},
			NFTs:     tokens.Group{Tokens: []*tokens.TokenAccount{token(2, 21, 6)}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tokens.Fingerprint(tt.agg)
			require.NoError(t, err)
			assert.NotEqual(t, fp, got)
		})
	}
}

func TestFingerprint_IgnoresMintsAndMetadata(t *testing.T) {
	w := newWallet()
	tr := w.Install(stub.NewTransport())
	client := solana.NewClient(tr, "")

	agg, err := tokens.Fetch(context.Background(), client, w.Owner())
	require.NoError(t, err)
	fp, err := tokens.Fingerprint(agg)
	require.NoError(t, err)

	agg.Mints = nil
	agg.NFTs.Metadata = []*tokens.Metadata{{Name: "renamed"}}
	stripped, err := tokens.Fingerprint(agg)
	require.NoError(t, err)
	assert.Equal(t, fp, stripped)
}

func TestFingerprint_Empty(t *testing.T) {
	a, err := tokens.Fingerprint(&tokens.Aggregate{})
	require.NoError(t, err)
	b, err := tokens.Fingerprint(&tokens.Aggregate{
		Fungible: tokens.Group{Tokens: []*tokens.TokenAccount{}},
	})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
