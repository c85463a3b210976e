package tokens

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
)

// Fingerprint computes a deterministic digest of the token accounts in agg.
// Formula: SHA256(JSON({nfts: sorted(nftTokens), fts: sorted(fungibleTokens)}))
// Tokens are sorted by account address; mints and metadata are left out.
// Returns hex-encoded hash (64 characters).
func Fingerprint(agg *Aggregate) (string, error) {
	doc := struct {
		NFTs []*TokenAccount `json:"nfts"`
		FTs  []*TokenAccount `json:"fts"`
	}{
		NFTs: sortedByKey(agg.NFTs.Tokens),
		FTs:  sortedByKey(agg.Fungible.Tokens),
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	hash := sha256.Sum256(b)
	return hex.EncodeToString(hash[:]), nil
}

func sortedByKey(tokens []*TokenAccount) []*TokenAccount {
	out := slices.Clone(tokens)
	if out == nil {
		out = []*TokenAccount{}
	}
	slices.SortFunc(out, func(a, b *TokenAccount) int { return a.Key.Compare(b.Key) })
	return out
}
