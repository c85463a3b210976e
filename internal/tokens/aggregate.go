package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"slices"

	"golang.org/x/sync/errgroup"

	"solana-conn-proxy/internal/solana"
	"solana-conn-proxy/internal/wire"
)

// TokenPrograms are the programs whose accounts make up a wallet's tokens.
var TokenPrograms = []solana.Address{solana.TokenProgramID, solana.Token2022ProgramID}

// MintEntry pairs a mint address with its decoded state. Mint is nil when
// the account does not exist or cannot be decoded.
type MintEntry struct {
	Address solana.Address
	Mint    *Mint
}

// Group is a set of token accounts with their metadata. Metadata[i]
// belongs to Tokens[i] and is nil when the mint has none.
type Group struct {
	Tokens   []*TokenAccount
	Metadata []*Metadata
}

// Aggregate is a wallet's token accounts with their mints and metadata,
// split into fungible tokens and NFTs.
type Aggregate struct {
	Mints    []MintEntry
	Fungible Group
	NFTs     Group
}

// Fetch loads the token aggregate for owner. Accounts under every token
// program are fetched concurrently; mints and metadata PDAs are then
// batched through getMultipleAccounts. Undecodable accounts are skipped.
func Fetch(ctx context.Context, client *solana.Client, owner solana.Address) (*Aggregate, error) {
	perProgram := make([][]*TokenAccount, len(TokenPrograms))
	g, gctx := errgroup.WithContext(ctx)
	for i, program := range TokenPrograms {
		g.Go(func() error {
			res, err := client.GetTokenAccountsByOwner(gctx, owner, solana.TokenAccountsFilter{ProgramID: &program}, "")
			if err != nil {
				return fmt.Errorf("token accounts for %s: %w", program, err)
			}
			for _, ka := range res.Value {
				acc, err := DecodeTokenAccount(ka.Pubkey, program, ka.Account.Data)
				if err != nil {
					continue
				}
				perProgram[i] = append(perProgram[i], acc)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var accounts []*TokenAccount
	for _, accs := range perProgram {
		accounts = append(accounts, accs...)
	}
	slices.SortFunc(accounts, func(a, b *TokenAccount) int { return a.Key.Compare(b.Key) })

	mintAddrs := uniqueMints(accounts)
	mintInfos, err := client.GetMultipleAccountsInfo(ctx, mintAddrs, "")
	if err != nil {
		return nil, fmt.Errorf("mint accounts: %w", err)
	}
	mints := make(map[solana.Address]*Mint, len(mintAddrs))
	agg := &Aggregate{Mints: make([]MintEntry, 0, len(mintAddrs))}
	for i, addr := range mintAddrs {
		var m *Mint
		if info := mintInfos[i]; info != nil {
			m, _ = DecodeMint(info.Data)
		}
		mints[addr] = m
		agg.Mints = append(agg.Mints, MintEntry{Address: addr, Mint: m})
	}

	metadata, err := fetchMetadata(ctx, client, mintAddrs)
	if err != nil {
		return nil, err
	}

	for _, acc := range accounts {
		group := &agg.Fungible
		if mints[acc.Mint].IsNFT() {
			group = &agg.NFTs
		}
		group.Tokens = append(group.Tokens, acc)
		group.Metadata = append(group.Metadata, metadata[acc.Mint])
	}
	return agg, nil
}

func uniqueMints(accounts []*TokenAccount) []solana.Address {
	seen := make(map[solana.Address]bool, len(accounts))
	var out []solana.Address
	for _, acc := range accounts {
		if !seen[acc.Mint] {
			seen[acc.Mint] = true
			out = append(out, acc.Mint)
		}
	}
	slices.SortFunc(out, solana.Address.Compare)
	return out
}

func fetchMetadata(ctx context.Context, client *solana.Client, mints []solana.Address) (map[solana.Address]*Metadata, error) {
	pdas := make([]solana.Address, 0, len(mints))
	owners := make([]solana.Address, 0, len(mints))
	for _, mint := range mints {
		pda, err := solana.MetadataAddress(mint)
		if err != nil {
			continue
		}
		pdas = append(pdas, pda)
		owners = append(owners, mint)
	}
	infos, err := client.GetMultipleAccountsInfo(ctx, pdas, "")
	if err != nil {
		return nil, fmt.Errorf("metadata accounts: %w", err)
	}
	out := make(map[solana.Address]*Metadata, len(pdas))
	for i, info := range infos {
		if info == nil || info.Owner != solana.TokenMetadataProgramID {
			continue
		}
		md, err := DecodeMetadata(pdas[i], info.Data)
		if err != nil || md.Mint != owners[i] {
			continue
		}
		out[owners[i]] = md
	}
	return out, nil
}

// JSON form. Addresses are base58 strings and integers decimal strings.

type tokenAccountJSON struct {
	Key             string  `json:"key"`
	ProgramID       string  `json:"programId"`
	Mint            string  `json:"mint"`
	Authority       string  `json:"authority"`
	Amount          string  `json:"amount"`
	Delegate        *string `json:"delegate,omitempty"`
	State           uint8   `json:"state"`
	IsNative        *string `json:"isNative,omitempty"`
	DelegatedAmount string  `json:"delegatedAmount"`
	CloseAuthority  *string `json:"closeAuthority,omitempty"`
}

type mintJSON struct {
	MintAuthority   *string `json:"mintAuthority,omitempty"`
	Supply          string  `json:"supply"`
	Decimals        uint8   `json:"decimals"`
	IsInitialized   bool    `json:"isInitialized"`
	FreezeAuthority *string `json:"freezeAuthority,omitempty"`
}

type metadataJSON struct {
	Key                  string `json:"key"`
	UpdateAuthority      string `json:"updateAuthority"`
	Mint                 string `json:"mint"`
	Name                 string `json:"name"`
	Symbol               string `json:"symbol"`
	URI                  string `json:"uri"`
	SellerFeeBasisPoints uint16 `json:"sellerFeeBasisPoints"`
}

type aggregateJSON struct {
	MintsMap [][2]json.RawMessage `json:"mintsMap"`
	FTs      struct {
		FungibleTokens        []*TokenAccount `json:"fungibleTokens"`
		FungibleTokenMetadata []*Metadata     `json:"fungibleTokenMetadata"`
	} `json:"fts"`
	NFTs struct {
		NFTTokens        []*TokenAccount `json:"nftTokens"`
		NFTTokenMetadata []*Metadata     `json:"nftTokenMetadata"`
	} `json:"nfts"`
}

func optAddr(a *solana.Address) *string {
	if a == nil {
		return nil
	}
	s := a.String()
	return &s
}

func parseOptAddr(s *string) (*solana.Address, error) {
	if s == nil {
		return nil, nil
	}
	a, err := solana.ParseAddress(*s)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func parseBig(field, s string) (*big.Int, error) {
	n, err := wire.ParseBigInt(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return n, nil
}

// MarshalJSON encodes the account with string amounts and addresses.
func (t *TokenAccount) MarshalJSON() ([]byte, error) {
	j := tokenAccountJSON{
		Key:             t.Key.String(),
		ProgramID:       t.ProgramID.String(),
		Mint:            t.Mint.String(),
		Authority:       t.Owner.String(),
		Amount:          wire.FormatBigInt(t.Amount),
		Delegate:        optAddr(t.Delegate),
		State:           t.State,
		DelegatedAmount: wire.FormatBigInt(t.DelegatedAmount),
		CloseAuthority:  optAddr(t.CloseAuthority),
	}
	if t.IsNative != nil {
		s := wire.FormatBigInt(new(big.Int).SetUint64(*t.IsNative))
		j.IsNative = &s
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes the string form produced by MarshalJSON.
func (t *TokenAccount) UnmarshalJSON(data []byte) error {
	var j tokenAccountJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	var err error
	if t.Key, err = solana.ParseAddress(j.Key); err != nil {
		return fmt.Errorf("key: %w", err)
	}
	if t.ProgramID, err = solana.ParseAddress(j.ProgramID); err != nil {
		return fmt.Errorf("programId: %w", err)
	}
	if t.Mint, err = solana.ParseAddress(j.Mint); err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	if t.Owner, err = solana.ParseAddress(j.Authority); err != nil {
		return fmt.Errorf("authority: %w", err)
	}
	if t.Amount, err = parseBig("amount", j.Amount); err != nil {
		return err
	}
	if t.DelegatedAmount, err = parseBig("delegatedAmount", j.DelegatedAmount); err != nil {
		return err
	}
	if t.Delegate, err = parseOptAddr(j.Delegate); err != nil {
		return fmt.Errorf("delegate: %w", err)
	}
	if t.CloseAuthority, err = parseOptAddr(j.CloseAuthority); err != nil {
		return fmt.Errorf("closeAuthority: %w", err)
	}
	t.State = j.State
	t.IsNative = nil
	if j.IsNative != nil {
		n, err := parseBig("isNative", *j.IsNative)
		if err != nil {
			return err
		}
		if !n.IsUint64() {
			return fmt.Errorf("isNative: %s out of range", n)
		}
		v := n.Uint64()
		t.IsNative = &v
	}
	return nil
}

// MarshalJSON encodes the mint with a string supply.
func (m *Mint) MarshalJSON() ([]byte, error) {
	return json.Marshal(mintJSON{
		MintAuthority:   optAddr(m.MintAuthority),
		Supply:          wire.FormatBigInt(m.Supply),
		Decimals:        m.Decimals,
		IsInitialized:   m.IsInitialized,
		FreezeAuthority: optAddr(m.FreezeAuthority),
	})
}

// UnmarshalJSON decodes the string form produced by MarshalJSON.
func (m *Mint) UnmarshalJSON(data []byte) error {
	var j mintJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	var err error
	if m.Supply, err = parseBig("supply", j.Supply); err != nil {
		return err
	}
	if m.MintAuthority, err = parseOptAddr(j.MintAuthority); err != nil {
		return fmt.Errorf("mintAuthority: %w", err)
	}
	if m.FreezeAuthority, err = parseOptAddr(j.FreezeAuthority); err != nil {
		return fmt.Errorf("freezeAuthority: %w", err)
	}
	m.Decimals = j.Decimals
	m.IsInitialized = j.IsInitialized
	return nil
}

// MarshalJSON encodes the metadata with string addresses.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(metadataJSON{
		Key:                  m.Key.String(),
		UpdateAuthority:      m.UpdateAuthority.String(),
		Mint:                 m.Mint.String(),
		Name:                 m.Name,
		Symbol:               m.Symbol,
		URI:                  m.URI,
		SellerFeeBasisPoints: m.SellerFeeBasisPoints,
	})
}

// UnmarshalJSON decodes the string form produced by MarshalJSON.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var j metadataJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	var err error
	if m.Key, err = solana.ParseAddress(j.Key); err != nil {
		return fmt.Errorf("key: %w", err)
	}
	if m.UpdateAuthority, err = solana.ParseAddress(j.UpdateAuthority); err != nil {
		return fmt.Errorf("updateAuthority: %w", err)
	}
	if m.Mint, err = solana.ParseAddress(j.Mint); err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	m.Name = j.Name
	m.Symbol = j.Symbol
	m.URI = j.URI
	m.SellerFeeBasisPoints = j.SellerFeeBasisPoints
	return nil
}

// MarshalJSON encodes the aggregate in its transport-safe string form.
func (a *Aggregate) MarshalJSON() ([]byte, error) {
	var j aggregateJSON
	j.MintsMap = make([][2]json.RawMessage, 0, len(a.Mints))
	for _, e := range a.Mints {
		addr, err := json.Marshal(e.Address)
		if err != nil {
			return nil, err
		}
		mint := json.RawMessage("null")
		if e.Mint != nil {
			if mint, err = json.Marshal(e.Mint); err != nil {
				return nil, err
			}
		}
		j.MintsMap = append(j.MintsMap, [2]json.RawMessage{addr, mint})
	}
	j.FTs.FungibleTokens = nonNil(a.Fungible.Tokens)
	j.FTs.FungibleTokenMetadata = nonNil(a.Fungible.Metadata)
	j.NFTs.NFTTokens = nonNil(a.NFTs.Tokens)
	j.NFTs.NFTTokenMetadata = nonNil(a.NFTs.Metadata)
	return json.Marshal(j)
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (a *Aggregate) UnmarshalJSON(data []byte) error {
	var j aggregateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	a.Mints = make([]MintEntry, 0, len(j.MintsMap))
	for _, pair := range j.MintsMap {
		var e MintEntry
		if err := json.Unmarshal(pair[0], &e.Address); err != nil {
			return fmt.Errorf("mintsMap: %w", err)
		}
		if string(pair[1]) != "null" && len(pair[1]) > 0 {
			e.Mint = &Mint{}
			if err := json.Unmarshal(pair[1], e.Mint); err != nil {
				return fmt.Errorf("mintsMap %s: %w", e.Address, err)
			}
		}
		a.Mints = append(a.Mints, e)
	}
	if len(j.FTs.FungibleTokens) != len(j.FTs.FungibleTokenMetadata) ||
		len(j.NFTs.NFTTokens) != len(j.NFTs.NFTTokenMetadata) {
		return fmt.Errorf("token and metadata lists differ in length")
	}
	a.Fungible = Group{Tokens: j.FTs.FungibleTokens, Metadata: j.FTs.FungibleTokenMetadata}
	a.NFTs = Group{Tokens: j.NFTs.NFTTokens, Metadata: j.NFTs.NFTTokenMetadata}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
