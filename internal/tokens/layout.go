// Package tokens builds the wallet token-account aggregate: SPL token
// accounts, their mints and Metaplex metadata, classified into fungible
// tokens and NFTs.
package tokens

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"solana-conn-proxy/internal/solana"
)

// Account layout sizes.
const (
	TokenAccountSize = 165
	MintSize         = 82
)

// Token account states.
const (
	AccountUninitialized uint8 = iota
	AccountInitialized
	AccountFrozen
)

// TokenAccount is a decoded SPL token account.
type TokenAccount struct {
	Key             solana.Address
	ProgramID       solana.Address
	Mint            solana.Address
	Owner           solana.Address
	Amount          *big.Int
	Delegate        *solana.Address
	State           uint8
	IsNative        *uint64
	DelegatedAmount *big.Int
	CloseAuthority  *solana.Address
}

// Mint is a decoded SPL mint.
type Mint struct {
	MintAuthority   *solana.Address
	Supply          *big.Int
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority *solana.Address
}

// IsNFT reports whether the mint is a non-fungible token: zero decimals
// and a supply of exactly one.
func (m *Mint) IsNFT() bool {
	return m != nil && m.Decimals == 0 && m.Supply != nil && m.Supply.Cmp(big.NewInt(1)) == 0
}

// Metadata is the on-chain Metaplex token metadata.
type Metadata struct {
	Key                  solana.Address
	UpdateAuthority      solana.Address
	Mint                 solana.Address
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
}

// ErrInvalidLayout is returned when account data does not match a layout.
var ErrInvalidLayout = errors.New("invalid account layout")

func readOptionalAddress(data []byte, off int) *solana.Address {
	if binary.LittleEndian.Uint32(data[off:off+4]) == 0 {
		return nil
	}
	var a solana.Address
	copy(a[:], data[off+4:off+4+solana.AddressLength])
	return &a
}

func readU64(data []byte, off int) *big.Int {
	return new(big.Int).SetUint64(binary.LittleEndian.Uint64(data[off : off+8]))
}

// DecodeTokenAccount parses an SPL token account.
// Layout (165 bytes, Token-2022 extensions follow and are ignored):
//
//	mint(32) owner(32) amount(8) delegate(COption<Pubkey> 36) state(1)
//	isNative(COption<u64> 12) delegatedAmount(8) closeAuthority(COption<Pubkey> 36)
func DecodeTokenAccount(key, programID solana.Address, data []byte) (*TokenAccount, error) {
	if len(data) < TokenAccountSize {
		return nil, fmt.Errorf("%w: token account %s is %d bytes", ErrInvalidLayout, key, len(data))
	}
	acc := &TokenAccount{
		Key:             key,
		ProgramID:       programID,
		Amount:          readU64(data, 64),
		Delegate:        readOptionalAddress(data, 72),
		State:           data[108],
		DelegatedAmount: readU64(data, 121),
		CloseAuthority:  readOptionalAddress(data, 129),
	}
	copy(acc.Mint[:], data[0:32])
	copy(acc.Owner[:], data[32:64])
	if binary.LittleEndian.Uint32(data[109:113]) != 0 {
		native := binary.LittleEndian.Uint64(data[113:121])
		acc.IsNative = &native
	}
	if acc.State == AccountUninitialized {
		return nil, fmt.Errorf("%w: token account %s is uninitialized", ErrInvalidLayout, key)
	}
	return acc, nil
}

// DecodeMint parses an SPL mint.
// Layout (82 bytes):
//
//	mintAuthority(COption<Pubkey> 36) supply(8) decimals(1) isInitialized(1)
//	freezeAuthority(COption<Pubkey> 36)
func DecodeMint(data []byte) (*Mint, error) {
	if len(data) < MintSize {
		return nil, fmt.Errorf("%w: mint is %d bytes", ErrInvalidLayout, len(data))
	}
	return &Mint{
		MintAuthority:   readOptionalAddress(data, 0),
		Supply:          readU64(data, 36),
		Decimals:        data[44],
		IsInitialized:   data[45] == 1,
		FreezeAuthority: readOptionalAddress(data, 46),
	}, nil
}

const metadataV1Key = 4

// DecodeMetadata parses a Metaplex metadata account.
// Layout: key(1) updateAuthority(32) mint(32) name(borsh string)
// symbol(borsh string) uri(borsh string) sellerFeeBasisPoints(2) ...
func DecodeMetadata(key solana.Address, data []byte) (*Metadata, error) {
	if len(data) < 65 || data[0] != metadataV1Key {
		return nil, fmt.Errorf("%w: not a metadata account", ErrInvalidLayout)
	}
	m := &Metadata{Key: key}
	copy(m.UpdateAuthority[:], data[1:33])
	copy(m.Mint[:], data[33:65])

	off := 65
	var err error
	if m.Name, off, err = readBorshString(data, off, 200); err != nil {
		return nil, fmt.Errorf("metadata name: %w", err)
	}
	if m.Symbol, off, err = readBorshString(data, off, 50); err != nil {
		return nil, fmt.Errorf("metadata symbol: %w", err)
	}
	if m.URI, off, err = readBorshString(data, off, 400); err != nil {
		return nil, fmt.Errorf("metadata uri: %w", err)
	}
	if off+2 <= len(data) {
		m.SellerFeeBasisPoints = binary.LittleEndian.Uint16(data[off:])
	}
	return m, nil
}

// readBorshString reads a u32 length-prefixed string and trims the NUL
// padding Metaplex stores fixed-width fields with.
func readBorshString(data []byte, off, max int) (string, int, error) {
	if off+4 > len(data) {
		return "", off, fmt.Errorf("%w: truncated length", ErrInvalidLayout)
	}
	n := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if n > max || off+n > len(data) {
		return "", off, fmt.Errorf("%w: string length %d", ErrInvalidLayout, n)
	}
	s := strings.TrimRight(string(data[off:off+n]), "\x00")
	return s, off + n, nil
}
