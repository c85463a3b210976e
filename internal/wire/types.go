package wire

import (
	"encoding/json"
	"fmt"
	"math/big"

	"solana-conn-proxy/internal/solana"
)

// AccountInfo is an account with its data encoded by a BlobCodec.
type AccountInfo struct {
	Lamports   uint64          `json:"lamports"`
	Owner      string          `json:"owner"`
	Data       json.RawMessage `json:"data"`
	Executable bool            `json:"executable"`
	RentEpoch  uint64          `json:"rentEpoch"`
}

// AccountInfoResult is an optional account with its context.
type AccountInfoResult struct {
	Context solana.Context `json:"context"`
	Value   *AccountInfo   `json:"value"`
}

// KeyedAccount is an account with its address.
type KeyedAccount struct {
	Pubkey  string      `json:"pubkey"`
	Account AccountInfo `json:"account"`
}

// KeyedAccountsResult is a keyed account list with its context.
type KeyedAccountsResult struct {
	Context solana.Context `json:"context"`
	Value   []KeyedAccount `json:"value"`
}

// EncodeAccountInfo converts an account to its wire form. A nil account
// stays nil.
func EncodeAccountInfo(c BlobCodec, a *solana.AccountInfo) (*AccountInfo, error) {
	if a == nil {
		return nil, nil
	}
	data, err := c.EncodeBlob(a.Data)
	if err != nil {
		return nil, err
	}
	return &AccountInfo{
		Lamports:   a.Lamports,
		Owner:      a.Owner.String(),
		Data:       data,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
	}, nil
}

// Decode reconstructs the account.
func (a *AccountInfo) Decode(c BlobCodec) (*solana.AccountInfo, error) {
	if a == nil {
		return nil, nil
	}
	owner, err := ParseAddress(a.Owner)
	if err != nil {
		return nil, fmt.Errorf("account owner: %w", err)
	}
	data, err := c.DecodeBlob(a.Data)
	if err != nil {
		return nil, fmt.Errorf("account data: %w", err)
	}
	return &solana.AccountInfo{
		Lamports:   a.Lamports,
		Owner:      owner,
		Data:       data,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
	}, nil
}

// EncodeAccountInfoResult converts an account result to its wire form.
func EncodeAccountInfoResult(c BlobCodec, r *solana.AccountInfoResult) (*AccountInfoResult, error) {
	value, err := EncodeAccountInfo(c, r.Value)
	if err != nil {
		return nil, err
	}
	return &AccountInfoResult{Context: r.Context, Value: value}, nil
}

// Decode reconstructs the account result.
func (r *AccountInfoResult) Decode(c BlobCodec) (*solana.AccountInfoResult, error) {
	value, err := r.Value.Decode(c)
	if err != nil {
		return nil, err
	}
	return &solana.AccountInfoResult{Context: r.Context, Value: value}, nil
}

// EncodeAccountInfos converts an optional-account list in order.
func EncodeAccountInfos(c BlobCodec, accounts []*solana.AccountInfo) ([]*AccountInfo, error) {
	out := make([]*AccountInfo, len(accounts))
	for i, a := range accounts {
		w, err := EncodeAccountInfo(c, a)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

// DecodeAccountInfos reconstructs an optional-account list in order.
func DecodeAccountInfos(c BlobCodec, accounts []*AccountInfo) ([]*solana.AccountInfo, error) {
	out := make([]*solana.AccountInfo, len(accounts))
	for i, a := range accounts {
		d, err := a.Decode(c)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}

// EncodeKeyedAccounts converts keyed accounts to their wire form.
func EncodeKeyedAccounts(c BlobCodec, accounts []solana.KeyedAccount) ([]KeyedAccount, error) {
	out := make([]KeyedAccount, 0, len(accounts))
	for _, ka := range accounts {
		acc, err := EncodeAccountInfo(c, &ka.Account)
		if err != nil {
			return nil, err
		}
		out = append(out, KeyedAccount{Pubkey: ka.Pubkey.String(), Account: *acc})
	}
	return out, nil
}

// DecodeKeyedAccounts reconstructs keyed accounts.
func DecodeKeyedAccounts(c BlobCodec, accounts []KeyedAccount) ([]solana.KeyedAccount, error) {
	out := make([]solana.KeyedAccount, 0, len(accounts))
	for _, ka := range accounts {
		key, err := ParseAddress(ka.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("pubkey: %w", err)
		}
		acc, err := ka.Account.Decode(c)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", ka.Pubkey, err)
		}
		out = append(out, solana.KeyedAccount{Pubkey: key, Account: *acc})
	}
	return out, nil
}

// EncodeKeyedAccountsResult converts a keyed account result.
func EncodeKeyedAccountsResult(c BlobCodec, r *solana.KeyedAccountsResult) (*KeyedAccountsResult, error) {
	value, err := EncodeKeyedAccounts(c, r.Value)
	if err != nil {
		return nil, err
	}
	return &KeyedAccountsResult{Context: r.Context, Value: value}, nil
}

// Decode reconstructs the keyed account result.
func (r *KeyedAccountsResult) Decode(c BlobCodec) (*solana.KeyedAccountsResult, error) {
	value, err := DecodeKeyedAccounts(c, r.Value)
	if err != nil {
		return nil, err
	}
	return &solana.KeyedAccountsResult{Context: r.Context, Value: value}, nil
}

// FormatBigInt renders n as a decimal string; nil renders as "0".
func FormatBigInt(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

// ParseBigInt parses a decimal string.
func ParseBigInt(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid integer %q", ErrInvalidParams, s)
	}
	return n, nil
}

// ParseAddress parses a base58 address string.
func ParseAddress(s string) (solana.Address, error) {
	a, err := solana.ParseAddress(s)
	if err != nil {
		return solana.Address{}, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return a, nil
}
