// Package proxy is the foreground stand-in for the connection supervisor.
// A Connection exposes the supervisor's operations and forwards each call
// over a message channel, converting arguments and results to and from
// their transport-safe forms.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"solana-conn-proxy/internal/channel"
	"solana-conn-proxy/internal/solana"
	"solana-conn-proxy/internal/tokens"
	"solana-conn-proxy/internal/wire"
)

// API is the operation surface shared by the supervisor and its proxies.
// Subscriptions and the other unported connection operations are not part
// of it; Connection.Invoke rejects them.
type API interface {
	CustomSplTokenAccounts(ctx context.Context, wallet solana.Address) (*tokens.Aggregate, error)
	CustomSplMetadataURI(ctx context.Context, toks []*tokens.TokenAccount, metadata []*tokens.Metadata) ([]tokens.MetadataURIResult, error)
	GetAccountInfo(ctx context.Context, addr solana.Address, commitment solana.Commitment) (*solana.AccountInfo, error)
	GetAccountInfoAndContext(ctx context.Context, addr solana.Address, commitment solana.Commitment) (*solana.AccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment solana.Commitment) (*solana.Blockhash, error)
	GetLatestBlockhashAndContext(ctx context.Context, commitment solana.Commitment) (*solana.BlockhashResult, error)
	GetTokenAccountsByOwner(ctx context.Context, owner solana.Address, filter solana.TokenAccountsFilter, commitment solana.Commitment) (*solana.KeyedAccountsResult, error)
	SendRawTransaction(ctx context.Context, tx []byte, opts *solana.SendOptions) (string, error)
	ConfirmTransaction(ctx context.Context, signature string, commitment solana.Commitment) (*solana.ConfirmResult, error)
	SimulateTransaction(ctx context.Context, tx []byte, opts *solana.SimulateOptions) (*solana.SimulateResult, error)
	GetMultipleAccountsInfo(ctx context.Context, addrs []solana.Address, commitment solana.Commitment) ([]*solana.AccountInfo, error)
	GetConfirmedSignaturesForAddress2(ctx context.Context, addr solana.Address, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error)
	GetParsedTransactions(ctx context.Context, signatures []string, commitment solana.Commitment) ([]json.RawMessage, error)
	GetParsedTransaction(ctx context.Context, signature string, commitment solana.Commitment) (json.RawMessage, error)
	GetProgramAccounts(ctx context.Context, program solana.Address, opts *solana.ProgramAccountsOpts) ([]solana.KeyedAccount, error)
	GetFeeForMessage(ctx context.Context, message []byte, commitment solana.Commitment) (*solana.FeeResult, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataLen uint64, commitment solana.Commitment) (uint64, error)
	GetTokenAccountBalance(ctx context.Context, addr solana.Address, commitment solana.Commitment) (*solana.TokenAmountResult, error)
	GetBalance(ctx context.Context, addr solana.Address, commitment solana.Commitment) (uint64, error)
	GetSlot(ctx context.Context, commitment solana.Commitment) (uint64, error)
	GetBlockTime(ctx context.Context, slot uint64) (*int64, error)
	GetParsedTokenAccountsByOwner(ctx context.Context, owner solana.Address, filter solana.TokenAccountsFilter, commitment solana.Commitment) (*solana.ParsedKeyedAccountsResult, error)
	GetTokenLargestAccounts(ctx context.Context, mint solana.Address, commitment solana.Commitment) (*solana.TokenLargestAccountsResult, error)
	GetParsedAccountInfo(ctx context.Context, addr solana.Address, commitment solana.Commitment) (*solana.ParsedAccountResult, error)
	GetParsedProgramAccounts(ctx context.Context, program solana.Address, opts *solana.ProgramAccountsOpts) ([]solana.ParsedKeyedAccount, error)
	GetAddressLookupTable(ctx context.Context, addr solana.Address, commitment solana.Commitment) (*solana.AddressLookupTableResult, error)
}

// Connection forwards API calls over a channel. The codec must match the
// profile the supervisor serves.
type Connection struct {
	ch    channel.Channel
	codec wire.BlobCodec
}

// New creates a proxy over ch.
func New(ch channel.Channel, codec wire.BlobCodec) *Connection {
	if codec == nil {
		codec = wire.Base58Codec{}
	}
	return &Connection{ch: ch, codec: codec}
}

// Codec returns the blob codec in use.
func (c *Connection) Codec() wire.BlobCodec {
	return c.codec
}

// Invoke sends method with args and returns the raw result. Unported
// operations fail with *solana.UnsupportedError and unknown methods with
// wire.ErrUnknownMethod; neither is sent.
func (c *Connection) Invoke(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	switch {
	case wire.IsSupported(method):
	case wire.IsUnsupported(method):
		return nil, &solana.UnsupportedError{Method: method}
	default:
		return nil, fmt.Errorf("%w: %q", wire.ErrUnknownMethod, method)
	}

	req, err := wire.NewRequest(uuid.NewString(), method, args...)
	if err != nil {
		return nil, err
	}
	resp, err := c.ch.Call(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// call invokes method and decodes its result into dst. A null result
// leaves dst unchanged.
func (c *Connection) call(ctx context.Context, dst any, method string, args ...any) error {
	raw, err := c.Invoke(ctx, method, args...)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

func (c *Connection) blob(b []byte) (json.RawMessage, error) {
	raw, err := c.codec.EncodeBlob(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wire.ErrInvalidParams, err)
	}
	return raw, nil
}

// CustomSplTokenAccounts implements API.
func (c *Connection) CustomSplTokenAccounts(ctx context.Context, wallet solana.Address) (*tokens.Aggregate, error) {
	var agg tokens.Aggregate
	if err := c.call(ctx, &agg, wire.MethodCustomSplTokenAccounts, wallet); err != nil {
		return nil, err
	}
	return &agg, nil
}

// CustomSplMetadataURI implements API.
func (c *Connection) CustomSplMetadataURI(ctx context.Context, toks []*tokens.TokenAccount, metadata []*tokens.Metadata) ([]tokens.MetadataURIResult, error) {
	var out []tokens.MetadataURIResult
	if err := c.call(ctx, &out, wire.MethodCustomSplMetadataURI, toks, metadata); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAccountInfo implements API.
func (c *Connection) GetAccountInfo(ctx context.Context, addr solana.Address, commitment solana.Commitment) (*solana.AccountInfo, error) {
	var w *wire.AccountInfo
	if err := c.call(ctx, &w, wire.MethodGetAccountInfo, addr, commitment); err != nil {
		return nil, err
	}
	return w.Decode(c.codec)
}

// GetAccountInfoAndContext implements API.
func (c *Connection) GetAccountInfoAndContext(ctx context.Context, addr solana.Address, commitment solana.Commitment) (*solana.AccountInfoResult, error) {
	var w wire.AccountInfoResult
	if err := c.call(ctx, &w, wire.MethodGetAccountInfoAndContext, addr, commitment); err != nil {
		return nil, err
	}
	return w.Decode(c.codec)
}

// GetLatestBlockhash implements API.
func (c *Connection) GetLatestBlockhash(ctx context.Context, commitment solana.Commitment) (*solana.Blockhash, error) {
	var out solana.Blockhash
	if err := c.call(ctx, &out, wire.MethodGetLatestBlockhash, commitment); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLatestBlockhashAndContext implements API.
func (c *Connection) GetLatestBlockhashAndContext(ctx context.Context, commitment solana.Commitment) (*solana.BlockhashResult, error) {
	var out solana.BlockhashResult
	if err := c.call(ctx, &out, wire.MethodGetLatestBlockhashAndContext, commitment); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTokenAccountsByOwner implements API.
func (c *Connection) GetTokenAccountsByOwner(ctx context.Context, owner solana.Address, filter solana.TokenAccountsFilter, commitment solana.Commitment) (*solana.KeyedAccountsResult, error) {
	var w wire.KeyedAccountsResult
	if err := c.call(ctx, &w, wire.MethodGetTokenAccountsByOwner, owner, filter, commitment); err != nil {
		return nil, err
	}
	return w.Decode(c.codec)
}

// SendRawTransaction implements API.
func (c *Connection) SendRawTransaction(ctx context.Context, tx []byte, opts *solana.SendOptions) (string, error) {
	raw, err := c.blob(tx)
	if err != nil {
		return "", err
	}
	var sig string
	if err := c.call(ctx, &sig, wire.MethodSendRawTransaction, raw, opts); err != nil {
		return "", err
	}
	return sig, nil
}

// ConfirmTransaction implements API. The wait runs on the supervisor; ctx
// bounds only how long this caller listens for it.
func (c *Connection) ConfirmTransaction(ctx context.Context, signature string, commitment solana.Commitment) (*solana.ConfirmResult, error) {
	var out solana.ConfirmResult
	if err := c.call(ctx, &out, wire.MethodConfirmTransaction, signature, commitment); err != nil {
		return nil, err
	}
	return &out, nil
}

// SimulateTransaction implements API.
func (c *Connection) SimulateTransaction(ctx context.Context, tx []byte, opts *solana.SimulateOptions) (*solana.SimulateResult, error) {
	raw, err := c.blob(tx)
	if err != nil {
		return nil, err
	}
	var out solana.SimulateResult
	if err := c.call(ctx, &out, wire.MethodSimulateTransaction, raw, opts); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMultipleAccountsInfo implements API.
func (c *Connection) GetMultipleAccountsInfo(ctx context.Context, addrs []solana.Address, commitment solana.Commitment) ([]*solana.AccountInfo, error) {
	if addrs == nil {
		addrs = []solana.Address{}
	}
	var w []*wire.AccountInfo
	if err := c.call(ctx, &w, wire.MethodGetMultipleAccountsInfo, addrs, commitment); err != nil {
		return nil, err
	}
	return wire.DecodeAccountInfos(c.codec, w)
}

// GetConfirmedSignaturesForAddress2 implements API.
func (c *Connection) GetConfirmedSignaturesForAddress2(ctx context.Context, addr solana.Address, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	var out []solana.SignatureInfo
	if err := c.call(ctx, &out, wire.MethodGetConfirmedSignaturesForAddr2, addr, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// GetParsedTransactions implements API.
func (c *Connection) GetParsedTransactions(ctx context.Context, signatures []string, commitment solana.Commitment) ([]json.RawMessage, error) {
	if signatures == nil {
		signatures = []string{}
	}
	var out []json.RawMessage
	if err := c.call(ctx, &out, wire.MethodGetParsedTransactions, signatures, commitment); err != nil {
		return nil, err
	}
	return out, nil
}

// GetParsedTransaction implements API. A transaction the node has not seen
// yields nil.
func (c *Connection) GetParsedTransaction(ctx context.Context, signature string, commitment solana.Commitment) (json.RawMessage, error) {
	raw, err := c.Invoke(ctx, wire.MethodGetParsedTransaction, signature, commitment)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

// GetProgramAccounts implements API.
func (c *Connection) GetProgramAccounts(ctx context.Context, program solana.Address, opts *solana.ProgramAccountsOpts) ([]solana.KeyedAccount, error) {
	var w []wire.KeyedAccount
	if err := c.call(ctx, &w, wire.MethodGetProgramAccounts, program, opts); err != nil {
		return nil, err
	}
	return wire.DecodeKeyedAccounts(c.codec, w)
}

// GetFeeForMessage implements API.
func (c *Connection) GetFeeForMessage(ctx context.Context, message []byte, commitment solana.Commitment) (*solana.FeeResult, error) {
	raw, err := c.blob(message)
	if err != nil {
		return nil, err
	}
	var out solana.FeeResult
	if err := c.call(ctx, &out, wire.MethodGetFeeForMessage, raw, commitment); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMinimumBalanceForRentExemption implements API.
func (c *Connection) GetMinimumBalanceForRentExemption(ctx context.Context, dataLen uint64, commitment solana.Commitment) (uint64, error) {
	var out uint64
	err := c.call(ctx, &out, wire.MethodGetMinimumBalanceForRentExempt, dataLen, commitment)
	return out, err
}

// GetTokenAccountBalance implements API.
func (c *Connection) GetTokenAccountBalance(ctx context.Context, addr solana.Address, commitment solana.Commitment) (*solana.TokenAmountResult, error) {
	var out solana.TokenAmountResult
	if err := c.call(ctx, &out, wire.MethodGetTokenAccountBalance, addr, commitment); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBalance implements API.
func (c *Connection) GetBalance(ctx context.Context, addr solana.Address, commitment solana.Commitment) (uint64, error) {
	var out uint64
	err := c.call(ctx, &out, wire.MethodGetBalance, addr, commitment)
	return out, err
}

// GetSlot implements API.
func (c *Connection) GetSlot(ctx context.Context, commitment solana.Commitment) (uint64, error) {
	var out uint64
	err := c.call(ctx, &out, wire.MethodGetSlot, commitment)
	return out, err
}

// GetBlockTime implements API.
func (c *Connection) GetBlockTime(ctx context.Context, slot uint64) (*int64, error) {
	var out *int64
	if err := c.call(ctx, &out, wire.MethodGetBlockTime, slot); err != nil {
		return nil, err
	}
	return out, nil
}

// GetParsedTokenAccountsByOwner implements API.
func (c *Connection) GetParsedTokenAccountsByOwner(ctx context.Context, owner solana.Address, filter solana.TokenAccountsFilter, commitment solana.Commitment) (*solana.ParsedKeyedAccountsResult, error) {
	var out solana.ParsedKeyedAccountsResult
	if err := c.call(ctx, &out, wire.MethodGetParsedTokenAccountsByOwner, owner, filter, commitment); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTokenLargestAccounts implements API.
func (c *Connection) GetTokenLargestAccounts(ctx context.Context, mint solana.Address, commitment solana.Commitment) (*solana.TokenLargestAccountsResult, error) {
	var out solana.TokenLargestAccountsResult
	if err := c.call(ctx, &out, wire.MethodGetTokenLargestAccounts, mint, commitment); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetParsedAccountInfo implements API.
func (c *Connection) GetParsedAccountInfo(ctx context.Context, addr solana.Address, commitment solana.Commitment) (*solana.ParsedAccountResult, error) {
	var out solana.ParsedAccountResult
	if err := c.call(ctx, &out, wire.MethodGetParsedAccountInfo, addr, commitment); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetParsedProgramAccounts implements API.
func (c *Connection) GetParsedProgramAccounts(ctx context.Context, program solana.Address, opts *solana.ProgramAccountsOpts) ([]solana.ParsedKeyedAccount, error) {
	var out []solana.ParsedKeyedAccount
	if err := c.call(ctx, &out, wire.MethodGetParsedProgramAccounts, program, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAddressLookupTable implements API.
func (c *Connection) GetAddressLookupTable(ctx context.Context, addr solana.Address, commitment solana.Commitment) (*solana.AddressLookupTableResult, error) {
	var out solana.AddressLookupTableResult
	if err := c.call(ctx, &out, wire.MethodGetAddressLookupTable, addr, commitment); err != nil {
		return nil, err
	}
	return &out, nil
}

// Close closes the underlying channel.
func (c *Connection) Close() error {
	return c.ch.Close()
}

// Compile-time interface check.
var _ API = (*Connection)(nil)
