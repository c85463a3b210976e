package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Method names of the node JSON-RPC API.
const (
	MethodGetAccountInfo                    = "getAccountInfo"
	MethodGetBalance                        = "getBalance"
	MethodGetBlockTime                      = "getBlockTime"
	MethodGetFeeForMessage                  = "getFeeForMessage"
	MethodGetLatestBlockhash                = "getLatestBlockhash"
	MethodGetMinimumBalanceForRentExemption = "getMinimumBalanceForRentExemption"
	MethodGetMultipleAccounts               = "getMultipleAccounts"
	MethodGetProgramAccounts                = "getProgramAccounts"
	MethodGetSignaturesForAddress           = "getSignaturesForAddress"
	MethodGetSlot                           = "getSlot"
	MethodGetTokenAccountBalance            = "getTokenAccountBalance"
	MethodGetTokenAccountsByOwner           = "getTokenAccountsByOwner"
	MethodGetTokenLargestAccounts           = "getTokenLargestAccounts"
	MethodGetTransaction                    = "getTransaction"
	MethodRequestAirdrop                    = "requestAirdrop"
	MethodSendTransaction                   = "sendTransaction"
	MethodSimulateTransaction               = "simulateTransaction"
)

// MaxMultipleAccounts is the node limit for getMultipleAccounts.
const MaxMultipleAccounts = 100

// Client is a typed query surface over a Transport.
type Client struct {
	transport  Transport
	commitment Commitment
}

// NewClient creates a client whose queries default to commitment.
func NewClient(transport Transport, commitment Commitment) *Client {
	if commitment == "" {
		commitment = CommitmentConfirmed
	}
	return &Client{transport: transport, commitment: commitment}
}

// Commitment returns the default commitment.
func (c *Client) Commitment() Commitment {
	return c.commitment
}

// Transport returns the underlying transport.
func (c *Client) Transport() Transport {
	return c.transport
}

// call dispatches method and decodes the result into result.
func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	raw, err := c.transport.Dispatch(ctx, method, params)
	if err != nil {
		return err
	}
	if result == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%s: unmarshal result: %w", method, err)
	}
	return nil
}

func (c *Client) resolve(commitment Commitment) Commitment {
	if commitment == "" {
		return c.commitment
	}
	return commitment
}

// config builds the trailing config object most methods accept.
func config(commitment Commitment, kv ...any) map[string]any {
	m := map[string]any{"commitment": commitment}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

// LatestBlockhashParams returns the params getLatestBlockhash is called
// with, so that out-of-band refreshes share the same cache key.
func LatestBlockhashParams(commitment Commitment) []any {
	return []any{config(commitment)}
}

// GetAccountInfo returns the account at addr, or nil if it does not exist.
func (c *Client) GetAccountInfo(ctx context.Context, addr Address, commitment Commitment) (*AccountInfo, error) {
	res, err := c.GetAccountInfoAndContext(ctx, addr, commitment)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// GetAccountInfoAndContext returns the account at addr with its slot.
func (c *Client) GetAccountInfoAndContext(ctx context.Context, addr Address, commitment Commitment) (*AccountInfoResult, error) {
	params := []any{addr.String(), config(c.resolve(commitment), "encoding", "base64")}
	var res AccountInfoResult
	if err := c.call(ctx, MethodGetAccountInfo, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetMultipleAccountsInfo returns accounts in request order; missing
// accounts are nil. Requests over the node limit are split into batches.
func (c *Client) GetMultipleAccountsInfo(ctx context.Context, addrs []Address, commitment Commitment) ([]*AccountInfo, error) {
	out := make([]*AccountInfo, 0, len(addrs))
	for start := 0; start < len(addrs); start += MaxMultipleAccounts {
		end := min(start+MaxMultipleAccounts, len(addrs))
		keys := make([]string, 0, end-start)
		for _, a := range addrs[start:end] {
			keys = append(keys, a.String())
		}
		params := []any{keys, config(c.resolve(commitment), "encoding", "base64")}
		var res struct {
			Context Context        `json:"context"`
			Value   []*AccountInfo `json:"value"`
		}
		if err := c.call(ctx, MethodGetMultipleAccounts, params, &res); err != nil {
			return nil, err
		}
		if len(res.Value) != end-start {
			return nil, fmt.Errorf("%s: expected %d accounts, got %d", MethodGetMultipleAccounts, end-start, len(res.Value))
		}
		out = append(out, res.Value...)
	}
	return out, nil
}

// GetLatestBlockhash returns the most recent blockhash.
func (c *Client) GetLatestBlockhash(ctx context.Context, commitment Commitment) (*Blockhash, error) {
	res, err := c.GetLatestBlockhashAndContext(ctx, commitment)
	if err != nil {
		return nil, err
	}
	return &res.Value, nil
}

// GetLatestBlockhashAndContext returns the most recent blockhash with its slot.
func (c *Client) GetLatestBlockhashAndContext(ctx context.Context, commitment Commitment) (*BlockhashResult, error) {
	var res BlockhashResult
	if err := c.call(ctx, MethodGetLatestBlockhash, LatestBlockhashParams(c.resolve(commitment)), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetTokenAccountsByOwner returns raw token accounts owned by owner.
func (c *Client) GetTokenAccountsByOwner(ctx context.Context, owner Address, filter TokenAccountsFilter, commitment Commitment) (*KeyedAccountsResult, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	params := []any{owner.String(), filter, config(c.resolve(commitment), "encoding", "base64")}
	var res KeyedAccountsResult
	if err := c.call(ctx, MethodGetTokenAccountsByOwner, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetParsedTokenAccountsByOwner returns node-parsed token accounts.
func (c *Client) GetParsedTokenAccountsByOwner(ctx context.Context, owner Address, filter TokenAccountsFilter, commitment Commitment) (*ParsedKeyedAccountsResult, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	params := []any{owner.String(), filter, config(c.resolve(commitment), "encoding", "jsonParsed")}
	var res ParsedKeyedAccountsResult
	if err := c.call(ctx, MethodGetTokenAccountsByOwner, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SendRawTransaction submits a signed wire transaction and returns its signature.
func (c *Client) SendRawTransaction(ctx context.Context, tx []byte, opts *SendOptions) (string, error) {
	cfg := map[string]any{"encoding": "base64"}
	if opts != nil {
		cfg["skipPreflight"] = opts.SkipPreflight
		if opts.PreflightCommitment != "" {
			cfg["preflightCommitment"] = opts.PreflightCommitment
		}
		if opts.MaxRetries != nil {
			cfg["maxRetries"] = *opts.MaxRetries
		}
		if opts.MinContextSlot != nil {
			cfg["minContextSlot"] = *opts.MinContextSlot
		}
	}
	if _, ok := cfg["preflightCommitment"]; !ok {
		cfg["preflightCommitment"] = c.commitment
	}
	var sig string
	if err := c.call(ctx, MethodSendTransaction, []any{base64.StdEncoding.EncodeToString(tx), cfg}, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

// SimulateTransaction runs a wire transaction without committing it.
func (c *Client) SimulateTransaction(ctx context.Context, tx []byte, opts *SimulateOptions) (*SimulateResult, error) {
	cfg := map[string]any{"encoding": "base64"}
	commitment := c.commitment
	if opts != nil {
		if opts.Commitment != "" {
			commitment = opts.Commitment
		}
		cfg["sigVerify"] = opts.SigVerify
		cfg["replaceRecentBlockhash"] = opts.ReplaceRecentBlockhash
		if len(opts.Accounts) > 0 {
			keys := make([]string, len(opts.Accounts))
			for i, a := range opts.Accounts {
				keys[i] = a.String()
			}
			cfg["accounts"] = map[string]any{"encoding": "base64", "addresses": keys}
		}
	}
	cfg["commitment"] = commitment
	var res SimulateResult
	if err := c.call(ctx, MethodSimulateTransaction, []any{base64.StdEncoding.EncodeToString(tx), cfg}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetSignaturesForAddress returns signatures touching addr, newest first.
func (c *Client) GetSignaturesForAddress(ctx context.Context, addr Address, opts *SignaturesOpts) ([]SignatureInfo, error) {
	cfg := config(c.commitment)
	if opts != nil {
		if opts.Commitment != "" {
			cfg["commitment"] = opts.Commitment
		}
		if opts.Before != "" {
			cfg["before"] = opts.Before
		}
		if opts.Until != "" {
			cfg["until"] = opts.Until
		}
		if opts.Limit > 0 {
			cfg["limit"] = opts.Limit
		}
	}
	var res []SignatureInfo
	if err := c.call(ctx, MethodGetSignaturesForAddress, []any{addr.String(), cfg}, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// GetParsedTransaction returns the jsonParsed transaction, or nil if the
// node has not seen it at the requested commitment.
func (c *Client) GetParsedTransaction(ctx context.Context, signature string, commitment Commitment) (json.RawMessage, error) {
	params := []any{signature, config(c.resolve(commitment),
		"encoding", "jsonParsed",
		"maxSupportedTransactionVersion", 0,
	)}
	var res json.RawMessage
	if err := c.call(ctx, MethodGetTransaction, params, &res); err != nil {
		return nil, err
	}
	if len(res) == 0 || string(res) == "null" {
		return nil, nil
	}
	return res, nil
}

// GetParsedTransactions fetches signatures concurrently, preserving order.
func (c *Client) GetParsedTransactions(ctx context.Context, signatures []string, commitment Commitment) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(signatures))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, sig := range signatures {
		g.Go(func() error {
			tx, err := c.GetParsedTransaction(gctx, sig, commitment)
			if err != nil {
				return err
			}
			out[i] = tx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func programAccountsConfig(commitment Commitment, encoding string, opts *ProgramAccountsOpts) map[string]any {
	cfg := config(commitment, "encoding", encoding)
	if opts != nil {
		if opts.Commitment != "" {
			cfg["commitment"] = opts.Commitment
		}
		if len(opts.Filters) > 0 {
			cfg["filters"] = opts.Filters
		}
		if opts.DataSlice != nil {
			cfg["dataSlice"] = opts.DataSlice
		}
	}
	return cfg
}

// GetProgramAccounts returns all accounts owned by program.
func (c *Client) GetProgramAccounts(ctx context.Context, program Address, opts *ProgramAccountsOpts) ([]KeyedAccount, error) {
	params := []any{program.String(), programAccountsConfig(c.commitment, "base64", opts)}
	var res []KeyedAccount
	if err := c.call(ctx, MethodGetProgramAccounts, params, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// GetParsedProgramAccounts returns node-parsed accounts owned by program.
func (c *Client) GetParsedProgramAccounts(ctx context.Context, program Address, opts *ProgramAccountsOpts) ([]ParsedKeyedAccount, error) {
	params := []any{program.String(), programAccountsConfig(c.commitment, "jsonParsed", opts)}
	var res []ParsedKeyedAccount
	if err := c.call(ctx, MethodGetProgramAccounts, params, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// GetFeeForMessage returns the fee for a serialized message.
func (c *Client) GetFeeForMessage(ctx context.Context, message []byte, commitment Commitment) (*FeeResult, error) {
	params := []any{base64.StdEncoding.EncodeToString(message), config(c.resolve(commitment))}
	var res FeeResult
	if err := c.call(ctx, MethodGetFeeForMessage, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetMinimumBalanceForRentExemption returns lamports needed for dataLen bytes.
func (c *Client) GetMinimumBalanceForRentExemption(ctx context.Context, dataLen uint64, commitment Commitment) (uint64, error) {
	var res uint64
	if err := c.call(ctx, MethodGetMinimumBalanceForRentExemption, []any{dataLen, config(c.resolve(commitment))}, &res); err != nil {
		return 0, err
	}
	return res, nil
}

// GetTokenAccountBalance returns the balance of a token account.
func (c *Client) GetTokenAccountBalance(ctx context.Context, addr Address, commitment Commitment) (*TokenAmountResult, error) {
	var res TokenAmountResult
	if err := c.call(ctx, MethodGetTokenAccountBalance, []any{addr.String(), config(c.resolve(commitment))}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetBalance returns the lamport balance of addr.
func (c *Client) GetBalance(ctx context.Context, addr Address, commitment Commitment) (uint64, error) {
	var res struct {
		Context Context `json:"context"`
		Value   uint64  `json:"value"`
	}
	if err := c.call(ctx, MethodGetBalance, []any{addr.String(), config(c.resolve(commitment))}, &res); err != nil {
		return 0, err
	}
	return res.Value, nil
}

// GetSlot returns the current slot.
func (c *Client) GetSlot(ctx context.Context, commitment Commitment) (uint64, error) {
	var res uint64
	if err := c.call(ctx, MethodGetSlot, []any{config(c.resolve(commitment))}, &res); err != nil {
		return 0, err
	}
	return res, nil
}

// GetBlockTime returns the estimated production time of a block, nil if unknown.
func (c *Client) GetBlockTime(ctx context.Context, slot uint64) (*int64, error) {
	var res *int64
	if err := c.call(ctx, MethodGetBlockTime, []any{slot}, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// GetTokenLargestAccounts returns the largest holders of mint.
func (c *Client) GetTokenLargestAccounts(ctx context.Context, mint Address, commitment Commitment) (*TokenLargestAccountsResult, error) {
	var res TokenLargestAccountsResult
	if err := c.call(ctx, MethodGetTokenLargestAccounts, []any{mint.String(), config(c.resolve(commitment))}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetParsedAccountInfo returns the node-parsed account at addr.
func (c *Client) GetParsedAccountInfo(ctx context.Context, addr Address, commitment Commitment) (*ParsedAccountResult, error) {
	params := []any{addr.String(), config(c.resolve(commitment), "encoding", "jsonParsed")}
	var res ParsedAccountResult
	if err := c.call(ctx, MethodGetAccountInfo, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetAddressLookupTable fetches and decodes a lookup table account.
func (c *Client) GetAddressLookupTable(ctx context.Context, addr Address, commitment Commitment) (*AddressLookupTableResult, error) {
	info, err := c.GetAccountInfoAndContext(ctx, addr, commitment)
	if err != nil {
		return nil, err
	}
	return LookupTableFromAccount(addr, info)
}

// LookupTableFromAccount decodes a lookup table from a fetched account.
func LookupTableFromAccount(addr Address, info *AccountInfoResult) (*AddressLookupTableResult, error) {
	res := &AddressLookupTableResult{Context: info.Context}
	if info.Value == nil {
		return res, nil
	}
	if info.Value.Owner != AddressLookupTableID {
		return nil, fmt.Errorf("account %s is not owned by the lookup table program", addr)
	}
	table, err := DecodeAddressLookupTable(addr, info.Value.Data)
	if err != nil {
		return nil, err
	}
	res.Value = table
	return res, nil
}
