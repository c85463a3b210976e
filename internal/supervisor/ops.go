package supervisor

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"solana-conn-proxy/internal/cache"
	"solana-conn-proxy/internal/solana"
	"solana-conn-proxy/internal/tokens"
	"solana-conn-proxy/internal/wire"
)

// Operations below run against the canonical connection. Reads go through
// the caching transport unless noted; every one fails with
// solana.ErrNoConnection before the first connection is built.

// CustomSplTokenAccounts returns the token-account aggregate of wallet. The
// aggregate is cached under its own key, which the poller also refreshes.
// A fetch for the polled wallet seeds the poller's fingerprint if the
// poller has not produced one yet.
func (s *Supervisor) CustomSplTokenAccounts(ctx context.Context, wallet solana.Address) (*tokens.Aggregate, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	key, err := aggregateKey(conn.ctx.URL, wallet)
	if err != nil {
		return nil, err
	}
	agg, hit, err := cache.Fetch(ctx, s.cache, key, s.ttl, func(ctx context.Context) (*tokens.Aggregate, error) {
		return tokens.Fetch(ctx, conn.raw, wallet)
	})
	s.metrics.RecordCache(wire.MethodCustomSplTokenAccounts, hit)
	if err != nil {
		return nil, err
	}
	if !hit {
		s.seedFingerprint(conn.ctx.URL, wallet, agg)
	}
	return agg, nil
}

func (s *Supervisor) seedFingerprint(url string, wallet solana.Address, agg *tokens.Aggregate) {
	s.mu.Lock()
	ps := s.poll
	s.mu.Unlock()
	if ps == nil || ps.url != url || ps.wallet != wallet {
		return
	}
	fp, err := tokens.Fingerprint(agg)
	if err != nil {
		s.logger.Warn("fingerprint aggregate", zap.Error(err))
		return
	}
	ps.seed(fp)
}

// CustomSplMetadataURI fetches the off-chain metadata documents of tokens.
// metadata is parallel to tokens. Results are cached under the sorted token
// keys for the metadata TTL.
func (s *Supervisor) CustomSplMetadataURI(ctx context.Context, toks []*tokens.TokenAccount, metadata []*tokens.Metadata) ([]tokens.MetadataURIResult, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	key, err := cache.Key(conn.ctx.URL, wire.MethodCustomSplMetadataURI, []any{tokens.MetadataURIKeys(toks)})
	if err != nil {
		return nil, err
	}
	res, hit, err := cache.Fetch(ctx, s.cache, key, s.metadataTTL, func(ctx context.Context) ([]tokens.MetadataURIResult, error) {
		return tokens.FetchMetadataURIs(ctx, s.httpClient, toks, metadata)
	})
	s.metrics.RecordCache(wire.MethodCustomSplMetadataURI, hit)
	return res, err
}

func (s *Supervisor) GetAccountInfo(ctx context.Context, addr solana.Address, commitment solana.Commitment) (*solana.AccountInfo, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.client.GetAccountInfo(ctx, addr, commitment)
}

func (s *Supervisor) GetAccountInfoAndContext(ctx context.Context, addr solana.Address, commitment solana.Commitment) (*solana.AccountInfoResult, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.client.GetAccountInfoAndContext(ctx, addr, commitment)
}

func (s *Supervisor) GetLatestBlockhash(ctx context.Context, commitment solana.Commitment) (*solana.Blockhash, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.client.GetLatestBlockhash(ctx, commitment)
}

func (s *Supervisor) GetLatestBlockhashAndContext(ctx context.Context, commitment solana.Commitment) (*solana.BlockhashResult, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.client.GetLatestBlockhashAndContext(ctx, commitment)
}

func (s *Supervisor) GetTokenAccountsByOwner(ctx context.Context, owner solana.Address, filter solana.TokenAccountsFilter, commitment solana.Commitment) (*solana.KeyedAccountsResult, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.client.GetTokenAccountsByOwner(ctx, owner, filter, commitment)
}

// SendRawTransaction is never cached.
func (s *Supervisor) SendRawTransaction(ctx context.Context, tx []byte, opts *solana.SendOptions) (string, error) {
	conn, err := s.current()
	if err != nil {
		return "", err
	}
	return conn.client.SendRawTransaction(ctx, tx, opts)
}

func (s *Supervisor) SimulateTransaction(ctx context.Context, tx []byte, opts *solana.SimulateOptions) (*solana.SimulateResult, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.client.SimulateTransaction(ctx, tx, opts)
}

func (s *Supervisor) GetMultipleAccountsInfo(ctx context.Context, addrs []solana.Address, commitment solana.Commitment) ([]*solana.AccountInfo, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.client.GetMultipleAccountsInfo(ctx, addrs, commitment)
}

// GetConfirmedSignaturesForAddress2 is served by getSignaturesForAddress.
func (s *Supervisor) GetConfirmedSignaturesForAddress2(ctx context.Context, addr solana.Address, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.client.GetSignaturesForAddress(ctx, addr, opts)
}

func (s *Supervisor) GetParsedTransactions(ctx context.Context, signatures []string, commitment solana.Commitment) ([]json.RawMessage, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.client.GetParsedTransactions(ctx, signatures, commitment)
}

// GetParsedTransaction bypasses the cache so a transaction that was not yet
// visible is looked up again on the next call.
func (s *Supervisor) GetParsedTransaction(ctx context.Context, signature string, commitment solana.Commitment) (json.RawMessage, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.raw.GetParsedTransaction(ctx, signature, commitment)
}

func (s *Supervisor) GetProgramAccounts(ctx context.Context, program solana.Address, opts *solana.ProgramAccountsOpts) ([]solana.KeyedAccount, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.client.GetProgramAccounts(ctx, program, opts)
}

func (s *Supervisor) GetFeeForMessage(ctx context.Context, message []byte, commitment solana.Commitment) (*solana.FeeResult, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.client.GetFeeForMessage(ctx, message, commitment)
}

func (s *Supervisor) GetMinimumBalanceForRentExemption(ctx context.Context, dataLen uint64, commitment solana.Commitment) (uint64, error) {
	conn, err := s.current()
	if err != nil {
		return 0, err
	}
	return conn.client.GetMinimumBalanceForRentExemption(ctx, dataLen, commitment)
}

func (s *Supervisor) GetTokenAccountBalance(ctx context.Context, addr solana.Address, commitment solana.Commitment) (*solana.TokenAmountResult, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.client.GetTokenAccountBalance(ctx, addr, commitment)
}

func (s *Supervisor) GetBalance(ctx context.Context, addr solana.Address, commitment solana.Commitment) (uint64, error) {
	conn, err := s.current()
	if err != nil {
		return 0, err
	}
	return conn.client.GetBalance(ctx, addr, commitment)
}

func (s *Supervisor) GetSlot(ctx context.Context, commitment solana.Commitment) (uint64, error) {
	conn, err := s.current()
	if err != nil {
		return 0, err
	}
	return conn.client.GetSlot(ctx, commitment)
}

func (s *Supervisor) GetBlockTime(ctx context.Context, slot uint64) (*int64, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.client.GetBlockTime(ctx, slot)
}

func (s *Supervisor) GetParsedTokenAccountsByOwner(ctx context.Context, owner solana.Address, filter solana.TokenAccountsFilter, commitment solana.Commitment) (*solana.ParsedKeyedAccountsResult, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.client.GetParsedTokenAccountsByOwner(ctx, owner, filter, commitment)
}

func (s *Supervisor) GetTokenLargestAccounts(ctx context.Context, mint solana.Address, commitment solana.Commitment) (*solana.TokenLargestAccountsResult, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.client.GetTokenLargestAccounts(ctx, mint, commitment)
}

func (s *Supervisor) GetParsedAccountInfo(ctx context.Context, addr solana.Address, commitment solana.Commitment) (*solana.ParsedAccountResult, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.client.GetParsedAccountInfo(ctx, addr, commitment)
}

func (s *Supervisor) GetParsedProgramAccounts(ctx context.Context, program solana.Address, opts *solana.ProgramAccountsOpts) ([]solana.ParsedKeyedAccount, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.client.GetParsedProgramAccounts(ctx, program, opts)
}

// GetAddressLookupTable decodes the lookup table account at addr. The
// account read is cached like any getAccountInfo.
func (s *Supervisor) GetAddressLookupTable(ctx context.Context, addr solana.Address, commitment solana.Commitment) (*solana.AddressLookupTableResult, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.client.GetAddressLookupTable(ctx, addr, commitment)
}
