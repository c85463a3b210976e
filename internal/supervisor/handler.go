package supervisor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"solana-conn-proxy/internal/solana"
	"solana-conn-proxy/internal/tokens"
	"solana-conn-proxy/internal/wire"
)

const codeOK = "ok"

// methodHandler decodes a request, runs the operation and returns the
// wire form of its result.
type methodHandler func(s *Supervisor, ctx context.Context, req *wire.Request) (any, error)

var handlers = map[string]methodHandler{
	wire.MethodCustomSplTokenAccounts:         handleCustomSplTokenAccounts,
	wire.MethodCustomSplMetadataURI:           handleCustomSplMetadataURI,
	wire.MethodGetAccountInfo:                 handleGetAccountInfo,
	wire.MethodGetAccountInfoAndContext:       handleGetAccountInfoAndContext,
	wire.MethodGetLatestBlockhash:             handleGetLatestBlockhash,
	wire.MethodGetLatestBlockhashAndContext:   handleGetLatestBlockhashAndContext,
	wire.MethodGetTokenAccountsByOwner:        handleGetTokenAccountsByOwner,
	wire.MethodSendRawTransaction:             handleSendRawTransaction,
	wire.MethodConfirmTransaction:             handleConfirmTransaction,
	wire.MethodSimulateTransaction:            handleSimulateTransaction,
	wire.MethodGetMultipleAccountsInfo:        handleGetMultipleAccountsInfo,
	wire.MethodGetConfirmedSignaturesForAddr2: handleGetConfirmedSignaturesForAddress2,
	wire.MethodGetParsedTransactions:          handleGetParsedTransactions,
	wire.MethodGetParsedTransaction:           handleGetParsedTransaction,
	wire.MethodGetProgramAccounts:             handleGetProgramAccounts,
	wire.MethodGetFeeForMessage:               handleGetFeeForMessage,
	wire.MethodGetMinimumBalanceForRentExempt: handleGetMinimumBalanceForRentExemption,
	wire.MethodGetTokenAccountBalance:         handleGetTokenAccountBalance,
	wire.MethodGetBalance:                     handleGetBalance,
	wire.MethodGetSlot:                        handleGetSlot,
	wire.MethodGetBlockTime:                   handleGetBlockTime,
	wire.MethodGetParsedTokenAccountsByOwner:  handleGetParsedTokenAccountsByOwner,
	wire.MethodGetTokenLargestAccounts:        handleGetTokenLargestAccounts,
	wire.MethodGetParsedAccountInfo:           handleGetParsedAccountInfo,
	wire.MethodGetParsedProgramAccounts:       handleGetParsedProgramAccounts,
	wire.MethodGetAddressLookupTable:          handleGetAddressLookupTable,
}

// Handle serves one channel request. It never returns nil.
func (s *Supervisor) Handle(ctx context.Context, req *wire.Request) *wire.Response {
	start := s.clock.Now()
	resp := s.handle(ctx, req)

	code, label := codeOK, req.Method
	if resp.Error != nil {
		code = resp.Error.Code
		s.logger.Debug("channel request failed",
			zap.String("method", req.Method),
			zap.String("code", code),
			zap.String("error", resp.Error.Message),
		)
	}
	if _, ok := handlers[req.Method]; !ok {
		label = "other"
	}
	s.metrics.RecordChannelRequest(label, code, s.clock.Since(start))
	return resp
}

func (s *Supervisor) handle(ctx context.Context, req *wire.Request) *wire.Response {
	h, ok := handlers[req.Method]
	switch {
	case ok:
	case wire.IsUnsupported(req.Method):
		return wire.Fail(req.ID, &solana.UnsupportedError{Method: req.Method})
	default:
		return wire.Fail(req.ID, fmt.Errorf("%w: %q", wire.ErrUnknownMethod, req.Method))
	}

	v, err := h(s, ctx, req)
	if err != nil {
		return wire.Fail(req.ID, err)
	}
	return wire.Reply(req.ID, v)
}

// blobParam decodes the codec-encoded byte blob at position i.
func (s *Supervisor) blobParam(req *wire.Request, i int) ([]byte, error) {
	if err := req.RequireParams(i + 1); err != nil {
		return nil, err
	}
	b, err := s.codec.DecodeBlob(req.Params[i])
	if err != nil {
		return nil, fmt.Errorf("%w: %s param %d: %v", wire.ErrInvalidParams, req.Method, i, err)
	}
	return b, nil
}

// addressParams decodes [address, commitment?].
func addressParams(req *wire.Request) (solana.Address, solana.Commitment, error) {
	var (
		addr       solana.Address
		commitment solana.Commitment
	)
	if err := req.RequireParams(1); err != nil {
		return addr, "", err
	}
	if err := req.DecodeParams(&addr, &commitment); err != nil {
		return addr, "", err
	}
	return addr, commitment, validCommitment(req, commitment)
}

// commitmentParams decodes [commitment?].
func commitmentParams(req *wire.Request) (solana.Commitment, error) {
	var commitment solana.Commitment
	if err := req.DecodeParams(&commitment); err != nil {
		return "", err
	}
	return commitment, validCommitment(req, commitment)
}

func validCommitment(req *wire.Request, c solana.Commitment) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %s: unknown commitment %q", wire.ErrInvalidParams, req.Method, c)
	}
	return nil
}

func handleCustomSplTokenAccounts(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	var wallet solana.Address
	if err := req.RequireParams(1); err != nil {
		return nil, err
	}
	if err := req.DecodeParams(&wallet); err != nil {
		return nil, err
	}
	return s.CustomSplTokenAccounts(ctx, wallet)
}

func handleCustomSplMetadataURI(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	var (
		toks     []*tokens.TokenAccount
		metadata []*tokens.Metadata
	)
	if err := req.RequireParams(2); err != nil {
		return nil, err
	}
	if err := req.DecodeParams(&toks, &metadata); err != nil {
		return nil, err
	}
	if len(toks) != len(metadata) {
		return nil, fmt.Errorf("%w: %d tokens but %d metadata entries", wire.ErrInvalidParams, len(toks), len(metadata))
	}
	return s.CustomSplMetadataURI(ctx, toks, metadata)
}

func handleGetAccountInfo(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	addr, commitment, err := addressParams(req)
	if err != nil {
		return nil, err
	}
	info, err := s.GetAccountInfo(ctx, addr, commitment)
	if err != nil {
		return nil, err
	}
	return wire.EncodeAccountInfo(s.codec, info)
}

func handleGetAccountInfoAndContext(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	addr, commitment, err := addressParams(req)
	if err != nil {
		return nil, err
	}
	res, err := s.GetAccountInfoAndContext(ctx, addr, commitment)
	if err != nil {
		return nil, err
	}
	return wire.EncodeAccountInfoResult(s.codec, res)
}

func handleGetLatestBlockhash(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	commitment, err := commitmentParams(req)
	if err != nil {
		return nil, err
	}
	return s.GetLatestBlockhash(ctx, commitment)
}

func handleGetLatestBlockhashAndContext(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	commitment, err := commitmentParams(req)
	if err != nil {
		return nil, err
	}
	return s.GetLatestBlockhashAndContext(ctx, commitment)
}

// ownerParams decodes [owner, filter, commitment?].
func ownerParams(req *wire.Request) (solana.Address, solana.TokenAccountsFilter, solana.Commitment, error) {
	var (
		owner      solana.Address
		filter     solana.TokenAccountsFilter
		commitment solana.Commitment
	)
	if err := req.RequireParams(2); err != nil {
		return owner, filter, "", err
	}
	if err := req.DecodeParams(&owner, &filter, &commitment); err != nil {
		return owner, filter, "", err
	}
	if err := filter.Validate(); err != nil {
		return owner, filter, "", fmt.Errorf("%w: %v", wire.ErrInvalidParams, err)
	}
	return owner, filter, commitment, validCommitment(req, commitment)
}

func handleGetTokenAccountsByOwner(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	owner, filter, commitment, err := ownerParams(req)
	if err != nil {
		return nil, err
	}
	res, err := s.GetTokenAccountsByOwner(ctx, owner, filter, commitment)
	if err != nil {
		return nil, err
	}
	return wire.EncodeKeyedAccountsResult(s.codec, res)
}

func handleGetParsedTokenAccountsByOwner(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	owner, filter, commitment, err := ownerParams(req)
	if err != nil {
		return nil, err
	}
	return s.GetParsedTokenAccountsByOwner(ctx, owner, filter, commitment)
}

func handleSendRawTransaction(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	tx, err := s.blobParam(req, 0)
	if err != nil {
		return nil, err
	}
	var opts *solana.SendOptions
	if err := req.DecodeParams(nil, &opts); err != nil {
		return nil, err
	}
	return s.SendRawTransaction(ctx, tx, opts)
}

func handleConfirmTransaction(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	var (
		signature  string
		commitment solana.Commitment
	)
	if err := req.RequireParams(1); err != nil {
		return nil, err
	}
	if err := req.DecodeParams(&signature, &commitment); err != nil {
		return nil, err
	}
	if err := validCommitment(req, commitment); err != nil {
		return nil, err
	}
	return s.ConfirmTransaction(ctx, signature, commitment)
}

func handleSimulateTransaction(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	tx, err := s.blobParam(req, 0)
	if err != nil {
		return nil, err
	}
	var opts *solana.SimulateOptions
	if err := req.DecodeParams(nil, &opts); err != nil {
		return nil, err
	}
	return s.SimulateTransaction(ctx, tx, opts)
}

func handleGetMultipleAccountsInfo(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	var (
		addrs      []solana.Address
		commitment solana.Commitment
	)
	if err := req.RequireParams(1); err != nil {
		return nil, err
	}
	if err := req.DecodeParams(&addrs, &commitment); err != nil {
		return nil, err
	}
	if err := validCommitment(req, commitment); err != nil {
		return nil, err
	}
	accounts, err := s.GetMultipleAccountsInfo(ctx, addrs, commitment)
	if err != nil {
		return nil, err
	}
	return wire.EncodeAccountInfos(s.codec, accounts)
}

func handleGetConfirmedSignaturesForAddress2(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	var (
		addr solana.Address
		opts *solana.SignaturesOpts
	)
	if err := req.RequireParams(1); err != nil {
		return nil, err
	}
	if err := req.DecodeParams(&addr, &opts); err != nil {
		return nil, err
	}
	return s.GetConfirmedSignaturesForAddress2(ctx, addr, opts)
}

func handleGetParsedTransactions(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	var (
		signatures []string
		commitment solana.Commitment
	)
	if err := req.RequireParams(1); err != nil {
		return nil, err
	}
	if err := req.DecodeParams(&signatures, &commitment); err != nil {
		return nil, err
	}
	if err := validCommitment(req, commitment); err != nil {
		return nil, err
	}
	return s.GetParsedTransactions(ctx, signatures, commitment)
}

func handleGetParsedTransaction(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	var (
		signature  string
		commitment solana.Commitment
	)
	if err := req.RequireParams(1); err != nil {
		return nil, err
	}
	if err := req.DecodeParams(&signature, &commitment); err != nil {
		return nil, err
	}
	if err := validCommitment(req, commitment); err != nil {
		return nil, err
	}
	return s.GetParsedTransaction(ctx, signature, commitment)
}

// programParams decodes [program, opts?].
func programParams(req *wire.Request) (solana.Address, *solana.ProgramAccountsOpts, error) {
	var (
		program solana.Address
		opts    *solana.ProgramAccountsOpts
	)
	if err := req.RequireParams(1); err != nil {
		return program, nil, err
	}
	if err := req.DecodeParams(&program, &opts); err != nil {
		return program, nil, err
	}
	return program, opts, nil
}

func handleGetProgramAccounts(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	program, opts, err := programParams(req)
	if err != nil {
		return nil, err
	}
	accounts, err := s.GetProgramAccounts(ctx, program, opts)
	if err != nil {
		return nil, err
	}
	return wire.EncodeKeyedAccounts(s.codec, accounts)
}

func handleGetParsedProgramAccounts(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	program, opts, err := programParams(req)
	if err != nil {
		return nil, err
	}
	return s.GetParsedProgramAccounts(ctx, program, opts)
}

func handleGetFeeForMessage(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	message, err := s.blobParam(req, 0)
	if err != nil {
		return nil, err
	}
	var commitment solana.Commitment
	if err := req.DecodeParams(nil, &commitment); err != nil {
		return nil, err
	}
	if err := validCommitment(req, commitment); err != nil {
		return nil, err
	}
	return s.GetFeeForMessage(ctx, message, commitment)
}

func handleGetMinimumBalanceForRentExemption(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	var (
		dataLen    uint64
		commitment solana.Commitment
	)
	if err := req.RequireParams(1); err != nil {
		return nil, err
	}
	if err := req.DecodeParams(&dataLen, &commitment); err != nil {
		return nil, err
	}
	if err := validCommitment(req, commitment); err != nil {
		return nil, err
	}
	return s.GetMinimumBalanceForRentExemption(ctx, dataLen, commitment)
}

func handleGetTokenAccountBalance(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	addr, commitment, err := addressParams(req)
	if err != nil {
		return nil, err
	}
	return s.GetTokenAccountBalance(ctx, addr, commitment)
}

func handleGetBalance(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	addr, commitment, err := addressParams(req)
	if err != nil {
		return nil, err
	}
	return s.GetBalance(ctx, addr, commitment)
}

func handleGetSlot(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	commitment, err := commitmentParams(req)
	if err != nil {
		return nil, err
	}
	return s.GetSlot(ctx, commitment)
}

func handleGetBlockTime(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	var slot uint64
	if err := req.RequireParams(1); err != nil {
		return nil, err
	}
	if err := req.DecodeParams(&slot); err != nil {
		return nil, err
	}
	return s.GetBlockTime(ctx, slot)
}

func handleGetTokenLargestAccounts(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	mint, commitment, err := addressParams(req)
	if err != nil {
		return nil, err
	}
	return s.GetTokenLargestAccounts(ctx, mint, commitment)
}

func handleGetParsedAccountInfo(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	addr, commitment, err := addressParams(req)
	if err != nil {
		return nil, err
	}
	return s.GetParsedAccountInfo(ctx, addr, commitment)
}

func handleGetAddressLookupTable(s *Supervisor, ctx context.Context, req *wire.Request) (any, error) {
	addr, commitment, err := addressParams(req)
	if err != nil {
		return nil, err
	}
	return s.GetAddressLookupTable(ctx, addr, commitment)
}
