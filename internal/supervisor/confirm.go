package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-conn-proxy/internal/solana"
	"solana-conn-proxy/internal/wire"
)

// ConfirmOptions bounds ConfirmTransaction.
type ConfirmOptions struct {
	InitialDelay time.Duration // Default: 5s
	PollInterval time.Duration // Default: 1s
	Timeout      time.Duration // Default: 30s
}

// DefaultConfirmOptions returns the default confirmation bounds.
func DefaultConfirmOptions() ConfirmOptions {
	return ConfirmOptions{
		InitialDelay: 5 * time.Second,
		PollInterval: time.Second,
		Timeout:      30 * time.Second,
	}
}

func (o ConfirmOptions) withDefaults() ConfirmOptions {
	def := DefaultConfirmOptions()
	if o.InitialDelay <= 0 {
		o.InitialDelay = def.InitialDelay
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	return o
}

// confirmedTx is the part of a parsed transaction confirmation reports.
type confirmedTx struct {
	Slot uint64 `json:"slot"`
	Meta *struct {
		Err json.RawMessage `json:"err"`
	} `json:"meta"`
}

// ConfirmTransaction waits until signature is visible at commitment. The
// first lookup happens after the initial delay, then on every poll interval.
// The watchdog rejects with solana.ErrConfirmationTimeout once Timeout has
// elapsed since the call, even while a lookup is in flight.
//
// Lookups bypass the cache. Transport failures are retried on the next
// interval; node errors end the wait.
func (s *Supervisor) ConfirmTransaction(ctx context.Context, signature string, commitment solana.Commitment) (*solana.ConfirmResult, error) {
	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	if signature == "" {
		return nil, fmt.Errorf("%w: empty signature", wire.ErrInvalidParams)
	}
	if commitment != solana.CommitmentConfirmed && commitment != solana.CommitmentFinalized {
		commitment = solana.CommitmentConfirmed
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	watchdog := s.clock.AfterFunc(s.confirm.Timeout, func() {
		cancel(fmt.Errorf("%s after %s: %w", signature, s.confirm.Timeout, solana.ErrConfirmationTimeout))
	})
	defer watchdog.Stop()

	wait := s.confirm.InitialDelay
	for attempt := 1; ; attempt++ {
		timer := s.clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, context.Cause(ctx)
		case <-timer.C:
		}
		wait = s.confirm.PollInterval

		var raw json.RawMessage
		select {
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		case r := <-lookupConfirmed(ctx, conn.raw, signature, commitment):
			raw, err = r.raw, r.err
		}
		switch {
		case ctx.Err() != nil:
			return nil, context.Cause(ctx)
		case errors.Is(err, solana.ErrNetwork):
			s.logger.Debug("confirm lookup failed",
				zap.String("signature", signature),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		case err != nil:
			return nil, err
		case raw != nil:
			return decodeConfirmed(raw)
		}
	}
}

type lookupResult struct {
	raw json.RawMessage
	err error
}

// lookupConfirmed runs one lookup in the background so the watchdog is
// honored even by a transport that ignores ctx.
func lookupConfirmed(ctx context.Context, client *solana.Client, signature string, commitment solana.Commitment) <-chan lookupResult {
	out := make(chan lookupResult, 1)
	go func() {
		raw, err := client.GetParsedTransaction(ctx, signature, commitment)
		out <- lookupResult{raw: raw, err: err}
	}()
	return out
}

func decodeConfirmed(raw json.RawMessage) (*solana.ConfirmResult, error) {
	var tx confirmedTx
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode confirmed transaction: %w", err)
	}
	res := &solana.ConfirmResult{Context: solana.Context{Slot: tx.Slot}}
	if tx.Meta != nil && len(tx.Meta.Err) > 0 && string(tx.Meta.Err) != "null" {
		res.Value.Err = tx.Meta.Err
	}
	return res, nil
}
