package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"solana-conn-proxy/internal/observability"
	"solana-conn-proxy/internal/solana"
	"solana-conn-proxy/internal/storage"
)

// CallRecorder receives one record per dispatched call.
type CallRecorder interface {
	RecordCall(r storage.CallRecord)
}

// DefaultUncached lists methods that change ledger state and must reach
// the node on every call.
var DefaultUncached = []string{
	solana.MethodSendTransaction,
	solana.MethodRequestAirdrop,
}

// TransportOptions configures Transport.
type TransportOptions struct {
	TTL      time.Duration
	Uncached []string
	Recorder CallRecorder
	Metrics  *observability.Metrics
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Transport decorates a solana.Transport so every dispatch is answered from
// the cache when fresh and stored after a successful miss.
type Transport struct {
	next     solana.Transport
	cache    *Cache
	url      string
	ttl      time.Duration
	uncached map[string]bool
	recorder CallRecorder
	metrics  *observability.Metrics
	clock    clock.Clock
	logger   *zap.Logger
}

// NewTransport wraps next. url is the endpoint next talks to; it is part of
// every cache key.
func NewTransport(next solana.Transport, c *Cache, url string, opts TransportOptions) *Transport {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Uncached == nil {
		opts.Uncached = DefaultUncached
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	uncached := make(map[string]bool, len(opts.Uncached))
	for _, m := range opts.Uncached {
		uncached[m] = true
	}
	return &Transport{
		next:     next,
		cache:    c,
		url:      url,
		ttl:      opts.TTL,
		uncached: uncached,
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
		clock:    opts.Clock,
		logger:   opts.Logger.Named("cache_transport"),
	}
}

// URL returns the endpoint this transport keys on.
func (t *Transport) URL() string {
	return t.url
}

// Dispatch implements solana.Transport.
func (t *Transport) Dispatch(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	start := t.clock.Now()

	if t.uncached[method] {
		raw, err := t.forward(ctx, method, params)
		t.record(method, start, false, err)
		return raw, err
	}

	key, err := Key(t.url, method, params)
	if err != nil {
		return nil, err
	}
	raw, hit, err := Fetch(ctx, t.cache, key, t.ttl, func(ctx context.Context) (json.RawMessage, error) {
		return t.forward(ctx, method, params)
	})
	t.metrics.RecordCache(method, hit)
	t.record(method, start, hit, err)
	return raw, err
}

func (t *Transport) forward(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	start := t.clock.Now()
	raw, err := t.next.Dispatch(ctx, method, params)
	t.metrics.RecordRPC(method, t.clock.Since(start), err)
	if err != nil {
		t.logger.Debug("rpc dispatch failed", zap.String("method", method), zap.Error(err))
	}
	return raw, err
}

func (t *Transport) record(method string, start time.Time, hit bool, err error) {
	if t.recorder == nil {
		return
	}
	r := storage.CallRecord{
		Timestamp:     start,
		ConnectionURL: t.url,
		Method:        method,
		CacheHit:      hit,
		DurationMs:    t.clock.Since(start).Milliseconds(),
	}
	if err != nil {
		r.Error = err.Error()
	}
	t.recorder.RecordCall(r)
}

// Compile-time interface check.
var _ solana.Transport = (*Transport)(nil)
