// Package supervisor owns the canonical ledger connection of the background
// process. It reacts to keyring lifecycle events, caches every read behind
// a TTL, polls the active wallet for token-account and blockhash changes
// and serves the operations remote proxies forward over the channel.
package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"solana-conn-proxy/internal/cache"
	"solana-conn-proxy/internal/events"
	"solana-conn-proxy/internal/observability"
	"solana-conn-proxy/internal/solana"
	"solana-conn-proxy/internal/storage"
	"solana-conn-proxy/internal/wire"
)

// Default polling intervals.
const (
	DefaultTokenPollInterval     = 10 * time.Second
	DefaultBlockhashPollInterval = 10 * time.Second
)

// State is the lifecycle state of the supervisor.
type State int

const (
	StateUninitialized State = iota
	StateUnlocked
	StateLocked
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateUnlocked:
		return "unlocked"
	case StateLocked:
		return "locked"
	case StateDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ConnectionContext identifies the canonical connection. It is replaced
// wholesale on every reconfiguration.
type ConnectionContext struct {
	URL          string
	Commitment   solana.Commitment
	ActiveWallet *solana.Address
}

// TransportFactory opens the upstream transport for an endpoint.
type TransportFactory func(url string) solana.Transport

// Options configures a Supervisor.
type Options struct {
	// TransportFactory defaults to an HTTP JSON-RPC transport.
	TransportFactory TransportFactory
	Cache            *cache.Cache
	Bus              events.Bus
	// Fingerprints persists change-detection state. Optional.
	Fingerprints storage.FingerprintStore
	// CallRecorder receives every upstream dispatch. Optional.
	CallRecorder cache.CallRecorder
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Clock        clock.Clock

	TTL                   time.Duration // Default: 15s
	MetadataTTL           time.Duration // Default: 15m
	TokenPollInterval     time.Duration // Default: 10s
	BlockhashPollInterval time.Duration // Default: 10s
	Confirm               ConfirmOptions

	// HTTPClient fetches off-chain metadata documents.
	HTTPClient *http.Client
	// Codec encodes byte blobs on the channel. Default: base58.
	Codec wire.BlobCodec
}

// connection is the canonical connection: the same endpoint reached through
// the caching transport and directly.
type connection struct {
	ctx    ConnectionContext
	client *solana.Client
	raw    *solana.Client
}

// Supervisor is the connection owner. Lifecycle transitions are serialized;
// operations run concurrently against a snapshot of the current connection.
type Supervisor struct {
	factory      TransportFactory
	cache        *cache.Cache
	bus          events.Bus
	fingerprints storage.FingerprintStore
	recorder     cache.CallRecorder
	metrics      *observability.Metrics
	logger       *zap.Logger
	clock        clock.Clock
	ttl          time.Duration
	metadataTTL  time.Duration
	tokenEvery   time.Duration
	blockEvery   time.Duration
	confirm      ConfirmOptions
	httpClient   *http.Client
	codec        wire.BlobCodec

	mu     sync.Mutex
	state  State
	conn   *connection
	poll   *pollSession
	poller *poller

	unsubscribe func()
}

// New creates a supervisor in the Uninitialized state.
func New(opts Options) *Supervisor {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Cache == nil {
		opts.Cache = cache.New(cache.Options{Clock: opts.Clock, Logger: opts.Logger})
	}
	if opts.TransportFactory == nil {
		opts.TransportFactory = func(url string) solana.Transport {
			return solana.NewHTTPTransport(url)
		}
	}
	if opts.TTL <= 0 {
		opts.TTL = cache.DefaultTTL
	}
	if opts.MetadataTTL <= 0 {
		opts.MetadataTTL = cache.DefaultMetadataTTL
	}
	if opts.TokenPollInterval <= 0 {
		opts.TokenPollInterval = DefaultTokenPollInterval
	}
	if opts.BlockhashPollInterval <= 0 {
		opts.BlockhashPollInterval = DefaultBlockhashPollInterval
	}
	if opts.Codec == nil {
		opts.Codec = wire.Base58Codec{}
	}
	logger := opts.Logger.Named("supervisor")

	return &Supervisor{
		factory:      opts.TransportFactory,
		cache:        opts.Cache,
		bus:          opts.Bus,
		fingerprints: opts.Fingerprints,
		recorder:     opts.CallRecorder,
		metrics:      opts.Metrics,
		logger:       logger,
		clock:        opts.Clock,
		ttl:          opts.TTL,
		metadataTTL:  opts.MetadataTTL,
		tokenEvery:   opts.TokenPollInterval,
		blockEvery:   opts.BlockhashPollInterval,
		confirm:      opts.Confirm.withDefaults(),
		httpClient:   opts.HTTPClient,
		codec:        opts.Codec,
		poller:       newPoller(opts.Clock, logger, opts.Metrics),
	}
}

// Start subscribes to lifecycle events on the bus.
func (s *Supervisor) Start() error {
	if s.bus == nil {
		return nil
	}
	unsubscribe, err := s.bus.Subscribe(events.TopicLifecycle, func(e events.Event) {
		if err := s.HandleEvent(context.Background(), e); err != nil {
			s.logger.Warn("lifecycle event rejected", zap.String("event", e.Name), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe lifecycle: %w", err)
	}
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	return nil
}

// Stop unsubscribes from the bus and cancels all polling.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.stopPollingLocked()
	if s.poller.active() != 0 {
		err = multierr.Append(err, fmt.Errorf("%d poll tasks still active", s.poller.active()))
	}
	return err
}

// State returns the lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connection returns the current connection context. ok is false before
// the first connection is built.
func (s *Supervisor) Connection() (ConnectionContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ConnectionContext{}, false
	}
	return s.conn.ctx, true
}

// ActivePollTasks returns the number of running poll timers.
func (s *Supervisor) ActivePollTasks() int {
	return s.poller.active()
}

// Codec returns the blob codec used on the channel.
func (s *Supervisor) Codec() wire.BlobCodec {
	return s.codec
}

// current returns the connection snapshot operations run against.
func (s *Supervisor) current() (*connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, solana.ErrNoConnection
	}
	return s.conn, nil
}

// connectLocked replaces the canonical connection.
func (s *Supervisor) connectLocked(url string, commitment solana.Commitment, wallet *solana.Address) {
	if commitment == "" {
		commitment = solana.CommitmentConfirmed
	}
	upstream := s.factory(url)
	hooked := cache.NewTransport(upstream, s.cache, url, cache.TransportOptions{
		TTL:      s.ttl,
		Recorder: s.recorder,
		Metrics:  s.metrics,
		Clock:    s.clock,
		Logger:   s.logger,
	})
	s.conn = &connection{
		ctx:    ConnectionContext{URL: url, Commitment: commitment, ActiveWallet: wallet},
		client: solana.NewClient(hooked, commitment),
		raw:    solana.NewClient(upstream, commitment),
	}
	s.logger.Info("connection configured",
		zap.String("url", url),
		zap.String("commitment", string(commitment)),
		zap.Bool("wallet", wallet != nil),
	)
}

// withWalletLocked replaces the connection context with a new active wallet,
// keeping the clients.
func (s *Supervisor) withWalletLocked(wallet *solana.Address) {
	if s.conn == nil {
		return
	}
	next := *s.conn
	next.ctx.ActiveWallet = wallet
	s.conn = &next
}
