package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"solana-conn-proxy/internal/cache"
	"solana-conn-proxy/internal/events"
	"solana-conn-proxy/internal/observability"
	"solana-conn-proxy/internal/solana"
	"solana-conn-proxy/internal/storage"
	"solana-conn-proxy/internal/tokens"
	"solana-conn-proxy/internal/wire"
)

// Poll task names.
const (
	TaskTokenAccounts = "token_accounts"
	TaskBlockhash     = "blockhash"
)

// Poll tick results.
const (
	tickChanged   = "changed"
	tickUnchanged = "unchanged"
	tickRefreshed = "refreshed"
	tickError     = "error"
)

// pollTask runs tick on every interval until its context is canceled.
type pollTask struct {
	name     string
	interval time.Duration
	tick     func(ctx context.Context) error
}

// poller owns the interval timers of the active wallet. Tasks are started
// and stopped together.
type poller struct {
	clock   clock.Clock
	logger  *zap.Logger
	metrics *observability.Metrics

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Int32
}

func newPoller(clk clock.Clock, logger *zap.Logger, metrics *observability.Metrics) *poller {
	return &poller{clock: clk, logger: logger.Named("poller"), metrics: metrics}
}

// start launches tasks. Any running tasks are stopped first.
func (p *poller) start(tasks ...pollTask) {
	p.stop()

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	for _, task := range tasks {
		ticker := p.clock.Ticker(task.interval)
		p.running.Add(1)
		p.wg.Add(1)
		go p.run(ctx, task, ticker)
	}
	p.metrics.SetPollTasks(int(p.running.Load()))
}

// stop cancels every task and waits for them to exit.
func (p *poller) stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
	p.wg.Wait()
	p.metrics.SetPollTasks(int(p.running.Load()))
}

func (p *poller) active() int {
	return int(p.running.Load())
}

func (p *poller) run(ctx context.Context, task pollTask, ticker *clock.Ticker) {
	defer p.wg.Done()
	defer p.running.Add(-1)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := task.tick(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				p.metrics.RecordPollTick(task.name, tickError)
				p.logger.Warn("poll tick failed", zap.String("task", task.name), zap.Error(err))
			}
		}
	}
}

// pollSession is the polled state of one (endpoint, wallet) pair.
type pollSession struct {
	url        string
	wallet     solana.Address
	commitment solana.Commitment
	raw        *solana.Client

	mu          sync.Mutex
	fingerprint string
	seeded      bool
}

// seed sets the fingerprint unless one is already known.
func (ps *pollSession) seed(fp string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.fingerprint == "" {
		ps.fingerprint = fp
	}
}

// swap stores fp and reports whether it differs from the previous value.
func (ps *pollSession) swap(fp string) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.fingerprint == fp {
		return false
	}
	ps.fingerprint = fp
	return true
}

func (s *Supervisor) startPollingLocked() {
	if s.conn == nil || s.conn.ctx.ActiveWallet == nil {
		return
	}
	ps := &pollSession{
		url:        s.conn.ctx.URL,
		wallet:     *s.conn.ctx.ActiveWallet,
		commitment: s.conn.ctx.Commitment,
		raw:        s.conn.raw,
	}
	s.poll = ps
	s.poller.start(
		pollTask{name: TaskTokenAccounts, interval: s.tokenEvery, tick: func(ctx context.Context) error {
			return s.pollTokenAccounts(ctx, ps)
		}},
		pollTask{name: TaskBlockhash, interval: s.blockEvery, tick: func(ctx context.Context) error {
			return s.pollBlockhash(ctx, ps)
		}},
	)
	s.logger.Info("polling started", zap.String("url", ps.url), zap.Stringer("wallet", ps.wallet))
}

func (s *Supervisor) stopPollingLocked() {
	if s.poll == nil && s.poller.active() == 0 {
		return
	}
	s.poller.stop()
	if s.poll != nil {
		s.logger.Info("polling stopped", zap.String("url", s.poll.url), zap.Stringer("wallet", s.poll.wallet))
	}
	s.poll = nil
}

// aggregateKey is the cache key foreground reads of the token aggregate use.
func aggregateKey(url string, wallet solana.Address) (string, error) {
	return cache.Key(url, wire.MethodCustomSplTokenAccounts, []any{wallet.String()})
}

// loadFingerprint seeds ps from the fingerprint store once.
func (s *Supervisor) loadFingerprint(ctx context.Context, ps *pollSession) {
	ps.mu.Lock()
	done := ps.seeded
	ps.seeded = true
	ps.mu.Unlock()
	if done || s.fingerprints == nil {
		return
	}

	fp, err := s.fingerprints.Get(ctx, ps.url, ps.wallet.String())
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		s.logger.Warn("load fingerprint", zap.Error(err))
	default:
		ps.seed(fp.Value)
	}
}

// pollTokenAccounts fetches the wallet's token aggregate over the unhooked
// connection and announces it when its fingerprint changed.
func (s *Supervisor) pollTokenAccounts(ctx context.Context, ps *pollSession) error {
	s.loadFingerprint(ctx, ps)

	agg, err := tokens.Fetch(ctx, ps.raw, ps.wallet)
	if err != nil {
		return err
	}
	fp, err := tokens.Fingerprint(agg)
	if err != nil {
		return err
	}
	if !ps.swap(fp) {
		s.metrics.RecordPollTick(TaskTokenAccounts, tickUnchanged)
		return nil
	}

	if s.fingerprints != nil {
		err := s.fingerprints.Put(ctx, &storage.Fingerprint{
			ConnectionURL: ps.url,
			Wallet:        ps.wallet.String(),
			Value:         fp,
			UpdatedAt:     s.clock.Now(),
		})
		if err != nil {
			s.logger.Warn("persist fingerprint", zap.Error(err))
		}
	}

	key, err := aggregateKey(ps.url, ps.wallet)
	if err != nil {
		return err
	}
	s.cache.Set(key, agg, s.ttl)

	payload, err := json.Marshal(agg)
	if err != nil {
		return err
	}
	s.publish(events.TokenAccountsDidUpdate, events.TokenAccountsDidUpdateData{
		ConnectionURL: ps.url,
		WalletAddress: ps.wallet.String(),
		Aggregate:     payload,
	})
	s.metrics.RecordPollTick(TaskTokenAccounts, tickChanged)
	return nil
}

// pollBlockhash refreshes the cached latest blockhash unconditionally.
func (s *Supervisor) pollBlockhash(ctx context.Context, ps *pollSession) error {
	params := solana.LatestBlockhashParams(ps.commitment)
	raw, err := ps.raw.Transport().Dispatch(ctx, solana.MethodGetLatestBlockhash, params)
	if err != nil {
		return err
	}
	key, err := cache.Key(ps.url, solana.MethodGetLatestBlockhash, params)
	if err != nil {
		return err
	}
	s.cache.Set(key, raw, s.ttl)
	s.metrics.RecordPollTick(TaskBlockhash, tickRefreshed)
	return nil
}

func (s *Supervisor) publish(name string, data any) {
	if s.bus == nil {
		return
	}
	e, err := events.New(name, data)
	if err != nil {
		s.logger.Error("encode notification", zap.String("event", name), zap.Error(err))
		return
	}
	s.bus.Publish(events.TopicNotifications, e)
	s.metrics.RecordNotification(name)
}
