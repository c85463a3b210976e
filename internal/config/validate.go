package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap/zapcore"

	"solana-conn-proxy/internal/solana"
	"solana-conn-proxy/internal/wire"
)

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if c.RPC.URL != "" {
		u, err := url.Parse(c.RPC.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("rpc.url must be an http(s) URL, got %q", c.RPC.URL)
		}
	}
	if !solana.Commitment(c.RPC.Commitment).Valid() {
		return fmt.Errorf("rpc.commitment: unknown level %q", c.RPC.Commitment)
	}
	if c.RPC.MaxRetries < 0 {
		return errors.New("rpc.max_retries must be >= 0")
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"rpc.timeout", c.RPC.Timeout},
		{"rpc.metadata_timeout", c.RPC.MetadataTimeout},
		{"cache.ttl", c.Cache.TTL},
		{"cache.metadata_ttl", c.Cache.MetadataTTL},
		{"poll.token_interval", c.Poll.TokenInterval},
		{"poll.blockhash_interval", c.Poll.BlockhashInterval},
		{"confirm.initial_delay", c.Confirm.InitialDelay},
		{"confirm.poll_interval", c.Confirm.PollInterval},
		{"confirm.timeout", c.Confirm.Timeout},
		{"storage.call_log_flush_interval", c.Storage.CallLogFlushInterval},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.d)
		}
	}
	if c.Confirm.InitialDelay >= c.Confirm.Timeout {
		return fmt.Errorf("confirm.initial_delay (%s) must be shorter than confirm.timeout (%s)", c.Confirm.InitialDelay, c.Confirm.Timeout)
	}

	if _, err := wire.CodecFor(c.Channel.Profile); err != nil {
		return fmt.Errorf("channel.profile: %w", err)
	}
	if c.Channel.MaxInFlight < 1 {
		return errors.New("channel.max_in_flight must be >= 1")
	}
	if c.Storage.CallLogBatchSize < 1 {
		return errors.New("storage.call_log_batch_size must be >= 1")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
