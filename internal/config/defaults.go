package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRPCTimeout           = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultRetryDelay           = 500 * time.Millisecond
	DefaultMetadataTimeout      = 10 * time.Second
	DefaultCommitment           = "confirmed"
	DefaultCacheTTL             = 15 * time.Second
	DefaultMetadataTTL          = 15 * time.Minute
	DefaultTokenInterval        = 10 * time.Second
	DefaultBlockhashInterval    = 10 * time.Second
	DefaultConfirmInitialDelay  = 5 * time.Second
	DefaultConfirmPollInterval  = 1 * time.Second
	DefaultConfirmTimeout       = 30 * time.Second
	DefaultChannelListenAddr    = ":8899"
	DefaultChannelPath          = "/channel"
	DefaultChannelProfile       = "base58"
	DefaultMaxInFlight          = 16
	DefaultMetricsPath          = "/metrics"
	DefaultMetricsNamespace     = "connproxy"
	DefaultCallLogBatchSize     = 500
	DefaultCallLogFlushInterval = 5 * time.Second
	DefaultLogLevel             = "info"
)

func (c *Config) applyDefaults() {
	// RPC defaults
	if c.RPC.Commitment == "" {
		c.RPC.Commitment = DefaultCommitment
	}
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = DefaultRPCTimeout
	}
	if c.RPC.MaxRetries == 0 {
		c.RPC.MaxRetries = DefaultMaxRetries
	}
	if c.RPC.RetryDelay == 0 {
		c.RPC.RetryDelay = DefaultRetryDelay
	}
	if c.RPC.MetadataTimeout == 0 {
		c.RPC.MetadataTimeout = DefaultMetadataTimeout
	}

	// Cache defaults
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Cache.MetadataTTL == 0 {
		c.Cache.MetadataTTL = DefaultMetadataTTL
	}

	// Poll defaults
	if c.Poll.TokenInterval == 0 {
		c.Poll.TokenInterval = DefaultTokenInterval
	}
	if c.Poll.BlockhashInterval == 0 {
		c.Poll.BlockhashInterval = DefaultBlockhashInterval
	}

	// Confirm defaults
	if c.Confirm.InitialDelay == 0 {
		c.Confirm.InitialDelay = DefaultConfirmInitialDelay
	}
	if c.Confirm.PollInterval == 0 {
		c.Confirm.PollInterval = DefaultConfirmPollInterval
	}
	if c.Confirm.Timeout == 0 {
		c.Confirm.Timeout = DefaultConfirmTimeout
	}

	// Channel defaults
	if c.Channel.ListenAddr == "" {
		c.Channel.ListenAddr = DefaultChannelListenAddr
	}
	if c.Channel.Path == "" {
		c.Channel.Path = DefaultChannelPath
	}
	if c.Channel.Profile == "" {
		c.Channel.Profile = DefaultChannelProfile
	}
	if c.Channel.MaxInFlight == 0 {
		c.Channel.MaxInFlight = DefaultMaxInFlight
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNamespace
	}

	// Storage defaults
	if c.Storage.CallLogBatchSize == 0 {
		c.Storage.CallLogBatchSize = DefaultCallLogBatchSize
	}
	if c.Storage.CallLogFlushInterval == 0 {
		c.Storage.CallLogFlushInterval = DefaultCallLogFlushInterval
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}
