// Package config loads the supervisor's YAML configuration.
//
// Files support ${VAR} environment interpolation. Zero values are replaced
// by the defaults in defaults.go before validation.
package config

import "time"

// Config is the root configuration of the supervisor process.
type Config struct {
	RPC     RPCConfig     `yaml:"rpc"`
	Cache   CacheConfig   `yaml:"cache"`
	Poll    PollConfig    `yaml:"poll"`
	Confirm ConfirmConfig `yaml:"confirm"`
	Channel ChannelConfig `yaml:"channel"`
	Metrics MetricsConfig `yaml:"metrics"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// RPCConfig holds upstream node settings.
type RPCConfig struct {
	// URL is the initial connection URL. Optional: the keyring normally
	// supplies it with keyring-unlocked.
	URL string `yaml:"url"`

	Commitment string        `yaml:"commitment"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	// MetadataTimeout bounds each off-chain metadata fetch.
	MetadataTimeout time.Duration `yaml:"metadata_timeout"`
}

// CacheConfig holds read cache lifetimes.
type CacheConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	MetadataTTL time.Duration `yaml:"metadata_ttl"`
}

// PollConfig holds background polling intervals.
type PollConfig struct {
	TokenInterval     time.Duration `yaml:"token_interval"`
	BlockhashInterval time.Duration `yaml:"blockhash_interval"`
}

// ConfirmConfig holds confirmation wait settings.
type ConfirmConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ChannelConfig holds the proxy channel listener.
type ChannelConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Path       string `yaml:"path"`

	// Profile selects the blob codec: base58 or binary.
	Profile     string `yaml:"profile"`
	MaxInFlight int    `yaml:"max_in_flight"`
}

// MetricsConfig holds Prometheus settings. An empty ListenAddr serves
// metrics on the channel listener.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Path       string `yaml:"path"`
	Namespace  string `yaml:"namespace"`
}

// StorageConfig selects persistence backends. Empty DSNs use in-memory
// stores.
type StorageConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`

	CallLogBatchSize     int           `yaml:"call_log_batch_size"`
	CallLogFlushInterval time.Duration `yaml:"call_log_flush_interval"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}
