// Package main runs the connection supervisor as a standalone background
// process:
// - Channel (/channel): WebSocket endpoint remote proxies call through
// - Lifecycle ingress (POST /events): keyring events published on the bus
// - Metrics (/metrics): Prometheus exposition
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"solana-conn-proxy/internal/cache"
	"solana-conn-proxy/internal/channel"
	"solana-conn-proxy/internal/config"
	"solana-conn-proxy/internal/events"
	"solana-conn-proxy/internal/logging"
	"solana-conn-proxy/internal/observability"
	"solana-conn-proxy/internal/solana"
	"solana-conn-proxy/internal/storage"
	"solana-conn-proxy/internal/supervisor"
	"solana-conn-proxy/internal/wire"
)

// flags holds command-line overrides. Env vars supply the defaults.
type flags struct {
	configPath    string
	url           string
	wallet        string
	commitment    string
	listenAddr    string
	profile       string
	postgresDSN   string
	clickhouseDSN string
	logLevel      string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "supervisor",
		Short: "Run the Solana connection supervisor",
		Long: `Owns the canonical Solana connection, caches reads, polls the active
wallet for token-account changes and serves remote proxies over a
WebSocket channel.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A missing .env file is fine; system env vars still apply.
			_ = godotenv.Load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, f.wallet)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", os.Getenv("SUPERVISOR_CONFIG"), "Path to YAML config")
	fs.StringVar(&f.url, "url", "", "Initial connection URL; publishes keyring-unlocked on start")
	fs.StringVar(&f.wallet, "wallet", "", "Initial active wallet (requires --url)")
	fs.StringVar(&f.commitment, "commitment", "", "Initial commitment level")
	fs.StringVar(&f.listenAddr, "listen", "", "Channel listen address")
	fs.StringVar(&f.profile, "profile", "", "Channel blob profile (base58 or binary)")
	fs.StringVar(&f.postgresDSN, "postgres-dsn", "", "PostgreSQL DSN for fingerprints")
	fs.StringVar(&f.clickhouseDSN, "clickhouse-dsn", "", "ClickHouse DSN for the call log")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level")
	return cmd
}

// resolve loads the config file and applies env and flag overrides.
func (f *flags) resolve(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadAndValidate(f.configPath)
	if err != nil {
		return nil, err
	}

	override := func(name string, dst *string, env string) {
		if cmd.Flags().Changed(name) {
			*dst, _ = cmd.Flags().GetString(name)
			return
		}
		if env == "" {
			return
		}
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	override("url", &cfg.RPC.URL, "SOLANA_RPC_ENDPOINT")
	override("commitment", &cfg.RPC.Commitment, "")
	override("listen", &cfg.Channel.ListenAddr, "")
	override("profile", &cfg.Channel.Profile, "")
	override("postgres-dsn", &cfg.Storage.PostgresDSN, "POSTGRES_DSN")
	override("clickhouse-dsn", &cfg.Storage.ClickHouseDSN, "CLICKHOUSE_DSN")
	override("log-level", &cfg.Log.Level, "LOG_LEVEL")

	if f.wallet != "" && cfg.RPC.URL == "" {
		return nil, errors.New("--wallet requires --url")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, wallet string) (err error) {
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return err
	}
	defer logger.Sync()

	codec, err := wire.CodecFor(cfg.Channel.Profile)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg, cfg.Metrics.Namespace)

	st, err := openStores(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.close()) }()

	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	writer := storage.NewCallLogWriter(st.callLog, storage.CallLogWriterOptions{
		BatchSize:     cfg.Storage.CallLogBatchSize,
		FlushInterval: cfg.Storage.CallLogFlushInterval,
		Logger:        logger,
		Metrics:       metrics,
	})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writer.Run(bgCtx)
	}()

	c := cache.New(cache.Options{Logger: logger})
	go c.Start()
	defer c.Stop()
	metrics.RegisterCacheSize(reg, cfg.Metrics.Namespace, c.Len)

	bus := events.NewMessageBus(events.DefaultQueueSize)
	defer bus.Close()

	sup := supervisor.New(supervisor.Options{
		TransportFactory: func(url string) solana.Transport {
			return solana.NewHTTPTransport(url,
				solana.WithTimeout(cfg.RPC.Timeout),
				solana.WithMaxRetries(cfg.RPC.MaxRetries),
				solana.WithRetryDelay(cfg.RPC.RetryDelay),
			)
		},
		Cache:                 c,
		Bus:                   bus,
		Fingerprints:          st.fingerprints,
		CallRecorder:          writer,
		Metrics:               metrics,
		Logger:                logger,
		TTL:                   cfg.Cache.TTL,
		MetadataTTL:           cfg.Cache.MetadataTTL,
		TokenPollInterval:     cfg.Poll.TokenInterval,
		BlockhashPollInterval: cfg.Poll.BlockhashInterval,
		Confirm: supervisor.ConfirmOptions{
			InitialDelay: cfg.Confirm.InitialDelay,
			PollInterval: cfg.Confirm.PollInterval,
			Timeout:      cfg.Confirm.Timeout,
		},
		HTTPClient: &http.Client{Timeout: cfg.RPC.MetadataTimeout},
		Codec:      codec,
	})
	if err := sup.Start(); err != nil {
		return err
	}

	if cfg.RPC.URL != "" {
		if err := publishUnlocked(bus, cfg.RPC.URL, solana.Commitment(cfg.RPC.Commitment), wallet); err != nil {
			return err
		}
	}

	chServer := channel.NewServer(sup, channel.ServerOptions{
		Bus:         bus,
		Logger:      logger,
		MaxInFlight: cfg.Channel.MaxInFlight,
	})
	servers := newHTTPServers(cfg, chServer, bus, reg, logger)

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info("listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
		}(srv)
	}
	logger.Info("supervisor started",
		zap.String("profile", codec.Profile()),
		zap.Bool("postgres", cfg.Storage.PostgresDSN != ""),
		zap.Bool("clickhouse", cfg.Storage.ClickHouseDSN != ""),
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		logger.Error("server failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		shutdownErr = multierr.Append(shutdownErr, srv.Shutdown(shutdownCtx))
	}
	shutdownErr = multierr.Combine(shutdownErr, chServer.Close(), sup.Stop())

	cancelBg()
	<-writerDone

	return multierr.Combine(runErr, shutdownErr)
}

// publishUnlocked seeds the supervisor as if the keyring had just been
// unlocked with url and, optionally, wallet.
func publishUnlocked(bus events.Bus, url string, commitment solana.Commitment, wallet string) error {
	byChain := map[string]string{}
	if wallet != "" {
		if _, err := solana.ParseAddress(wallet); err != nil {
			return fmt.Errorf("--wallet: %w", err)
		}
		byChain[events.ChainSolana] = wallet
	}
	e, err := events.New(events.KeyringUnlocked, events.KeyringUnlockedData{
		ActiveWalletsByChain: byChain,
		ConnectionURL:        url,
		Commitment:           commitment,
	})
	if err != nil {
		return err
	}
	bus.Publish(events.TopicLifecycle, e)
	return nil
}
