package main

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"solana-conn-proxy/internal/channel"
	"solana-conn-proxy/internal/config"
	"solana-conn-proxy/internal/events"
	"solana-conn-proxy/internal/observability"
)

// maxEventBody bounds a lifecycle event request.
const maxEventBody = 64 << 10

// lifecycleEvents are the names accepted on POST /events.
var lifecycleEvents = map[string]bool{
	events.KeyringCreated:           true,
	events.KeyringUnlocked:          true,
	events.KeyringLocked:            true,
	events.ActiveWalletUpdated:      true,
	events.ConnectionURLUpdated:     true,
	events.BlockchainKeyringCreated: true,
	events.BlockchainKeyringDeleted: true,
}

// newHTTPServers builds the channel listener and, when configured, a
// separate metrics listener.
func newHTTPServers(cfg *config.Config, ch *channel.Server, bus events.Bus, reg prometheus.Gatherer, logger *zap.Logger) []*http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Channel.Path, ch)
	mux.Handle("POST /events", eventsHandler(bus, logger))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	metricsMux := mux
	if cfg.Metrics.ListenAddr != "" {
		metricsMux = http.NewServeMux()
	}
	metricsMux.Handle(cfg.Metrics.Path, observability.Handler(reg))

	servers := []*http.Server{newServer(cfg.Channel.ListenAddr, mux)}
	if cfg.Metrics.ListenAddr != "" {
		servers = append(servers, newServer(cfg.Metrics.ListenAddr, metricsMux))
	}
	return servers
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// eventsHandler publishes a keyring lifecycle event on the bus. The
// supervisor applies it asynchronously.
func eventsHandler(bus events.Bus, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		var e events.Event
		if err := json.Unmarshal(body, &e); err != nil {
			http.Error(w, "invalid event: "+err.Error(), http.StatusBadRequest)
			return
		}
		if !lifecycleEvents[e.Name] {
			http.Error(w, "unknown event "+e.Name, http.StatusUnprocessableEntity)
			return
		}

		bus.Publish(events.TopicLifecycle, e)
		logger.Debug("lifecycle event accepted", zap.String("event", e.Name))
		w.WriteHeader(http.StatusAccepted)
	})
}
