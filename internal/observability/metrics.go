// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "solana_conn_proxy"

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Cache metrics
	CacheRequests *prometheus.CounterVec
	CacheEntries  prometheus.GaugeFunc

	// Upstream RPC metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec

	// Polling metrics
	PollTicks         *prometheus.CounterVec
	PollTasksActive   prometheus.Gauge
	NotificationsSent *prometheus.CounterVec

	// Lifecycle metrics
	LifecycleTransitions *prometheus.CounterVec

	// Channel metrics
	ChannelRequests *prometheus.CounterVec
	ChannelLatency  *prometheus.HistogramVec

	// Call log metrics
	CallLogFlushes *prometheus.CounterVec
}

// NewMetrics creates metrics registered against reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups by method and result (hit or miss)",
		}, []string{"method", "result"}),

		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Upstream RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "Upstream RPC call failures by method",
		}, []string{"method"}),

		PollTicks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "ticks_total",
			Help:      "Poll ticks by task and outcome",
		}, []string{"task", "result"}),
		PollTasksActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "tasks_active",
			Help:      "Number of running poll tasks",
		}),
		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "notifications_total",
			Help:      "Change notifications published by event name",
		}, []string{"event"}),

		LifecycleTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "transitions_total",
			Help:      "Lifecycle events handled by event name",
		}, []string{"event"}),

		ChannelRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "requests_total",
			Help:      "Channel requests by method and result code",
		}, []string{"method", "code"}),
		ChannelLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "request_latency_seconds",
			Help:      "Channel request handling latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		CallLogFlushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calllog",
			Name:      "flushes_total",
			Help:      "Call log batch flushes by status",
		}, []string{"status"}),
	}
}

// RegisterCacheSize exposes a gauge reading the live entry count.
func (m *Metrics) RegisterCacheSize(reg prometheus.Registerer, namespace string, size func() int) {
	if m == nil {
		return
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	m.CacheEntries = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Current number of cache entries",
	}, func() float64 { return float64(size()) })
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordCache records a cache lookup.
func (m *Metrics) RecordCache(method string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.WithLabelValues(method, result).Inc()
}

// RecordRPC records an upstream RPC call.
func (m *Metrics) RecordRPC(method string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
	if err != nil {
		m.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordPollTick records one poll iteration.
func (m *Metrics) RecordPollTick(task, result string) {
	if m == nil {
		return
	}
	m.PollTicks.WithLabelValues(task, result).Inc()
}

// SetPollTasks sets the running poll task gauge.
func (m *Metrics) SetPollTasks(n int) {
	if m == nil {
		return
	}
	m.PollTasksActive.Set(float64(n))
}

// RecordNotification records a published notification.
func (m *Metrics) RecordNotification(event string) {
	if m == nil {
		return
	}
	m.NotificationsSent.WithLabelValues(event).Inc()
}

// RecordTransition records a handled lifecycle event.
func (m *Metrics) RecordTransition(event string) {
	if m == nil {
		return
	}
	m.LifecycleTransitions.WithLabelValues(event).Inc()
}

// RecordChannelRequest records a served channel request.
func (m *Metrics) RecordChannelRequest(method, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.ChannelRequests.WithLabelValues(method, code).Inc()
	m.ChannelLatency.WithLabelValues(method).Observe(d.Seconds())
}

// RecordCallLogFlush records a call log flush.
func (m *Metrics) RecordCallLogFlush(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.CallLogFlushes.WithLabelValues(status).Inc()
}
