package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics records settlement activity processed by the market engines.
type MarketMetrics struct {
	events      *prometheus.CounterVec
	rpcRequests *prometheus.CounterVec
	rpcErrors   *prometheus.CounterVec
	rpcLatency  *prometheus.HistogramVec
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

// Market returns the lazily-initialised metrics registry shared by the daemon.
func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "marketd",
				Subsystem: "engine",
				Name:      "events_total",
				Help:      "Count of settlement events emitted by the market engines, by type.",
			}, []string{"type"}),
			rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "marketd",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			rpcErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "marketd",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and code.",
			}, []string{"method", "code"}),
			rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "marketd",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			marketRegistry.events,
			marketRegistry.rpcRequests,
			marketRegistry.rpcErrors,
			marketRegistry.rpcLatency,
		)
	})
	return marketRegistry
}

// ObserveEvent counts one emitted engine event.
func (m *MarketMetrics) ObserveEvent(eventType string) {
	if m == nil || eventType == "" {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

// ObserveRPC records the outcome and latency of one JSON-RPC call.
func (m *MarketMetrics) ObserveRPC(method, outcome string, duration time.Duration) {
	if m == nil || method == "" {
		return
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
	m.rpcLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveRPCError records one failed JSON-RPC call by error code.
func (m *MarketMetrics) ObserveRPCError(method, code string) {
	if m == nil || method == "" {
		return
	}
	m.rpcErrors.WithLabelValues(method, code).Inc()
}
