package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RPCMetrics records JSON-RPC method activity.
type RPCMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// LedgerMetrics records permit and recovery outcomes.
type LedgerMetrics struct {
	permits    *prometheus.CounterVec
	recoveries *prometheus.CounterVec
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *RPCMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// RPC returns the lazily-initialised JSON-RPC metrics registry.
func RPC() *RPCMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &RPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tokend",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tokend",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tokend",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(rpcRegistry.requests, rpcRegistry.errors, rpcRegistry.latency)
	})
	return rpcRegistry
}

// ObserveRequest records one handled request with its latency.
func (m *RPCMetrics) ObserveRequest(method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveError records one failed request by error code.
func (m *RPCMetrics) ObserveError(method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, code).Inc()
}

// Ledger returns the lazily-initialised permit/recovery metrics registry.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			permits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tokend",
				Subsystem: "permit",
				Name:      "operations_total",
				Help:      "Permit attempts segmented by outcome.",
			}, []string{"outcome"}),
			recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tokend",
				Subsystem: "recovery",
				Name:      "operations_total",
				Help:      "Recovery operations segmented by kind and outcome.",
			}, []string{"kind", "outcome"}),
		}
		prometheus.MustRegister(ledgerRegistry.permits, ledgerRegistry.recoveries)
	})
	return ledgerRegistry
}

// ObservePermit records one permit attempt.
func (m *LedgerMetrics) ObservePermit(outcome string) {
	if m == nil {
		return
	}
	m.permits.WithLabelValues(outcome).Inc()
}

// ObserveRecovery records one recovery operation.
func (m *LedgerMetrics) ObserveRecovery(kind, outcome string) {
	if m == nil {
		return
	}
	m.recoveries.WithLabelValues(kind, outcome).Inc()
}
