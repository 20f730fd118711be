// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	MergeEventsFetched   prometheus.Counter
	MergeEventsApplied   prometheus.Counter
	MergeEventsSkipped   prometheus.Counter
	TransfersFetched     prometheus.Counter
	ScanErrors           *prometheus.CounterVec

	// Ledger metrics
	LedgerBlock prometheus.Gauge
	AliveTokens prometheus.Gauge
	AliveMass   prometheus.Gauge
	FailedIDs   *prometheus.GaugeVec

	// Latency metrics
	RPCCallLatency     *prometheus.HistogramVec
	RebuildDuration    prometheus.Histogram
	WSMessageLatency   prometheus.Histogram

	// Watch metrics
	WSReconnects       prometheus.Counter
	LiveMergesObserved prometheus.Counter

	// Health metrics
	LastSuccessfulSync prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "merge_ledger"
	}

	return &Metrics{
		MergeEventsFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "merge_events_fetched_total",
			Help:      "Total number of merge events fetched from the log provider",
		}),
		MergeEventsApplied: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "merge_events_applied_total",
			Help:      "Total number of merge events applied to the ledger",
		}),
		MergeEventsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "merge_events_skipped_total",
			Help:      "Total number of already-applied merge events skipped",
		}),
		TransfersFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "custodial_transfers_fetched_total",
			Help:      "Total number of custodial wallet transfers fetched",
		}),
		ScanErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "scan_errors_total",
			Help:      "Total number of log scan errors by source",
		}, []string{"source"}),

		LedgerBlock: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "block",
			Help:      "Last block number applied to the ledger",
		}),
		AliveTokens: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "alive_tokens",
			Help:      "Number of tokens currently alive",
		}),
		AliveMass: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "alive_mass",
			Help:      "Total mass held by alive tokens",
		}),
		FailedIDs: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "failed_ids",
			Help:      "Token IDs pending a retry by kind",
		}, []string{"kind"}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "RPC call latency by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RebuildDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rebuild_duration_seconds",
			Help:      "Full ledger rebuild duration",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		WSMessageLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "ws_message_latency_seconds",
			Help:      "Latency from block timestamp to local processing",
			Buckets:   prometheus.DefBuckets,
		}),

		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "ws_reconnects_total",
			Help:      "Total number of websocket reconnects",
		}),
		LiveMergesObserved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "live_merges_observed_total",
			Help:      "Total number of merges observed over the live subscription",
		}),

		LastSuccessfulSync: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sync_timestamp",
			Help:      "Unix timestamp of last successful sync",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventsFetched adds fetched merge events to the counter.
func RecordEventsFetched(n int) {
	DefaultMetrics.MergeEventsFetched.Add(float64(n))
}

// RecordApply records the outcome of a ledger apply pass.
func RecordApply(applied, skipped int) {
	DefaultMetrics.MergeEventsApplied.Add(float64(applied))
	DefaultMetrics.MergeEventsSkipped.Add(float64(skipped))
}

// RecordScanError records a log scan error.
func RecordScanError(source string) {
	DefaultMetrics.ScanErrors.WithLabelValues(source).Inc()
}

// UpdateLedger updates the ledger gauges from a snapshot.
func UpdateLedger(block int64, aliveCount int, aliveMass int64) {
	DefaultMetrics.LedgerBlock.Set(float64(block))
	DefaultMetrics.AliveTokens.Set(float64(aliveCount))
	DefaultMetrics.AliveMass.Set(float64(aliveMass))
}

// UpdateFailedIDs updates the retry-list gauge for one kind.
func UpdateFailedIDs(kind string, n int) {
	DefaultMetrics.FailedIDs.WithLabelValues(kind).Set(float64(n))
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}
