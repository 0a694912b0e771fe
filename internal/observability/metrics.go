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
	LogsReceived          prometheus.Counter
	SwapsObserved         prometheus.Counter
	SwapsSkipped          *prometheus.CounterVec
	ObservationsStored    prometheus.Counter
	EventProcessingErrors *prometheus.CounterVec

	// Buffer metrics
	LogBufferSize    prometheus.Gauge
	HighestBlockSeen prometheus.Gauge

	// Detection metrics
	FindingsDetected prometheus.Counter
	HistorySize      prometheus.Gauge
	HistorySweeps    prometheus.Counter
	HistoryEvicted   prometheus.Counter
	SinkErrors       *prometheus.CounterVec

	// Latency metrics
	TxProcessingLatency prometheus.Histogram
	RPCCallLatency      *prometheus.HistogramVec
	WSMessageLatency    prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastProcessedBlock prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "sandwich_watch"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Ingestion metrics
		LogsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "logs_received_total",
			Help:      "Total number of router logs received",
		}),
		SwapsObserved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "swaps_observed_total",
			Help:      "Total number of swap events decoded",
		}),
		SwapsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "swaps_skipped_total",
			Help:      "Total number of swaps not handed to the matcher by reason",
		}, []string{"reason"}),
		ObservationsStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "observations_stored_total",
			Help:      "Total number of swap observations stored to database",
		}),
		EventProcessingErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "event_processing_errors_total",
			Help:      "Total number of event processing errors by type",
		}, []string{"stage", "error_type"}),

		// Buffer metrics
		LogBufferSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "log_buffer_blocks",
			Help:      "Current number of blocks held in the log buffer",
		}),
		HighestBlockSeen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "highest_block_seen",
			Help:      "Highest block number seen",
		}),

		// Detection metrics
		FindingsDetected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "findings_total",
			Help:      "Total number of sandwich findings",
		}),
		HistorySize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "history_entries",
			Help:      "Indexed entries in the swap history",
		}),
		HistorySweeps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "history_sweeps_total",
			Help:      "Total number of history eviction sweeps",
		}),
		HistoryEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "history_evicted_total",
			Help:      "Total number of history entries evicted by sweeps",
		}),
		SinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "sink_errors_total",
			Help:      "Total number of finding sink errors",
		}, []string{"sink"}),

		// Latency metrics
		TxProcessingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "tx_processing_latency_seconds",
			Help:      "Per-transaction detection latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evm",
			Name:      "rpc_call_latency_seconds",
			Help:      "JSON-RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSMessageLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evm",
			Name:      "ws_message_latency_seconds",
			Help:      "WebSocket message processing latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastProcessedBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_processed_block",
			Help:      "Number of the last block handed to the detector",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordLogReceived increments the router logs received counter.
func RecordLogReceived() {
	DefaultMetrics.LogsReceived.Inc()
}

// RecordSwapObserved increments the decoded swaps counter.
func RecordSwapObserved() {
	DefaultMetrics.SwapsObserved.Inc()
}

// RecordSwapSkipped records a swap that did not reach the matcher.
func RecordSwapSkipped(reason string) {
	DefaultMetrics.SwapsSkipped.WithLabelValues(reason).Inc()
}

// RecordObservationsStored adds n to the stored observations counter.
func RecordObservationsStored(n int) {
	DefaultMetrics.ObservationsStored.Add(float64(n))
}

// RecordEventError records an event processing error.
func RecordEventError(stage, errorType string) {
	DefaultMetrics.EventProcessingErrors.WithLabelValues(stage, errorType).Inc()
}

// UpdateBufferSize updates the log buffer gauge.
func UpdateBufferSize(blocks int) {
	DefaultMetrics.LogBufferSize.Set(float64(blocks))
}

// UpdateHighestBlock updates the highest block seen gauge.
func UpdateHighestBlock(block uint64) {
	DefaultMetrics.HighestBlockSeen.Set(float64(block))
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordWSMessage records websocket message handling latency.
func RecordWSMessage(seconds float64) {
	DefaultMetrics.WSMessageLatency.Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
