// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Reconciliation metrics
	ExecutionsProcessed *prometheus.CounterVec
	PositionsClosed     *prometheus.CounterVec
	OpenPositions       prometheus.Gauge

	// Feed metrics
	FeedMessages *prometheus.CounterVec

	// Replay metrics
	ReplaysTotal          *prometheus.CounterVec
	SamplingDecisions     *prometheus.CounterVec
	ProviderRetries       prometheus.Counter
	ProviderLatency       prometheus.Histogram
	AggregatesComputed    prometheus.Counter
	ReplayBatchInProgress prometheus.Gauge

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulPipeline prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "trade_analytics"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ExecutionsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "executions_total",
			Help:      "Executions processed by result (applied, duplicate, rejected, error)",
		}, []string{"result"}),
		PositionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "positions_closed_total",
			Help:      "Positions closed by outcome",
		}, []string{"outcome"}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "open_positions",
			Help:      "Open positions at the end of the last batch reconciliation",
		}),

		FeedMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_total",
			Help:      "Execution feed messages by source and status",
		}, []string{"source", "status"}),

		ReplaysTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "replays_total",
			Help:      "Replay attempts by status",
		}, []string{"status"}),
		SamplingDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "sampling_decisions_total",
			Help:      "Sampling decisions by reason",
		}, []string{"reason"}),
		ProviderRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "retries_total",
			Help:      "Market data requests retried after a transient failure",
		}),
		ProviderLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "request_latency_seconds",
			Help:      "Market data request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		AggregatesComputed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metrics",
			Name:      "aggregates_computed_total",
			Help:      "Total number of aggregate statistics computed",
		}),
		ReplayBatchInProgress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "in_progress",
			Help:      "Replays currently running",
		}),

		PipelineRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		}, []string{"phase", "status"}),
		PipelineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"phase"}),

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

		LastSuccessfulPipeline: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pipeline_timestamp",
			Help:      "Unix timestamp of last successful pipeline run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordExecution counts a processed execution by result.
func RecordExecution(result string) {
	DefaultMetrics.ExecutionsProcessed.WithLabelValues(result).Inc()
}

// RecordPositionClosed counts a closed position by outcome.
func RecordPositionClosed(outcome string) {
	DefaultMetrics.PositionsClosed.WithLabelValues(outcome).Inc()
}

// SetOpenPositions sets the open positions gauge.
func SetOpenPositions(n int) {
	DefaultMetrics.OpenPositions.Set(float64(n))
}

// RecordFeedMessage counts a feed message by source and status.
func RecordFeedMessage(source, status string) {
	DefaultMetrics.FeedMessages.WithLabelValues(source, status).Inc()
}

// RecordReplay counts a replay attempt by status.
func RecordReplay(status string) {
	DefaultMetrics.ReplaysTotal.WithLabelValues(status).Inc()
}

// TrackReplay increments the in-progress gauge and returns its decrement.
func TrackReplay() func() {
	DefaultMetrics.ReplayBatchInProgress.Inc()
	return DefaultMetrics.ReplayBatchInProgress.Dec
}

// RecordSamplingDecision counts a sampling decision by reason.
func RecordSamplingDecision(reason string) {
	DefaultMetrics.SamplingDecisions.WithLabelValues(reason).Inc()
}

// RecordProviderRetry counts a retried market data request.
func RecordProviderRetry() {
	DefaultMetrics.ProviderRetries.Inc()
}

// RecordProviderLatency records market data request latency.
func RecordProviderLatency(seconds float64) {
	DefaultMetrics.ProviderLatency.Observe(seconds)
}

// RecordAggregate counts a computed aggregate.
func RecordAggregate() {
	DefaultMetrics.AggregatesComputed.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// ObserveDBQuery records a query started at start. Use with defer:
//
//	defer func() { observability.ObserveDBQuery("postgres", "insert", start, err) }()
func ObserveDBQuery(database, operation string, start time.Time, err error) {
	RecordDBQuery(database, operation, time.Since(start).Seconds(), err)
}

// RecordPipelineRun records a pipeline run.
func RecordPipelineRun(phase, status string, durationSeconds float64) {
	DefaultMetrics.PipelineRunsTotal.WithLabelValues(phase, status).Inc()
	DefaultMetrics.PipelineDuration.WithLabelValues(phase).Observe(durationSeconds)
	if status == "success" {
		DefaultMetrics.LastSuccessfulPipeline.SetToCurrentTime()
	}
}
