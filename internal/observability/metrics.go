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
	// Market data metrics
	APICalls         *prometheus.CounterVec
	APICallLatency   *prometheus.HistogramVec
	APIRetries       prometheus.Counter
	CandlesFetched   prometheus.Counter
	CandleCacheHits  prometheus.Counter
	CandleCacheMiss  prometheus.Counter
	CandleGapsFound  *prometheus.CounterVec

	// Ingestion metrics
	AlertsIngested   prometheus.Counter
	AlertsDuplicate  prometheus.Counter
	AlertsRejected   *prometheus.CounterVec
	CandlesBackfills prometheus.Counter

	// Experiment metrics
	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	AlertsSimulated  prometheus.Counter
	ReplaysVerified  *prometheus.CounterVec

	// Artifact metrics
	ArtifactWrites   prometheus.Counter
	ArtifactDedups   prometheus.Counter
	ArtifactBytes    prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "caller_alert_lab"
	}

	return &Metrics{
		APICalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "api_calls_total",
			Help:      "Total number of market data API calls by outcome",
		}, []string{"endpoint", "outcome"}),
		APICallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "api_call_latency_seconds",
			Help:      "Market data API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		APIRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "api_retries_total",
			Help:      "Total number of retried API attempts",
		}),
		CandlesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "candles_fetched_total",
			Help:      "Total number of candles fetched from the API",
		}),
		CandleCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "candles",
			Name:      "cache_hits_total",
			Help:      "Total number of candle cache hits",
		}),
		CandleCacheMiss: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "candles",
			Name:      "cache_misses_total",
			Help:      "Total number of candle cache misses",
		}),
		CandleGapsFound: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "candles",
			Name:      "gaps_found_total",
			Help:      "Total number of candle gaps found by policy outcome",
		}, []string{"policy"}),

		AlertsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "alerts_ingested_total",
			Help:      "Total number of new alerts ingested",
		}),
		AlertsDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "alerts_duplicate_total",
			Help:      "Total number of alerts skipped as duplicates",
		}),
		AlertsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "alerts_rejected_total",
			Help:      "Total number of alerts rejected by reason",
		}, []string{"reason"}),
		CandlesBackfills: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "candle_backfills_total",
			Help:      "Total number of candle backfill ranges completed",
		}),

		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "experiment",
			Name:      "runs_total",
			Help:      "Total number of experiment runs by status",
		}, []string{"status"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "experiment",
			Name:      "run_duration_seconds",
			Help:      "Experiment run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		AlertsSimulated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "experiment",
			Name:      "alerts_simulated_total",
			Help:      "Total number of alerts simulated",
		}),
		ReplaysVerified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "experiment",
			Name:      "replays_verified_total",
			Help:      "Total number of replay verifications by result",
		}, []string{"result"}),

		ArtifactWrites: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "artifact",
			Name:      "writes_total",
			Help:      "Total number of artifacts written",
		}),
		ArtifactDedups: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "artifact",
			Name:      "dedups_total",
			Help:      "Total number of artifact writes deduplicated by content hash",
		}),
		ArtifactBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "artifact",
			Name:      "bytes_total",
			Help:      "Total artifact bytes written",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordAPICall records one finished API call.
func RecordAPICall(endpoint, outcome string, seconds float64) {
	DefaultMetrics.APICalls.WithLabelValues(endpoint, outcome).Inc()
	DefaultMetrics.APICallLatency.WithLabelValues(endpoint).Observe(seconds)
}

// RecordAPIRetry increments the retry counter.
func RecordAPIRetry() {
	DefaultMetrics.APIRetries.Inc()
}

// RecordCacheHit increments the candle cache hit counter.
func RecordCacheHit() {
	DefaultMetrics.CandleCacheHits.Inc()
}

// RecordCacheMiss increments the candle cache miss counter.
func RecordCacheMiss() {
	DefaultMetrics.CandleCacheMiss.Inc()
}

// RecordGap records a detected candle gap under the active policy.
func RecordGap(policy string) {
	DefaultMetrics.CandleGapsFound.WithLabelValues(policy).Inc()
}

// RecordAlertIngested counts one ingested or duplicate alert.
func RecordAlertIngested(inserted bool) {
	if inserted {
		DefaultMetrics.AlertsIngested.Inc()
	} else {
		DefaultMetrics.AlertsDuplicate.Inc()
	}
}

// RecordAlertRejected counts one rejected alert by reason.
func RecordAlertRejected(reason string) {
	DefaultMetrics.AlertsRejected.WithLabelValues(reason).Inc()
}

// RecordRun records a finished run with its terminal status.
func RecordRun(status string, durationSeconds float64) {
	DefaultMetrics.RunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.RunDuration.Observe(durationSeconds)
}

// RecordArtifactWrite records an artifact write or dedup.
func RecordArtifactWrite(bytes int, deduplicated bool) {
	if deduplicated {
		DefaultMetrics.ArtifactDedups.Inc()
		return
	}
	DefaultMetrics.ArtifactWrites.Inc()
	DefaultMetrics.ArtifactBytes.Add(float64(bytes))
}
