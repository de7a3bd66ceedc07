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
	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCRetries     *prometheus.CounterVec
	RPCFailures    *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitState *prometheus.GaugeVec
	CircuitTrips *prometheus.CounterVec

	// Scan metrics
	ScansTotal          *prometheus.CounterVec
	ScanDuration        *prometheus.HistogramVec
	AccountsDiscovered  prometheus.Counter
	SignaturesHarvested prometheus.Counter
	TransactionsFetched *prometheus.CounterVec
	TradesFound         *prometheus.CounterVec

	// Pricing metrics
	PriceLookups   *prometheus.CounterVec
	PriceFallbacks *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulScan prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "trade_ledger"
	}

	return &Metrics{
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Total number of retried remote calls by label and error class",
		}, []string{"label", "class"}),
		RPCFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "failures_total",
			Help:      "Total number of remote calls that failed after all attempts",
		}, []string{"label", "class"}),

		CircuitState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "circuit_state",
			Help:      "Circuit breaker state per endpoint (0=closed, 1=open, 2=half-open)",
		}, []string{"endpoint"}),
		CircuitTrips: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "circuit_trips_total",
			Help:      "Total number of transitions into the open state",
		}, []string{"endpoint"}),

		ScansTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "runs_total",
			Help:      "Total number of wallet scans by mode and status",
		}, []string{"mode", "status"}),
		ScanDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Wallet scan duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"mode"}),
		AccountsDiscovered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "accounts_discovered_total",
			Help:      "Total number of token accounts discovered",
		}),
		SignaturesHarvested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "signatures_harvested_total",
			Help:      "Total number of signatures harvested across accounts",
		}),
		TransactionsFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "transactions_fetched_total",
			Help:      "Total number of transaction fetches by outcome",
		}, []string{"outcome"}),
		TradesFound: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "trades_found_total",
			Help:      "Total number of trades classified by direction",
		}, []string{"direction"}),

		PriceLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "lookups_total",
			Help:      "Total number of price and metadata lookups by kind and source",
		}, []string{"kind", "source"}),
		PriceFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricing",
			Name:      "fallbacks_total",
			Help:      "Total number of lookups answered by a default or placeholder",
		}, []string{"kind"}),
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of cache lookups by kind and result",
		}, []string{"kind", "result"}),

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

		LastSuccessfulScan: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_scan_timestamp",
			Help:      "Unix timestamp of last successful scan",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServer returns an HTTP server exposing /metrics and /health on addr.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRPCLatency records the latency of one JSON-RPC round trip.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordRetry increments the retry counter.
func RecordRetry(label, class string) {
	DefaultMetrics.RPCRetries.WithLabelValues(label, class).Inc()
}

// RecordCallFailure increments the exhausted-call counter.
func RecordCallFailure(label, class string) {
	DefaultMetrics.RPCFailures.WithLabelValues(label, class).Inc()
}

// SetCircuitState publishes the numeric breaker state for an endpoint.
func SetCircuitState(endpoint string, state int) {
	DefaultMetrics.CircuitState.WithLabelValues(endpoint).Set(float64(state))
}

// RecordCircuitTrip increments the trips counter for an endpoint.
func RecordCircuitTrip(endpoint string) {
	DefaultMetrics.CircuitTrips.WithLabelValues(endpoint).Inc()
}

// RecordScan records a completed scan.
func RecordScan(mode, status string, duration time.Duration) {
	DefaultMetrics.ScansTotal.WithLabelValues(mode, status).Inc()
	DefaultMetrics.ScanDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if status == "ok" {
		DefaultMetrics.LastSuccessfulScan.SetToCurrentTime()
	}
}

// RecordAccountsDiscovered adds n to the discovered accounts counter.
func RecordAccountsDiscovered(n int) {
	DefaultMetrics.AccountsDiscovered.Add(float64(n))
}

// RecordSignaturesHarvested adds n to the harvested signatures counter.
func RecordSignaturesHarvested(n int) {
	DefaultMetrics.SignaturesHarvested.Add(float64(n))
}

// RecordTransactionFetch increments the fetch counter for an outcome
// (found, missing, skipped, error).
func RecordTransactionFetch(outcome string) {
	DefaultMetrics.TransactionsFetched.WithLabelValues(outcome).Inc()
}

// RecordTrade increments the trades counter for a direction.
func RecordTrade(direction string) {
	DefaultMetrics.TradesFound.WithLabelValues(direction).Inc()
}

// RecordPriceLookup increments the lookup counter.
func RecordPriceLookup(kind, source string) {
	DefaultMetrics.PriceLookups.WithLabelValues(kind, source).Inc()
}

// RecordPriceFallback increments the fallback counter.
func RecordPriceFallback(kind string) {
	DefaultMetrics.PriceFallbacks.WithLabelValues(kind).Inc()
}

// RecordCacheLookup increments the cache lookup counter.
func RecordCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.CacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordDBQuery records the duration of a database operation.
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
