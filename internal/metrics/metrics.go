// Package metrics exposes Prometheus collectors for the pricing ledger.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rwaoracle"

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	predictionsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "predictions_submitted_total",
			Help:      "Predictions submitted by the oracle.",
		},
		[]string{"model_version"},
	)

	predictionsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "predictions_resolved_total",
			Help:      "Predictions moved to a terminal status.",
		},
		[]string{"status"},
	)

	acceptFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "accept_failures_total",
			Help:      "Acceptance attempts that failed, by step.",
		},
		[]string{"step"},
	)

	ledgerAppends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "appends_total",
			Help:      "Price history entries appended, by source kind.",
		},
		[]string{"kind"},
	)

	valuationReconciled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "valuation",
			Name:      "reconciled_total",
			Help:      "Cached valuations rewritten from the latest ledger entry.",
		},
	)

	fetchOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sources",
			Name:      "fetch_outcomes_total",
			Help:      "Fetch outcomes reported by the scheduler.",
		},
		[]string{"source", "success"},
	)

	sourceReliability = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sources",
			Name:      "reliability",
			Help:      "Current reliability score per data source.",
		},
		[]string{"source"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)
)

func init() {
	Registry.MustRegister(
		predictionsSubmitted,
		predictionsResolved,
		acceptFailures,
		ledgerAppends,
		valuationReconciled,
		fetchOutcomes,
		sourceReliability,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered collectors.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// PredictionSubmitted counts a new pending prediction.
func PredictionSubmitted(modelVersion string) {
	predictionsSubmitted.WithLabelValues(modelVersion).Inc()
}

// PredictionResolved counts a transition into a terminal status.
func PredictionResolved(status string) {
	predictionsResolved.WithLabelValues(status).Inc()
}

// AcceptFailed counts an acceptance that stopped at step.
func AcceptFailed(step string) {
	acceptFailures.WithLabelValues(step).Inc()
}

// LedgerAppended counts an appended history entry.
func LedgerAppended(kind string) {
	ledgerAppends.WithLabelValues(kind).Inc()
}

// ValuationReconciled counts a cache rewrite from the ledger.
func ValuationReconciled() {
	valuationReconciled.Inc()
}

// FetchOutcome records a scheduler report and the resulting reliability.
func FetchOutcome(source string, success bool, reliability float64) {
	fetchOutcomes.WithLabelValues(source, strconv.FormatBool(success)).Inc()
	sourceReliability.WithLabelValues(source).Set(reliability)
}

// InstrumentHandler wraps next with request count and latency collection.
// Routes are labelled by the matched ServeMux pattern to bound cardinality.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
