package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce       sync.Once
	apiRequestsTotal   *prometheus.CounterVec
	apiLatencySeconds  *prometheus.HistogramVec
	apiErrorsTotal     *prometheus.CounterVec
	syncRunsTotal      *prometheus.CounterVec
	syncDurationSecs   *prometheus.HistogramVec
	attemptsGraded     *prometheus.CounterVec
	manualReviewQueued prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors for the API
// and the sync/grading pipelines.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		syncRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "template_sync_runs_total",
			Help: "Template sync runs per subject group, by result.",
		}, []string{"result"})

		syncDurationSecs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "template_sync_duration_seconds",
			Help:    "Duration of template sync runs.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"scope"})

		attemptsGraded = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_attempts_graded_total",
			Help: "Submitted test attempts graded automatically, by outcome.",
		}, []string{"outcome"})

		manualReviewQueued = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "answers_manual_review_total",
			Help: "Open answers that could not be auto-scored and await review.",
		})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			syncRunsTotal, syncDurationSecs,
			attemptsGraded, manualReviewQueued,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// SyncRuns exposes the counter for template sync runs.
func SyncRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return syncRunsTotal
}

// SyncDuration exposes the duration histogram for template sync runs.
func SyncDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return syncDurationSecs
}

// AttemptsGraded exposes the counter for graded attempts.
func AttemptsGraded() *prometheus.CounterVec {
	RegisterMetrics()
	return attemptsGraded
}

// ManualReviewQueued exposes the counter for answers routed to manual review.
func ManualReviewQueued() prometheus.Counter {
	RegisterMetrics()
	return manualReviewQueued
}
