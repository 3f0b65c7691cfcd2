// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tourist_hub_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tourist_hub_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tourist_hub_api_active_requests",
			Help: "Number of requests currently being served",
		},
	)

	RatingRecomputes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tourist_hub_rating_recomputes_total",
			Help: "Place rating aggregate recomputations by result",
		},
		[]string{"result"}, // ok, not_found, invalid, error
	)

	RatingRecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tourist_hub_rating_recompute_duration_seconds",
			Help:    "Duration of place rating aggregate recomputations",
			Buckets: prometheus.DefBuckets,
		},
	)

	RatingMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tourist_hub_rating_mutations_total",
			Help: "Rating create/update/delete operations by outcome",
		},
		[]string{"operation", "result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tourist_hub_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	UploadedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tourist_hub_uploaded_bytes_total",
			Help: "Bytes of photo uploads accepted",
		},
	)
)

// RecordAPIRequest records one served request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
		return
	}
	APIActiveRequests.Dec()
}

// RecordRecompute records the outcome of one aggregate recomputation.
func RecordRecompute(result string, duration time.Duration) {
	RatingRecomputes.WithLabelValues(result).Inc()
	RatingRecomputeDuration.Observe(duration.Seconds())
}

// RecordRatingMutation records a rating create/update/delete outcome.
func RecordRatingMutation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	RatingMutations.WithLabelValues(operation, result).Inc()
}
