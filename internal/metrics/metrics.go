// Package metrics exposes Prometheus collectors for the tracker service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesFetchedTotal          *prometheus.CounterVec
	proxyAttemptsTotal         *prometheus.CounterVec
	reviewsExtractedTotal      *prometheus.CounterVec
	reviewsMergedTotal         *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	throttleDelaySeconds       prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugwatch_pages_fetched_total",
				Help: "Total feed pages fetched, labeled by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		)

		proxyAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugwatch_proxy_attempts_total",
				Help: "Total proxy route attempts, labeled by route index and outcome.",
			},
			[]string{"route", "outcome"},
		)

		reviewsExtractedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugwatch_reviews_extracted_total",
				Help: "Total reviews that passed extraction and normalization, labeled by mode.",
			},
			[]string{"mode"},
		)

		reviewsMergedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugwatch_reviews_merged_total",
				Help: "Total reviews upserted into plugin records, labeled by slug.",
			},
			[]string{"slug"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugwatch_runs_total",
				Help: "Total refresh runs, labeled by final status.",
			},
			[]string{"status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		throttleDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "plugwatch_throttle_delay_seconds",
				Help:    "Histogram of inter-request throttle wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage increments the page fetch counter.
func ObservePage(mode string, outcome string) {
	if pagesFetchedTotal == nil {
		return
	}
	pagesFetchedTotal.WithLabelValues(mode, outcome).Inc()
}

// ObserveProxyAttempt increments the proxy attempt counter.
func ObserveProxyAttempt(route int, outcome string) {
	if proxyAttemptsTotal == nil {
		return
	}
	proxyAttemptsTotal.WithLabelValues(strconv.Itoa(route), outcome).Inc()
}

// ObserveExtracted adds accepted reviews for an extraction mode.
func ObserveExtracted(mode string, count int) {
	if reviewsExtractedTotal == nil || count <= 0 {
		return
	}
	reviewsExtractedTotal.WithLabelValues(mode).Add(float64(count))
}

// ObserveMerged adds upserted reviews for a slug.
func ObserveMerged(slug string, count int) {
	if reviewsMergedTotal == nil || count <= 0 {
		return
	}
	reviewsMergedTotal.WithLabelValues(slug).Add(float64(count))
}

// ObserveRun increments the run counter for the given final status.
func ObserveRun(status string) {
	if runsTotal == nil {
		return
	}
	runsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveThrottleDelay records the duration of an inter-request wait.
func ObserveThrottleDelay(duration time.Duration) {
	if throttleDelaySeconds == nil {
		return
	}
	throttleDelaySeconds.Observe(duration.Seconds())
}
