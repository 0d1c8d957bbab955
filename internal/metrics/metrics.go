// Package metrics exposes Prometheus collectors for the binder service.
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
	binderFetchesTotal           *prometheus.CounterVec
	binderRateLimitDelaysSeconds prometheus.Histogram
	binderJobsTotal              *prometheus.CounterVec
	binderPostsTotal             *prometheus.CounterVec
	binderImagesEmbeddedTotal    prometheus.Counter
	binderActiveJobs             prometheus.Gauge
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		binderFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "binder_fetches_total",
				Help: "Total remote fetches, labeled by kind (archive, article, image) and status.",
			},
			[]string{"kind", "status"},
		)

		binderRateLimitDelaysSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "binder_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit backoff wait durations.",
				Buckets: []float64{1, 2, 4, 8, 16},
			},
		)

		binderJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "binder_jobs_total",
				Help: "Total conversion jobs finished, labeled by terminal status.",
			},
			[]string{"status"},
		)

		binderPostsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "binder_posts_total",
				Help: "Total posts processed, labeled by outcome (assembled, skipped).",
			},
			[]string{"outcome"},
		)

		binderImagesEmbeddedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "binder_images_embedded_total",
				Help: "Total images embedded into assembled documents.",
			},
		)

		binderActiveJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "binder_active_jobs",
				Help: "Number of jobs currently running.",
			},
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
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch increments the fetch counter for the given kind and status code.
func ObserveFetch(kind string, statusCode int) {
	Init()
	binderFetchesTotal.WithLabelValues(kind, strconv.Itoa(statusCode)).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit backoff wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	binderRateLimitDelaysSeconds.Observe(duration.Seconds())
}

// ObserveJob increments the job counter for the given terminal status.
func ObserveJob(status string) {
	Init()
	binderJobsTotal.WithLabelValues(status).Inc()
}

// ObservePost increments the per-post outcome counter.
func ObservePost(outcome string) {
	Init()
	binderPostsTotal.WithLabelValues(outcome).Inc()
}

// AddImagesEmbedded adds to the embedded image counter.
func AddImagesEmbedded(n int) {
	Init()
	binderImagesEmbeddedTotal.Add(float64(n))
}

// IncActiveJobs increments the running jobs gauge.
func IncActiveJobs() {
	Init()
	binderActiveJobs.Inc()
}

// DecActiveJobs decrements the running jobs gauge.
func DecActiveJobs() {
	Init()
	binderActiveJobs.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
