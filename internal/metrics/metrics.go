// Package metrics exposes Prometheus collectors for the capture service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	capturesTotal              *prometheus.CounterVec
	regionSourceTotal          *prometheus.CounterVec
	captureDurationSeconds     *prometheus.HistogramVec
	batchDurationSeconds       prometheus.Histogram
	batchesInFlight            prometheus.Gauge
	exportsTotal               *prometheus.CounterVec
	pacingDelaySeconds         *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		capturesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blogshot_captures_total",
				Help: "Total number of items captured, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		regionSourceTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blogshot_region_source_total",
				Help: "Content region detections, labeled by the heuristic that resolved them.",
			},
			[]string{"source"},
		)

		captureDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blogshot_capture_duration_seconds",
				Help:    "Histogram of per-item capture latencies, labeled by status.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
			},
			[]string{"status"},
		)

		batchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "blogshot_batch_duration_seconds",
				Help:    "Histogram of whole-batch capture latencies.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		batchesInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "blogshot_batches_in_flight",
				Help: "Number of capture batches currently holding a browser.",
			},
		)

		exportsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blogshot_exports_total",
				Help: "Total number of report exports, labeled by status.",
			},
			[]string{"status"},
		)

		pacingDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blogshot_pacing_delay_seconds",
				Help:    "Histogram of per-host pacing waits before navigation.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCapture records one item outcome and its latency.
func ObserveCapture(site string, success bool, duration time.Duration) {
	Init()
	status := "failure"
	if success {
		status = "success"
	}
	capturesTotal.WithLabelValues(SanitizeSite(site), status).Inc()
	captureDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveRegionSource counts which heuristic resolved a region.
func ObserveRegionSource(source string) {
	Init()
	regionSourceTotal.WithLabelValues(source).Inc()
}

// ObserveBatch records the duration of a finished batch.
func ObserveBatch(duration time.Duration) {
	Init()
	batchDurationSeconds.Observe(duration.Seconds())
}

// IncBatchesInFlight increments the in-flight batch gauge.
func IncBatchesInFlight() {
	Init()
	batchesInFlight.Inc()
}

// DecBatchesInFlight decrements the in-flight batch gauge.
func DecBatchesInFlight() {
	Init()
	batchesInFlight.Dec()
}

// ObserveExport counts a report export attempt.
func ObserveExport(success bool) {
	Init()
	status := "failure"
	if success {
		status = "success"
	}
	exportsTotal.WithLabelValues(status).Inc()
}

// ObservePacingDelay records the duration of a pacing wait.
func ObservePacingDelay(site string, duration time.Duration) {
	Init()
	pacingDelaySeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
