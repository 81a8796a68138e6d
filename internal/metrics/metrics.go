// Package metrics exposes Prometheus collectors for the crawl engine and the
// renderers, plus the HTTP surface that serves them.
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
	linksExcludedTotal         *prometheus.CounterVec
	linksEnqueuedTotal         prometheus.Counter
	batchesTotal               prometheus.Counter
	batchSize                  prometheus.Histogram
	activeVisits               prometheus.Gauge
	rendersTotal               *prometheus.CounterVec
	renderRateLimitDelays      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to
// call multiple times.
func Init() {
	once.Do(func() {
		linksExcludedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "a11ycrawl_links_excluded_total",
				Help: "Discovered links rejected before entering the frontier, labeled by reason.",
			},
			[]string{"reason"},
		)

		linksEnqueuedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "a11ycrawl_links_enqueued_total",
				Help: "Links admitted into the frontier.",
			},
		)

		batchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "a11ycrawl_batches_total",
				Help: "Frontier batches dispatched.",
			},
		)

		batchSize = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "a11ycrawl_batch_size",
				Help:    "Number of targets per dispatched batch.",
				Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16, 32},
			},
		)

		activeVisits = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "a11ycrawl_active_visits",
				Help: "Page visits currently in flight.",
			},
		)

		rendersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "a11ycrawl_renders_total",
				Help: "Page renders for link discovery, labeled by renderer and result.",
			},
			[]string{"renderer", "result"},
		)

		renderRateLimitDelays = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "a11ycrawl_render_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host render limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests to the metrics server, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of metrics server latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname for use as a label value.
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

// ObserveLinkExcluded counts a link rejected by the exclusion policy.
func ObserveLinkExcluded(reason string) {
	Init()
	linksExcludedTotal.WithLabelValues(reason).Inc()
}

// ObserveLinkEnqueued counts a link admitted into the frontier.
func ObserveLinkEnqueued() {
	Init()
	linksEnqueuedTotal.Inc()
}

// ObserveBatch records one dispatched batch of n targets.
func ObserveBatch(n int) {
	Init()
	batchesTotal.Inc()
	batchSize.Observe(float64(n))
}

// IncActiveVisits increments the in-flight visits gauge.
func IncActiveVisits() {
	Init()
	activeVisits.Inc()
}

// DecActiveVisits decrements the in-flight visits gauge.
func DecActiveVisits() {
	Init()
	activeVisits.Dec()
}

// ObserveRender counts a render attempt by renderer name and outcome.
func ObserveRender(renderer string, ok bool) {
	Init()
	result := "success"
	if !ok {
		result = "error"
	}
	rendersTotal.WithLabelValues(renderer, result).Inc()
}

// ObserveRateLimitDelay records the duration of a render rate limit wait.
func ObserveRateLimitDelay(rawURL string, d time.Duration) {
	Init()
	renderRateLimitDelays.WithLabelValues(SanitizeSite(rawURL)).Observe(d.Seconds())
}

// ObserveHTTPRequest records a request served by the metrics server.
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}
