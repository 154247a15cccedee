// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scraperPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitanime_scraper_pages_total",
			Help: "Total catalog/listing pages fetched, labeled by collection and outcome.",
		},
		[]string{"collection", "outcome"},
	)

	scraperRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitanime_scraper_records_total",
			Help: "Total records extracted, labeled by record kind.",
		},
		[]string{"kind"},
	)

	scraperFetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitanime_scraper_fetch_errors_total",
			Help: "Total fetch failures, labeled by error kind.",
		},
		[]string{"kind"},
	)

	scraperRunDurationSecs = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gitanime_scraper_run_duration_seconds",
			Help:    "Histogram of scrape run durations, labeled by run type.",
			Buckets: []float64{1, 5, 15, 60, 180, 600, 1800},
		},
		[]string{"run"},
	)

	videoStrategyHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitanime_video_strategy_hits_total",
			Help: "Video URL resolutions, labeled by the strategy that succeeded.",
		},
		[]string{"strategy"},
	)

	httpRequestDurationSecs = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gitanime_http_request_duration_seconds",
			Help:    "Histogram of API request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"method", "route"},
	)

	scraperInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gitanime_scraper_in_flight",
			Help: "1 while a full scrape pass is running.",
		},
	)

	scraperSkippedRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitanime_scraper_skipped_runs_total",
			Help: "Scrape triggers skipped because a pass was already in flight.",
		},
	)

	scraperDocumentsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitanime_store_documents_written_total",
			Help: "Documents persisted to the store, labeled by document name.",
		},
		[]string{"document"},
	)
)

// SanitizeSite extracts a lowercase hostname from a URL for labels.
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

// ObservePage increments the page counter for a collection walk.
func ObservePage(collection, outcome string) {
	scraperPagesTotal.WithLabelValues(collection, outcome).Inc()
}

// ObserveRecords adds extracted record counts for a record kind.
func ObserveRecords(kind string, n int) {
	if n > 0 {
		scraperRecordsTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// ObserveFetchError increments the fetch error counter for an error kind.
func ObserveFetchError(kind string) {
	scraperFetchErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveRun records the duration of a scrape run.
func ObserveRun(run string, d time.Duration) {
	scraperRunDurationSecs.WithLabelValues(run).Observe(d.Seconds())
}

// ObserveVideoStrategy records which extraction strategy resolved a video.
func ObserveVideoStrategy(strategy string) {
	videoStrategyHitsTotal.WithLabelValues(strategy).Inc()
}

// ObserveHTTPRequest records an API request latency.
func ObserveHTTPRequest(method, route string, duration time.Duration) {
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetInFlight flips the in-flight scrape gauge.
func SetInFlight(running bool) {
	if running {
		scraperInFlight.Set(1)
		return
	}
	scraperInFlight.Set(0)
}

// ObserveSkippedRun counts a trigger refused by the in-flight guard.
func ObserveSkippedRun() {
	scraperSkippedRunsTotal.Inc()
}

// ObserveDocumentWrite counts a persisted document.
func ObserveDocumentWrite(document string) {
	scraperDocumentsWritten.WithLabelValues(document).Inc()
}
