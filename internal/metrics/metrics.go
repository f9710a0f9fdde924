// Package metrics exposes Prometheus counters for crawl observability.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "estatecrawl"

// Metrics holds all crawler Prometheus metrics.
type Metrics struct {
	PagesFetched     *prometheus.CounterVec
	ListingsScraped  *prometheus.CounterVec
	ExtractFailures  *prometheus.CounterVec
	BlockedResponses prometheus.Counter
	SessionsRecycled prometheus.Counter
	SoldMarked       *prometheus.CounterVec
	ActiveWorkers    prometheus.Gauge

	registry *prometheus.Registry
}

// New builds a Metrics set on its own registry, so parallel test runs
// never collide on the default registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		PagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Result pages fetched during link discovery.",
		}, []string{"category"}),
		ListingsScraped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_scraped_total",
			Help:      "Detail pages successfully extracted and stored.",
		}, []string{"category"}),
		ExtractFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extract_failures_total",
			Help:      "Detail pages skipped after exhausting retries.",
		}, []string{"category"}),
		BlockedResponses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocked_responses_total",
			Help:      "Responses matching a blocking indicator.",
		}),
		SessionsRecycled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_recycled_total",
			Help:      "Browsing sessions torn down for reaching their use limit.",
		}),
		SoldMarked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sold_marked_total",
			Help:      "Listings marked inactive after leaving the market.",
		}, []string{"category"}),
		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workers",
			Help:      "Detail workers currently running.",
		}),
		registry: reg,
	}
}

// Handler serves the metrics registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
