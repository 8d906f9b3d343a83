package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ItemsScrapedTotal prometheus.Counter
	ItemsDroppedTotal *prometheus.CounterVec
	OfferCacheHits    prometheus.Counter
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper, by crawl stage.",
		},
		[]string{"stage"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	itemsScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_items_scraped_total",
			Help: "Total number of priced products sent to the pipeline.",
		},
	)
	itemsDropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_items_dropped_total",
			Help: "Products abandoned before pricing completed, by reason.",
		},
		[]string{"reason"},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_offer_cache_hits_total",
			Help: "Products priced from a cached offer response.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, itemsScraped, itemsDropped, cacheHits, retries, errorsTotal)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		ItemsScrapedTotal: itemsScraped,
		ItemsDroppedTotal: itemsDropped,
		OfferCacheHits:    cacheHits,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(stage string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(stage).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// IncItems increments the items scraped counter.
func (m *Metrics) IncItems() {
	if m == nil {
		return
	}
	m.ItemsScrapedTotal.Inc()
}

// IncDropped counts an item dropped before emission, by reason.
func (m *Metrics) IncDropped(reason string) {
	if m == nil {
		return
	}
	m.ItemsDroppedTotal.WithLabelValues(reason).Inc()
}

// IncOfferCacheHit counts an item priced from a cached offer response.
func (m *Metrics) IncOfferCacheHit() {
	if m == nil {
		return
	}
	m.OfferCacheHits.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
