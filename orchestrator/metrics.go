package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the fetch pipeline.
type Metrics struct {
	Registry        *prometheus.Registry
	FetchesTotal    *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	ItemsTotal      prometheus.Counter
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	FieldsExtracted *prometheus.CounterVec
	PatternFlags    prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	fetches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricetrack_fetches_total",
			Help: "Total fetch attempts issued by the orchestrator.",
		},
		[]string{"phase"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricetrack_fetch_duration_seconds",
			Help:    "HTTP fetch latency per attempt.",
			Buckets: prometheus.DefBuckets,
		},
	)
	items := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricetrack_items_processed_total",
			Help: "Total items run through the fetch pipeline.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricetrack_retries_total",
			Help: "Total retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricetrack_errors_total",
			Help: "Total terminal item failures by kind.",
		},
		[]string{"kind"},
	)
	fields := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricetrack_fields_extracted_total",
			Help: "Total fields successfully extracted, by field and strategy.",
		},
		[]string{"field", "strategy"},
	)
	flags := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricetrack_pattern_flags_total",
			Help: "Total pattern health flags raised.",
		},
	)

	registry.MustRegister(fetches, fetchDuration, items, retries, errorsTotal, fields, flags)

	return &Metrics{
		Registry:        registry,
		FetchesTotal:    fetches,
		FetchDuration:   fetchDuration,
		ItemsTotal:      items,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		FieldsExtracted: fields,
		PatternFlags:    flags,
	}
}

// IncFetch increments the fetches counter for a phase label.
func (m *Metrics) IncFetch(phase string) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records one fetch attempt's latency.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// IncItems increments the processed items counter.
func (m *Metrics) IncItems() {
	if m == nil {
		return
	}
	m.ItemsTotal.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a kind label.
func (m *Metrics) IncError(kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}

// IncField increments the extracted fields counter.
func (m *Metrics) IncField(field, strategy string) {
	if m == nil {
		return
	}
	m.FieldsExtracted.WithLabelValues(field, strategy).Inc()
}

// IncFlag increments the pattern health flag counter.
func (m *Metrics) IncFlag() {
	if m == nil {
		return
	}
	m.PatternFlags.Inc()
}
