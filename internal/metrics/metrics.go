package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the scraper's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	codesTotal      *prometheus.CounterVec
	fieldFallbacks  *prometheus.CounterVec
	extractDuration prometheus.Histogram
	batchesTotal    prometheus.Counter
	tableRows       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		codesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sku_scraper_codes_total",
				Help: "SKUs processed, by outcome",
			},
			[]string{"result"},
		),
		fieldFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sku_scraper_field_fallbacks_total",
				Help: "Fields that fell back to the not-found placeholder",
			},
			[]string{"field"},
		),
		extractDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sku_scraper_extract_duration_seconds",
				Help:    "Time spent extracting one SKU",
				Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60},
			},
		),
		batchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sku_scraper_batches_total",
				Help: "Batches run",
			},
		),
		tableRows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sku_scraper_table_rows",
				Help: "Rows currently held in the results table",
			},
		),
	}

	m.registry.MustRegister(
		m.codesTotal,
		m.fieldFallbacks,
		m.extractDuration,
		m.batchesTotal,
		m.tableRows,
		collectors.NewGoCollector(),
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) CodeScraped(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.codesTotal.WithLabelValues(result).Inc()
	m.extractDuration.Observe(took.Seconds())
}

func (m *Metrics) FieldFallback(field string) {
	if m == nil {
		return
	}
	m.fieldFallbacks.WithLabelValues(field).Inc()
}

func (m *Metrics) BatchRun() {
	if m == nil {
		return
	}
	m.batchesTotal.Inc()
}

func (m *Metrics) SetTableRows(n int) {
	if m == nil {
		return
	}
	m.tableRows.Set(float64(n))
}
