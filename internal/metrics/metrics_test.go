package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.CodeScraped("ok", 2*time.Second)
	m.CodeScraped("ok", time.Second)
	m.CodeScraped("error", time.Second)
	m.FieldFallback("price")
	m.BatchRun()
	m.SetTableRows(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.codesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.codesTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fieldFallbacks.WithLabelValues("price")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchesTotal))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.tableRows))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.CodeScraped("ok", time.Second)
		m.FieldFallback("stock")
		m.BatchRun()
		m.SetTableRows(1)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.BatchRun()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sku_scraper_batches_total 1")
}
