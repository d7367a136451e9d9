package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveHTTPRequest(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest("POST", "/api/save-csv", 200, 15*time.Millisecond)
	m.ObserveHTTPRequest("POST", "/api/save-csv", 200, 5*time.Millisecond)
	m.ObserveHTTPRequest("GET", "/api/save-csv", 405, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestTotal.WithLabelValues("POST", "/api/save-csv", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestTotal.WithLabelValues("GET", "/api/save-csv", "405")))
}

func TestMetrics_ObserveExport(t *testing.T) {
	m := New()
	m.ObserveExport("ok", 3, 120)
	m.ObserveExport("validation_error", 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.exportTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exportTotal.WithLabelValues("validation_error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.exportRows))
}

func TestMetrics_ObserveStorage(t *testing.T) {
	m := New()
	m.ObserveStorage("put", nil, time.Millisecond)
	m.ObserveStorage("sign", errors.New("boom"), time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(m.storageDuration))
}

func TestMetrics_HandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveExport("ok", 1, 10)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `csv_exports_total{outcome="ok"} 1`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
		m.ObserveExport("ok", 1, 1)
		m.ObserveStorage("put", nil, time.Millisecond)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
