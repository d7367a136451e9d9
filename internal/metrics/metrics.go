// Package metrics owns the prometheus collectors of the service. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	exportTotal     *prometheus.CounterVec
	exportRows      prometheus.Histogram
	exportBytes     prometheus.Histogram
	storageDuration *prometheus.HistogramVec
}

// New registers all collectors, plus the Go and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		exportTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "csv_exports_total",
			Help: "CSV exports by outcome",
		}, []string{"outcome"}),
		exportRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "csv_export_rows",
			Help:    "Data rows per uploaded export",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000},
		}),
		exportBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "csv_export_bytes",
			Help:    "Size of uploaded CSV documents",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}),
		storageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storage_operation_duration_seconds",
			Help:    "Latency of object storage calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "result"}),
	}
	registry.MustRegister(
		m.requestDuration,
		m.requestTotal,
		m.exportTotal,
		m.exportRows,
		m.exportBytes,
		m.storageDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(d.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
}

// ObserveExport records the outcome of one export run. rows and size are only
// observed for runs that reached the upload.
func (m *Metrics) ObserveExport(outcome string, rows, size int) {
	if m == nil {
		return
	}
	m.exportTotal.WithLabelValues(outcome).Inc()
	if size > 0 {
		m.exportRows.Observe(float64(rows))
		m.exportBytes.Observe(float64(size))
	}
}

// ObserveStorage records the latency of a Put or Sign call.
func (m *Metrics) ObserveStorage(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.storageDuration.WithLabelValues(operation, result).Observe(d.Seconds())
}
