// Package metrics exposes Prometheus collectors for the sync pipeline and
// the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	syncTotal        *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	upstreamDuration prometheus.Histogram
	recordsInserted  prometheus.Counter
	storeErrors      *prometheus.CounterVec
	refreshJobs      *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		syncTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zipsales_sync_total",
				Help: "Zipcode synchronizations by outcome",
			},
			[]string{"outcome"},
		),
		upstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zipsales_upstream_requests_total",
				Help: "Requests sent to the sales data provider",
			},
			[]string{"result"},
		),
		upstreamDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "zipsales_upstream_request_duration_seconds",
				Help:    "Latency of sales data provider requests",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		recordsInserted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "zipsales_records_inserted_total",
				Help: "Sale records newly inserted by synchronizations",
			},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zipsales_store_errors_total",
				Help: "Failed store operations",
			},
			[]string{"op"},
		),
		refreshJobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zipsales_refresh_jobs_total",
				Help: "Background refresh jobs by result",
			},
			[]string{"result"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zipsales_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zipsales_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
	}
}

// ObserveSync counts a finished synchronization. outcome is one of
// cache_fresh, full_fetch, incremental_fetch or failed.
func (m *Metrics) ObserveSync(outcome string, inserted int) {
	if m == nil {
		return
	}
	m.syncTotal.WithLabelValues(outcome).Inc()
	if inserted > 0 {
		m.recordsInserted.Add(float64(inserted))
	}
}

func (m *Metrics) ObserveUpstream(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(result).Inc()
	m.upstreamDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) RefreshJob(result string) {
	if m == nil {
		return
	}
	m.refreshJobs.WithLabelValues(result).Inc()
}

// Middleware records request counts and latencies per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
