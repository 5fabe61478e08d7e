package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coah80/pastvoices/internal/config"
)

type Metrics interface {
	IncRequestsTotal(route string, status int)
	ObserveRequestDuration(route string, duration time.Duration)
	IncUploads(kind string)
	IncOptimizations(result string)
	AddBytesReclaimed(n int64)
	IncCacheHits()
	IncCacheMisses()

	TaskEnqueued(kind string)
	TaskFinished(kind string, status string, took time.Duration)
	QueueDepth(n int)

	// Handler serves the scrape endpoint; nil when metrics are disabled.
	Handler() http.Handler
}

type provider struct {
	gatherer        prometheus.Gatherer
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	uploads         *prometheus.CounterVec
	optimizations   *prometheus.CounterVec
	bytesReclaimed  prometheus.Counter
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	tasksEnqueued   *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	queueDepth      prometheus.Gauge
}

// New registers the collectors on reg, or returns a no-op implementation
// when metrics are disabled. A nil reg uses the default registry.
func New(cfg config.MetricsConfig, reg *prometheus.Registry) Metrics {
	if !cfg.Enabled {
		return noop{}
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	f := promauto.With(registerer)

	return &provider{
		gatherer: gatherer,
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pastvoices_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "status"}),

		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pastvoices_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pastvoices_uploads_total",
			Help: "Stored uploads by kind",
		}, []string{"kind"}),

		optimizations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pastvoices_optimizations_total",
			Help: "Video optimizations by result",
		}, []string{"result"}),

		bytesReclaimed: f.NewCounter(prometheus.CounterOpts{
			Name: "pastvoices_cleanup_reclaimed_bytes_total",
			Help: "Bytes deleted by storage cleanup",
		}),

		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "pastvoices_cache_hits_total",
			Help: "Total number of cache hits",
		}),

		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "pastvoices_cache_misses_total",
			Help: "Total number of cache misses",
		}),

		tasksEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pastvoices_tasks_enqueued_total",
			Help: "Background tasks enqueued by kind",
		}, []string{"kind"}),

		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pastvoices_task_duration_seconds",
			Help:    "Background task run time by kind and final status",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"kind", "status"}),

		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "pastvoices_task_queue_depth",
			Help: "Tasks queued or running",
		}),
	}
}

func (m *provider) IncRequestsTotal(route string, status int) {
	m.requestsTotal.WithLabelValues(route, httpStatusBucket(status)).Inc()
}

func (m *provider) ObserveRequestDuration(route string, duration time.Duration) {
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *provider) IncUploads(kind string) {
	m.uploads.WithLabelValues(kind).Inc()
}

func (m *provider) IncOptimizations(result string) {
	m.optimizations.WithLabelValues(result).Inc()
}

func (m *provider) AddBytesReclaimed(n int64) {
	if n > 0 {
		m.bytesReclaimed.Add(float64(n))
	}
}

func (m *provider) IncCacheHits() {
	m.cacheHits.Inc()
}

func (m *provider) IncCacheMisses() {
	m.cacheMisses.Inc()
}

func (m *provider) TaskEnqueued(kind string) {
	m.tasksEnqueued.WithLabelValues(kind).Inc()
}

func (m *provider) TaskFinished(kind, status string, took time.Duration) {
	m.taskDuration.WithLabelValues(kind, status).Observe(took.Seconds())
}

func (m *provider) QueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

func (m *provider) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// noop is used when metrics are disabled.
type noop struct{}

func (noop) IncRequestsTotal(string, int)                 {}
func (noop) ObserveRequestDuration(string, time.Duration) {}
func (noop) IncUploads(string)                            {}
func (noop) IncOptimizations(string)                      {}
func (noop) AddBytesReclaimed(int64)                      {}
func (noop) IncCacheHits()                                {}
func (noop) IncCacheMisses()                              {}
func (noop) TaskEnqueued(string)                          {}
func (noop) TaskFinished(string, string, time.Duration)   {}
func (noop) QueueDepth(int)                               {}
func (noop) Handler() http.Handler                        { return nil }
