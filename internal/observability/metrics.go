// Package observability provides Prometheus metrics for the application.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"vidgate/pkg/urls"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vidgate"

// Metrics holds all application metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Gateway metrics
	InfoRequests     *prometheus.CounterVec
	Downloads        *prometheus.CounterVec
	DownloadDuration prometheus.Histogram
	StreamedBytes    prometheus.Counter

	// Storage metrics
	WorkspacesInUse   prometheus.Gauge
	CleanupFilesTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Engine metrics
	EngineErrors *prometheus.CounterVec

	// Proxy metrics
	ProxyFailures *prometheus.CounterVec
}

// New creates all application metrics and registers them with reg.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,

		InfoRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "info_requests_total",
			Help:      "Total number of metadata requests by outcome",
		}, []string{"status"}),
		Downloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "downloads_total",
			Help:      "Total number of download requests by mode and outcome",
		}, []string{"mode", "status"}),
		DownloadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "download_duration_seconds",
			Help:      "Histogram of engine fetch duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		StreamedBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "streamed_bytes_total",
			Help:      "Total bytes streamed to clients",
		}),

		WorkspacesInUse: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "workspaces_in_use",
			Help:      "Number of per-request workspaces currently allocated",
		}),
		CleanupFilesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "cleanup_files_total",
			Help:      "Total number of entries removed from the download directory",
		}, []string{"reason"}),

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		EngineErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "errors_total",
			Help:      "Total number of engine errors",
		}, []string{"engine", "op", "error_type"}),

		ProxyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "failures_total",
			Help:      "Total number of proxy failures",
		}, []string{"proxy"}),
	}
}

// NewDefault registers metrics with the global prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}

	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// DownloadTimer returns a function to record fetch duration.
func (m *Metrics) DownloadTimer() func() {
	start := time.Now()

	return func() {
		if m == nil {
			return
		}

		m.DownloadDuration.Observe(time.Since(start).Seconds())
	}
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordInfo records the outcome of a metadata request.
func (m *Metrics) RecordInfo(status string) {
	if m == nil {
		return
	}

	m.InfoRequests.WithLabelValues(status).Inc()
}

// RecordDownload records the outcome of a download request.
func (m *Metrics) RecordDownload(mode, status string) {
	if m == nil {
		return
	}

	m.Downloads.WithLabelValues(mode, status).Inc()
}

// RecordStreamed adds n to the streamed bytes counter.
func (m *Metrics) RecordStreamed(n int64) {
	if m == nil || n <= 0 {
		return
	}

	m.StreamedBytes.Add(float64(n))
}

// WorkspaceAcquired increments the in-use workspace gauge.
func (m *Metrics) WorkspaceAcquired() {
	if m == nil {
		return
	}

	m.WorkspacesInUse.Inc()
}

// WorkspaceReleased decrements the in-use workspace gauge.
func (m *Metrics) WorkspaceReleased() {
	if m == nil {
		return
	}

	m.WorkspacesInUse.Dec()
}

// RecordCleanup records removed download directory entries.
func (m *Metrics) RecordCleanup(reason string, files int) {
	if m == nil {
		return
	}

	m.CleanupFilesTotal.WithLabelValues(reason).Add(float64(files))
}

// RecordEngineError records an engine error.
func (m *Metrics) RecordEngineError(engine, op, errorType string) {
	if m == nil {
		return
	}

	m.EngineErrors.WithLabelValues(engine, op, errorType).Inc()
}

// RecordProxyFailure records a proxy failure. Credentials never reach the label.
func (m *Metrics) RecordProxyFailure(proxy string) {
	if m == nil {
		return
	}

	m.ProxyFailures.WithLabelValues(urls.Redact(proxy)).Inc()
}
