package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "resultblend"

// Metrics contains all Prometheus metrics for resultblend.
type Metrics struct {
	// Staging.
	DocumentsStaged  prometheus.Counter
	StagedBytes      prometheus.Counter
	StagedDocuments  prometheus.Gauge
	DocumentsDrained prometheus.Counter

	// Blends.
	BlendsTotal    *prometheus.CounterVec
	BlendDuration  prometheus.Histogram
	ArtifactBytes  prometheus.Histogram
	LastBlendTime  prometheus.Gauge
	XMLConversions *prometheus.CounterVec

	// Auth.
	AuthRejectionsTotal *prometheus.CounterVec

	// HTTP.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// WebSocket.
	WebSocketClients prometheus.Gauge

	// Build info.
	BuildInfo *prometheus.GaugeVec
}

// New creates a new Metrics instance and registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		// Staging.
		DocumentsStaged: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_staged_total",
				Help:      "Total number of documents uploaded to the staging store",
			},
		),
		StagedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "staged_bytes_total",
				Help:      "Total number of content bytes uploaded to the staging store",
			},
		),
		StagedDocuments: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "staged_documents",
				Help:      "Current number of documents awaiting a blend",
			},
		),
		DocumentsDrained: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_drained_total",
				Help:      "Total number of documents drained into blends",
			},
		),

		// Blends.
		BlendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "blends_total",
				Help:      "Total number of blend cycles by outcome",
			},
			[]string{"status"},
		),
		BlendDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "blend_duration_seconds",
				Help:      "Duration of blend and export in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ArtifactBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "artifact_bytes",
				Help:      "Size of exported spreadsheet artifacts",
				Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),
		LastBlendTime: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_blend_timestamp",
				Help:      "Timestamp of the last blend cycle",
			},
		),
		XMLConversions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "xml_conversions_total",
				Help:      "Total number of XML to text conversions by outcome",
			},
			[]string{"status"},
		),

		// Auth.
		AuthRejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_rejections_total",
				Help:      "Total number of requests rejected by the API key check",
			},
			[]string{"reason"},
		),

		// HTTP.
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// WebSocket.
		WebSocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_clients",
				Help:      "Number of connected websocket clients",
			},
		),

		// Build info.
		BuildInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_info",
				Help:      "Build information",
			},
			[]string{"version", "commit", "date"},
		),
	}

	return m
}

// SetBuildInfo sets the build info metric.
func (m *Metrics) SetBuildInfo(version, commit, date string) {
	m.BuildInfo.WithLabelValues(version, commit, date).Set(1)
}

// RecordDocumentStaged records an upload of size bytes.
func (m *Metrics) RecordDocumentStaged(size int) {
	m.DocumentsStaged.Inc()
	m.StagedBytes.Add(float64(size))
}

// SetStagedDocuments sets the staged documents gauge.
func (m *Metrics) SetStagedDocuments(n int) {
	m.StagedDocuments.Set(float64(n))
}

// RecordDrain records a drain of n documents.
func (m *Metrics) RecordDrain(n int) {
	m.DocumentsDrained.Add(float64(n))
}

// RecordBlend records a finished blend cycle.
func (m *Metrics) RecordBlend(status string, duration float64, artifactBytes int) {
	m.BlendsTotal.WithLabelValues(status).Inc()
	m.BlendDuration.Observe(duration)
	m.LastBlendTime.SetToCurrentTime()

	if artifactBytes > 0 {
		m.ArtifactBytes.Observe(float64(artifactBytes))
	}
}

// RecordConversion records an XML conversion outcome.
func (m *Metrics) RecordConversion(status string) {
	m.XMLConversions.WithLabelValues(status).Inc()
}

// RecordAuthRejection records a rejected request.
func (m *Metrics) RecordAuthRejection(reason string) {
	m.AuthRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// SetWebSocketClients sets the websocket clients gauge.
func (m *Metrics) SetWebSocketClients(n int) {
	m.WebSocketClients.Set(float64(n))
}
