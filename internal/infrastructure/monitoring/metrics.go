package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dispatch outcomes
const (
	DispatchRouted   = "routed"
	DispatchProxied  = "proxied"
	DispatchRejected = "rejected"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	DispatchTotal      *prometheus.CounterVec
	ProcessedResources *prometheus.CounterVec
	FileDownloads      prometheus.Counter
	CapabilityFailures *prometheus.CounterVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsOpened  prometheus.Counter
	ServiceMessages *prometheus.CounterVec

	// Destination metrics
	DestinationDuration *prometheus.HistogramVec
	DestinationErrors   *prometheus.CounterVec

	startTime time.Time

	// Snapshot for the JSON admin API
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for the JSON admin API
type Snapshot struct {
	TotalRequests     int64   `json:"totalRequests"`
	TotalErrors       int64   `json:"totalErrors"`
	ProxiedRequests   int64   `json:"proxiedRequests"`
	RejectedRequests  int64   `json:"rejectedRequests"`
	ActiveSessions    int64   `json:"activeSessions"`
	DestinationErrors int64   `json:"destinationErrors"`
	AvgLatencySeconds float64 `json:"avgLatencySeconds"`
	UptimeSeconds     float64 `json:"uptimeSeconds"`

	totalDuration float64
}

// NewMetrics creates a metrics collector on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxy_http_requests_total",
				Help: "Total number of inbound HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "proxy_http_request_duration_seconds",
				Help:    "Inbound HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),
		DispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxy_dispatch_total",
				Help: "Requests by dispatch outcome",
			},
			[]string{"outcome"},
		),
		ProcessedResources: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxy_processed_resources_total",
				Help: "Destination resources rewritten by the proxy",
			},
			[]string{"kind"},
		),
		FileDownloads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "proxy_file_downloads_total",
				Help: "Attachments reported to session capabilities",
			},
		),
		CapabilityFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxy_capability_failures_total",
				Help: "Session capability hooks that failed or are not implemented",
			},
			[]string{"capability", "reason"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "proxy_sessions_active",
				Help: "Number of open sessions",
			},
		),
		SessionsOpened: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "proxy_sessions_opened_total",
				Help: "Total number of sessions opened",
			},
		),
		ServiceMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxy_service_messages_total",
				Help: "Service messages by command and status",
			},
			[]string{"cmd", "status"},
		),
		DestinationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "proxy_destination_duration_seconds",
				Help:    "Destination round-trip duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"status_class"},
		),
		DestinationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxy_destination_errors_total",
				Help: "Destination requests that failed before a response",
			},
			[]string{"reason"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.DispatchTotal,
		m.ProcessedResources,
		m.FileDownloads,
		m.CapabilityFailures,
		m.SessionsActive,
		m.SessionsOpened,
		m.ServiceMessages,
		m.DestinationDuration,
		m.DestinationErrors,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "proxy_uptime_seconds",
			Help: "Proxy uptime in seconds",
		}, func() float64 { return time.Since(m.startTime).Seconds() }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an inbound request
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordDispatch records how a request was resolved
func (m *Metrics) RecordDispatch(outcome string) {
	m.DispatchTotal.WithLabelValues(outcome).Inc()

	m.mu.Lock()
	switch outcome {
	case DispatchProxied:
		m.snapshot.ProxiedRequests++
	case DispatchRejected:
		m.snapshot.RejectedRequests++
	}
	m.mu.Unlock()
}

// RecordProcessed records a rewritten resource of the given kind
func (m *Metrics) RecordProcessed(kind string) {
	m.ProcessedResources.WithLabelValues(kind).Inc()
}

// IncFileDownloads counts an attachment reported to a session
func (m *Metrics) IncFileDownloads() {
	m.FileDownloads.Inc()
}

// Capability failure reasons
const (
	CapabilityNotImplemented = "not_implemented"
	CapabilityError          = "error"
)

// RecordCapabilityFailure counts a capability hook that did not do its job
func (m *Metrics) RecordCapabilityFailure(capability, reason string) {
	m.CapabilityFailures.WithLabelValues(capability, reason).Inc()
}

// SessionOpened records a new session
func (m *Metrics) SessionOpened() {
	m.SessionsOpened.Inc()
	m.SessionsActive.Inc()

	m.mu.Lock()
	m.snapshot.ActiveSessions++
	m.mu.Unlock()
}

// SessionClosed records a closed session
func (m *Metrics) SessionClosed() {
	m.SessionsActive.Dec()

	m.mu.Lock()
	m.snapshot.ActiveSessions--
	m.mu.Unlock()
}

// RecordServiceMessage records a handled service message
func (m *Metrics) RecordServiceMessage(cmd, status string) {
	m.ServiceMessages.WithLabelValues(cmd, status).Inc()
}

// RecordDestination records a destination round trip. A status of 0 means
// the request failed before a response arrived; reason labels the failure.
func (m *Metrics) RecordDestination(status int, duration time.Duration, reason string) {
	if status == 0 {
		m.DestinationErrors.WithLabelValues(reason).Inc()
		m.mu.Lock()
		m.snapshot.DestinationErrors++
		m.mu.Unlock()
		return
	}
	m.DestinationDuration.WithLabelValues(statusClass(status)).Observe(duration.Seconds())
}

// Snapshot returns the current values for the admin API
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()

	if s.TotalRequests > 0 {
		s.AvgLatencySeconds = s.totalDuration / float64(s.TotalRequests)
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
