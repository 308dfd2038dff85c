package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes Prometheus collectors for the HTTP surface and lead workflow.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	errors           *prometheus.CounterVec
	leadsCreated     prometheus.Counter
	leadStateChanges *prometheus.CounterVec
	notifications    *prometheus.CounterVec
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_errors_total",
				Help: "Total number of error responses by code",
			},
			[]string{"method", "path", "code"},
		),
		leadsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "leads_created_total",
				Help: "Total number of leads accepted",
			},
		),
		leadStateChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lead_state_changes_total",
				Help: "Total number of lead state updates by target state",
			},
			[]string{"state"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_total",
				Help: "Notification emails by recipient kind and outcome",
			},
			[]string{"recipient", "outcome"},
		),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, path, code).Inc()
}

func (m *Metrics) RecordLeadCreated() {
	if m == nil {
		return
	}
	m.leadsCreated.Inc()
}

func (m *Metrics) RecordStateChange(state string) {
	if m == nil {
		return
	}
	m.leadStateChanges.WithLabelValues(state).Inc()
}

// RecordNotification tracks one email attempt. Outcome is sent, failed or skipped.
func (m *Metrics) RecordNotification(recipient, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(recipient, outcome).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
