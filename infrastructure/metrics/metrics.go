// Package metrics provides Prometheus metrics collection
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Queue metrics
	QueueJobsTotal  *prometheus.CounterVec
	QueueJobLatency *prometheus.HistogramVec
	QueueDepth      *prometheus.GaugeVec

	// Extraction metrics
	TierAttemptsTotal *prometheus.CounterVec
	TierDuration      *prometheus.HistogramVec
	ExtractionsTotal  *prometheus.CounterVec

	// Webhook metrics
	WebhookDeliveriesTotal *prometheus.CounterVec
	WebhookDuration        *prometheus.HistogramVec

	// SSE metrics
	SSEClients prometheus.Gauge

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// New creates a new Metrics instance registered on the default registry
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		QueueJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_jobs_total",
				Help: "Total number of queue jobs by terminal state",
			},
			[]string{"queue", "state"},
		),
		QueueJobLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "queue_job_duration_seconds",
				Help:    "Queue job handler duration in seconds",
				Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"queue"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "queue_depth",
				Help: "Jobs waiting per queue",
			},
			[]string{"queue"},
		),
		TierAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extraction_tier_attempts_total",
				Help: "Extraction tier attempts by tier and status",
			},
			[]string{"tier", "status"},
		),
		TierDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extraction_tier_duration_seconds",
				Help:    "Extraction tier duration in seconds",
				Buckets: []float64{.05, .25, 1, 5, 15, 30, 60, 120},
			},
			[]string{"tier"},
		),
		ExtractionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractions_total",
				Help: "Completed extractions by final tier and outcome",
			},
			[]string{"final_tier", "outcome"},
		),
		WebhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_deliveries_total",
				Help: "Webhook delivery attempts by result",
			},
			[]string{"result"},
		),
		WebhookDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webhook_delivery_duration_seconds",
				Help:    "Webhook POST duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"result"},
		),
		SSEClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_clients",
				Help: "Connected SSE clients",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors",
			},
			[]string{"service", "type", "operation"},
		),
	}

	collectors := []prometheus.Collector{
		m.RequestsTotal, m.RequestDuration,
		m.QueueJobsTotal, m.QueueJobLatency, m.QueueDepth,
		m.TierAttemptsTotal, m.TierDuration, m.ExtractionsTotal,
		m.WebhookDeliveriesTotal, m.WebhookDuration,
		m.SSEClients, m.ErrorsTotal,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}

	return m
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// ObserveTier records one extraction tier attempt
func (m *Metrics) ObserveTier(tier, status string, duration time.Duration) {
	m.TierAttemptsTotal.WithLabelValues(tier, status).Inc()
	m.TierDuration.WithLabelValues(tier).Observe(duration.Seconds())
}

// Global default instance, initialised once at startup.
var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default returns the process-wide Metrics instance.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New("complianceai")
	})
	return defaultMetrics
}
