package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for the API core. A nil or disabled
// Metrics is safe to use; every recording method becomes a no-op.
type Metrics struct {
	requestsTotal       *prometheus.CounterVec
	retriesTotal        *prometheus.CounterVec
	attemptDuration     *prometheus.HistogramVec
	inflightRequests    prometheus.Gauge
	waiterPolls         *prometheus.CounterVec
	credentialRefreshes *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.LatencyBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "API requests by service, operation, and outcome.",
		}, []string{"service", "operation", "outcome"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_retries_total",
			Help:      "Retried attempts by error class.",
		}, []string{"service", "class"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_attempt_duration_seconds",
			Help:      "Latency of individual HTTP attempts.",
			Buckets:   buckets,
		}, []string{"service", "operation"}),
		inflightRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "api_inflight_requests",
			Help:      "Requests currently dispatched and awaiting a response.",
		}),
		waiterPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waiter_polls_total",
			Help:      "Waiter polls by operation.",
		}, []string{"operation"}),
		credentialRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_refreshes_total",
			Help:      "Credential snapshot refreshes by source and outcome.",
		}, []string{"source", "outcome"}),
	}

	for _, c := range []prometheus.Collector{
		m.requestsTotal, m.retriesTotal, m.attemptDuration,
		m.inflightRequests, m.waiterPolls, m.credentialRefreshes,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Registry exposes the Prometheus registry for embedding in an HTTP handler.
// Nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// RecordRequest counts one finished logical request.
func (m *Metrics) RecordRequest(service, operation, outcome string) {
	if !m.enabled() {
		return
	}
	m.requestsTotal.WithLabelValues(service, operation, outcome).Inc()
}

// RecordRetry counts one scheduled retry.
func (m *Metrics) RecordRetry(service, class string) {
	if !m.enabled() {
		return
	}
	m.retriesTotal.WithLabelValues(service, class).Inc()
}

// RecordAttempt observes the latency of one HTTP attempt.
func (m *Metrics) RecordAttempt(service, operation string, elapsed time.Duration) {
	if !m.enabled() {
		return
	}
	m.attemptDuration.WithLabelValues(service, operation).Observe(elapsed.Seconds())
}

// RequestStarted marks a request in flight.
func (m *Metrics) RequestStarted() {
	if !m.enabled() {
		return
	}
	m.inflightRequests.Inc()
}

// RequestFinished removes a request from the in-flight gauge.
func (m *Metrics) RequestFinished() {
	if !m.enabled() {
		return
	}
	m.inflightRequests.Dec()
}

// RecordWaiterPoll counts one waiter poll for an operation.
func (m *Metrics) RecordWaiterPoll(operation string) {
	if !m.enabled() {
		return
	}
	m.waiterPolls.WithLabelValues(operation).Inc()
}

// RecordCredentialRefresh counts one credential snapshot refresh.
func (m *Metrics) RecordCredentialRefresh(source, outcome string) {
	if !m.enabled() {
		return
	}
	m.credentialRefreshes.WithLabelValues(source, outcome).Inc()
}
