// Package metrics owns the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shop"

// Metrics holds every collector on a private registry. A nil *Metrics is
// valid and records nothing, which keeps tests free of registry wiring.
type Metrics struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	guardRejections *prometheus.CounterVec
	codesIssued     *prometheus.CounterVec
	paymentOutcomes *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latencies partitioned by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		guardRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_rejections_total",
			Help:      "Requests rejected by the abuse guards, by guard.",
		}, []string{"guard"}),
		codesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_codes_total",
			Help:      "Verification code issuance attempts by route and result.",
		}, []string{"route", "result"}),
		paymentOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_outcomes_total",
			Help:      "Payment callback outcomes.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestDuration, m.guardRejections, m.codesIssued, m.paymentOutcomes,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, status).Observe(seconds)
}

func (m *Metrics) GuardRejected(guard string) {
	if m == nil {
		return
	}
	m.guardRejections.WithLabelValues(guard).Inc()
}

func (m *Metrics) CodeIssued(route, result string) {
	if m == nil {
		return
	}
	m.codesIssued.WithLabelValues(route, result).Inc()
}

func (m *Metrics) PaymentOutcome(outcome string) {
	if m == nil {
		return
	}
	m.paymentOutcomes.WithLabelValues(outcome).Inc()
}
