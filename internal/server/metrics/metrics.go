// Package metrics holds the Prometheus instruments of the request edge.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"

	ResultOK       = "ok"
	ResultRejected = "rejected"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	rateLimitDecisions  *prometheus.CounterVec
	rateLimitBuckets    prometheus.Gauge
	rateLimitEvictions  prometheus.Counter
	requestIDCollisions prometheus.Counter
	tokenVerifications  *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		rateLimitDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zappro_ratelimit_decisions_total",
				Help: "Rate limit admission decisions by outcome",
			},
			[]string{"outcome"},
		),

		rateLimitBuckets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "zappro_ratelimit_buckets",
				Help: "Number of clients currently tracked by the rate limiter",
			},
		),

		rateLimitEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "zappro_ratelimit_evictions_total",
				Help: "Rate limiter buckets dropped for capacity or idleness",
			},
		),

		requestIDCollisions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "zappro_request_id_collisions_total",
				Help: "Requests whose id was already seen within the tracking window",
			},
		),

		tokenVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zappro_token_verifications_total",
				Help: "Token verifications by expected kind and result",
			},
			[]string{"kind", "result"},
		),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zappro_http_requests_total",
				Help: "HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zappro_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.rateLimitDecisions,
		m.rateLimitBuckets,
		m.rateLimitEvictions,
		m.requestIDCollisions,
		m.tokenVerifications,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)

	return m
}

// RecordRateLimit records one admission decision and the current table size.
func (m *Metrics) RecordRateLimit(allowed bool, buckets int) {
	if m == nil {
		return
	}
	outcome := OutcomeRejected
	if allowed {
		outcome = OutcomeAllowed
	}
	m.rateLimitDecisions.WithLabelValues(outcome).Inc()
	m.rateLimitBuckets.Set(float64(buckets))
}

func (m *Metrics) RecordRateLimitEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rateLimitEvictions.Add(float64(n))
}

func (m *Metrics) RecordRequestIDCollision() {
	if m == nil {
		return
	}
	m.requestIDCollisions.Inc()
}

// RecordTokenVerification counts a verification; result is ResultOK or the
// rejection reason.
func (m *Metrics) RecordTokenVerification(kind, result string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "any"
	}
	m.tokenVerifications.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
