// Package metrics exposes the service's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/domain"
)

const namespace = "traceml"

// Metrics owns its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	registrations     *prometheus.CounterVec
	anomalies         *prometheus.CounterVec
	identities        prometheus.Gauge

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	checkins     *prometheus.CounterVec
	checkinQueue prometheus.Gauge
	wsClients    prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	auto := promauto.With(reg)

	return &Metrics{
		registry: reg,
		operations: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Recognition operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		operationDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of recognition operations.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		registrations: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Registrations by resulting status.",
		}, []string{"status"}),
		anomalies: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomaly_checks_total",
			Help:      "Anomaly checks by verdict.",
		}, []string{"verdict"}),
		identities: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "identities",
			Help:      "Enrolled identities.",
		}),
		httpRequests: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		checkins: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkin",
			Name:      "deliveries_total",
			Help:      "Attendance check-in deliveries by outcome.",
		}, []string{"outcome"}),
		checkinQueue: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "checkin",
			Name:      "queue_length",
			Help:      "Check-ins waiting for delivery.",
		}),
		wsClients: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected websocket clients.",
		}),
	}
}

// Outcome labels err by its kind, "ok" when nil.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domain.KindOf(err))
}

func (m *Metrics) ObserveOperation(operation string, err error, d time.Duration) {
	m.operations.WithLabelValues(operation, Outcome(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) RecordRegistration(status domain.RegistrationStatus) {
	m.registrations.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) RecordAnomalyCheck(isAnomaly bool) {
	verdict := "normal"
	if isAnomaly {
		verdict = "anomaly"
	}
	m.anomalies.WithLabelValues(verdict).Inc()
}

func (m *Metrics) SetIdentities(n int) {
	m.identities.Set(float64(n))
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) RecordCheckin(outcome string) {
	m.checkins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetCheckinQueue(n int) {
	m.checkinQueue.Set(float64(n))
}

func (m *Metrics) AddWSClients(delta int) {
	m.wsClients.Add(float64(delta))
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
