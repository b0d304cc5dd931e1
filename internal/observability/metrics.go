package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	"github.com/riskibarqy/learnhub-onboarding/internal/usecase"
)

const metricsNamespace = "learnhub_onboarding"

// PrometheusMetrics records wizard, outbox and HTTP events on its own registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	stepTransitions *prometheus.CounterVec
	stepSyncs       *prometheus.CounterVec
	outboxDelivery  *prometheus.CounterVec
	optionSources   *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

var _ usecase.Metrics = (*PrometheusMetrics)(nil)

func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		stepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "wizard",
			Name:      "step_transitions_total",
			Help:      "Wizard actions by the step they started from.",
		}, []string{"action", "step"}),
		stepSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "wizard",
			Name:      "step_syncs_total",
			Help:      "Remote user-details syncs by step and outcome.",
		}, []string{"step", "outcome"}),
		outboxDelivery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Sync intent replays by outcome.",
		}, []string{"outcome"}),
		optionSources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "options",
			Name:      "loads_total",
			Help:      "Dropdown option loads by field and source.",
		}, []string{"field", "source"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.stepTransitions,
		m.stepSyncs,
		m.outboxDelivery,
		m.optionSources,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *PrometheusMetrics) StepTransition(action string, from onboarding.Step) {
	m.stepTransitions.WithLabelValues(action, strconv.Itoa(int(from))).Inc()
}

func (m *PrometheusMetrics) StepSync(step onboarding.Step, outcome string) {
	m.stepSyncs.WithLabelValues(strconv.Itoa(int(step)), outcome).Inc()
}

func (m *PrometheusMetrics) OutboxDelivery(outcome string) {
	m.outboxDelivery.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) OptionSource(field onboarding.Field, source usecase.OptionSource) {
	m.optionSources.WithLabelValues(string(field), string(source)).Inc()
}

// ObserveHTTP records one request. route is the matched pattern, not the raw path.
func (m *PrometheusMetrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
