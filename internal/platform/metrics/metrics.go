// Package metrics exposes Prometheus collectors for the HTTP surface and the
// evaluation pipeline. Collectors are registered on an injected registry; a
// nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "woundcare"

type Metrics struct {
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	evaluations      *prometheus.CounterVec
	evalDuration     prometheus.Histogram
	alertsEmitted    *prometheus.CounterVec
	alertsSuppressed *prometheus.CounterVec
	alertsBlocked    *prometheus.CounterVec
	overrides        *prometheus.CounterVec
	determinations   *prometheus.CounterVec
	reviewChanges    *prometheus.CounterVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),
		evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Episode evaluations by outcome",
		}, []string{"outcome"}),
		evalDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time to evaluate one episode",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		alertsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_emitted_total",
			Help:      "Alerts delivered after fatigue checks",
		}, []string{"tier", "type", "fatigue_bypassed"}),
		alertsSuppressed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Alerts suppressed by the fatigue preventer",
		}, []string{"tier", "type"}),
		alertsBlocked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_blocked_total",
			Help:      "Alert proposals blocked by a quality gate",
		}, []string{"tier"}),
		overrides: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_overrides_total",
			Help:      "Safety override decisions above none",
		}, []string{"severity"}),
		determinations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coverage_determinations_total",
			Help:      "Coverage eligibility determinations",
		}, []string{"phase", "compliance", "eligible"}),
		reviewChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_transitions_total",
			Help:      "Clinical review state transitions",
		}, []string{"from", "to"}),
	}
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per route template.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// -- Pipeline helpers --

func (m *Metrics) ObserveEvaluation(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(outcome).Inc()
	m.evalDuration.Observe(d.Seconds())
}

func (m *Metrics) AlertEmitted(tier, typ string, fatigueBypassed bool) {
	if m == nil {
		return
	}
	m.alertsEmitted.WithLabelValues(tier, typ, strconv.FormatBool(fatigueBypassed)).Inc()
}

func (m *Metrics) AlertSuppressed(tier, typ string) {
	if m == nil {
		return
	}
	m.alertsSuppressed.WithLabelValues(tier, typ).Inc()
}

func (m *Metrics) AlertBlocked(tier string) {
	if m == nil {
		return
	}
	m.alertsBlocked.WithLabelValues(tier).Inc()
}

func (m *Metrics) Override(severity string) {
	if m == nil {
		return
	}
	m.overrides.WithLabelValues(severity).Inc()
}

func (m *Metrics) Determination(phase, compliance string, eligible bool) {
	if m == nil {
		return
	}
	m.determinations.WithLabelValues(phase, compliance, strconv.FormatBool(eligible)).Inc()
}

func (m *Metrics) ReviewTransition(from, to string) {
	if m == nil {
		return
	}
	m.reviewChanges.WithLabelValues(from, to).Inc()
}
