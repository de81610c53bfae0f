package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace     = "sessionguard"
	unmatchedPath = "unmatched"
)

// Gate decision outcomes.
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
)

// Metrics holds the session guard's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	gateDecisions      *prometheus.CounterVec
	teardowns          *prometheus.CounterVec
	upstreamAuthFails  *prometheus.CounterVec
	signedRequests     prometheus.Counter
	channelOpens       *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpRequestSeconds *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Navigation gate decisions by route and outcome.",
		}, []string{"route", "outcome"}),
		teardowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_teardowns_total",
			Help:      "Sessions ended, by trigger.",
		}, []string{"reason"}),
		upstreamAuthFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_auth_failures_total",
			Help:      "Signed requests answered with 401 or 403.",
		}, []string{"status"}),
		signedRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signed_requests_total",
			Help:      "Outbound requests that carried the session credential.",
		}),
		channelOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_channel_opens_total",
			Help:      "Push channel open attempts by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shell_http_requests_total",
			Help:      "Requests served by the shell.",
		}, []string{"method", "path", "status"}),
		httpRequestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "shell_http_request_duration_seconds",
			Help:      "Shell request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		m.gateDecisions,
		m.teardowns,
		m.upstreamAuthFails,
		m.signedRequests,
		m.channelOpens,
		m.httpRequests,
		m.httpRequestSeconds,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) GateDecision(route string, allowed bool) {
	if m == nil {
		return
	}
	outcome := OutcomeDenied
	if allowed {
		outcome = OutcomeAllowed
	}
	m.gateDecisions.WithLabelValues(route, outcome).Inc()
}

func (m *Metrics) Teardown(reason string) {
	if m == nil {
		return
	}
	m.teardowns.WithLabelValues(reason).Inc()
}

func (m *Metrics) UpstreamAuthFailure(status int) {
	if m == nil {
		return
	}
	m.upstreamAuthFails.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *Metrics) SignedRequest() {
	if m == nil {
		return
	}
	m.signedRequests.Inc()
}

func (m *Metrics) ChannelOpen(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.channelOpens.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware tracks request count and latency per route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			path := c.Path()
			if path == "" {
				path = unmatchedPath
			}
			method := c.Request().Method
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			m.httpRequestSeconds.WithLabelValues(method, path).Observe(time.Since(start).Seconds())

			return err
		}
	}
}
