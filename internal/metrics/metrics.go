// Package metrics defines the Prometheus metrics exported by storepanel. It is
// the single source of truth for metric names, labels and help strings; all
// metrics register with the default registry on package init.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storepanel"

// BackendRequestDuration measures round trips to the storefront backend.
// Labels:
//   - code: HTTP status code returned by the backend
//   - method: HTTP method
var BackendRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backend_request_duration_seconds",
		Help:      "Duration of requests issued to the storefront backend.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"code", "method"},
)

// BackendRetriesTotal counts backend responses that were retried after the
// backend throttled the request.
// Label:
//   - code: HTTP status code that triggered the retry (429 or 503)
var BackendRetriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_retries_total",
		Help:      "Total number of storefront backend requests retried after throttling.",
	},
	[]string{"code"},
)

// SessionTransitionsTotal counts published session transitions.
// Label:
//   - transition: "authenticated" or "unauthenticated"
var SessionTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_transitions_total",
		Help:      "Total number of session state transitions published by the session store.",
	},
	[]string{"transition"},
)

// SessionAuthenticated is 1 while an identity is published, 0 otherwise.
var SessionAuthenticated = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_authenticated",
		Help:      "Whether the session store currently publishes an authenticated identity.",
	},
)

// SessionFailuresTotal counts session operations that failed.
// Label:
//   - op: "load", "login", "register", "fetch_identity", "persist", "clear"
var SessionFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_failures_total",
		Help:      "Total number of failed session store operations.",
	},
	[]string{"op"},
)

// GateDecisionsTotal counts authorization gate evaluations made by gated views.
// Labels:
//   - view: "admin" or "account"
//   - decision: "allowed", "denied_unauthenticated", "denied_insufficient_role"
var GateDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_decisions_total",
		Help:      "Total number of authorization gate decisions taken before gated data access.",
	},
	[]string{"view", "decision"},
)

// InstrumentRoundTripper wraps next so every backend round trip is observed
// in BackendRequestDuration.
func InstrumentRoundTripper(next http.RoundTripper) http.RoundTripper {
	return promhttp.InstrumentRoundTripperDuration(BackendRequestDuration, next)
}

// Handler returns the Prometheus exposition handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
