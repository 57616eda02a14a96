// Package metrics declares the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gate outcomes.
const (
	GateIdentified = "identified"
	GateAnonymous  = "anonymous"
	GateInvalid    = "invalid"
)

// Login outcomes.
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
	LoginError   = "error"
)

var (
	GateResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messagely",
			Name:      "auth_gate_resolutions_total",
			Help:      "Identity resolutions performed by the authentication gate",
		},
		[]string{"outcome"},
	)

	GuardRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messagely",
			Name:      "auth_guard_rejections_total",
			Help:      "Calls rejected by an authorization guard",
		},
		[]string{"guard"},
	)

	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messagely",
			Name:      "auth_login_attempts_total",
			Help:      "Login attempts by result",
		},
		[]string{"result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messagely",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "messagely",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
