// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring steward. Component packages (registry, bus, router) own
// their own collectors; the metrics here cover HTTP traffic, model calls,
// and conversation turns.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts HTTP requests by method, route pattern, and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steward_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// RequestsInFlight tracks HTTP requests currently being served.
	RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "steward_http_requests_in_flight",
			Help: "HTTP requests in flight",
		},
	)

	// ProviderRequestsTotal counts requests sent to the model backend.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	// ProviderLatency records model backend latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steward_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// ProviderTokensTotal counts tokens processed by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// TurnsTotal counts conversation turns by caller tier and outcome.
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_turns_total",
			Help: "Conversation turns",
		},
		[]string{"tier", "outcome"},
	)

	// TurnSteps records how many model steps each turn needed.
	TurnSteps = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "steward_turn_steps",
			Help:    "Model steps per turn",
			Buckets: []float64{1, 2, 3, 4, 5, 7, 10, 15, 20},
		},
	)

	// ConfirmationsTotal counts resolved confirmations by outcome.
	ConfirmationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_confirmations_total",
			Help: "Confirmation resolutions",
		},
		[]string{"outcome"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		RequestsInFlight,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		TurnsTotal,
		TurnSteps,
		ConfirmationsTotal,
		RateLimitRejectedTotal,
	)
}

// RecordProviderCall records one model backend call. A nil err counts as
// success.
func RecordProviderCall(providerName, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ProviderRequestsTotal.WithLabelValues(providerName, model, status).Inc()
	ProviderLatency.WithLabelValues(providerName, model).Observe(duration.Seconds())
	if err == nil {
		ProviderTokensTotal.WithLabelValues(providerName, model, "input").Add(float64(inputTokens))
		ProviderTokensTotal.WithLabelValues(providerName, model, "output").Add(float64(outputTokens))
	}
}
