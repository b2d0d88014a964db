package codegen

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for codemind_ai_requests_total.
const (
	statusSuccess  = "success"
	statusFallback = "fallback"
	statusError    = "error"
)

// Metrics counts AI calls per provider and operation. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
type Metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	fallbacks *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codemind_ai_requests_total",
			Help: "AI provider calls by provider, operation and outcome.",
		}, []string{"provider", "operation", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codemind_ai_request_duration_seconds",
			Help:    "Latency of AI provider calls.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		}, []string{"provider", "operation"}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codemind_fallback_total",
			Help: "Responses served from demo templates because the provider had no valid credentials.",
		}, []string{"operation"}),
	}
}
