package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

var (
	// requestDuration observes every backend operation run through Do.
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docsearch_backend_request_duration_seconds",
			Help:    "Duration of search backend operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"cluster", "operation"},
	)

	// requestErrors counts failed backend operations by error code.
	requestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsearch_backend_request_errors_total",
			Help: "Total number of failed search backend operations",
		},
		[]string{"cluster", "operation", "code"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docsearch_circuit_breaker_state",
			Help: "Current state of the backend circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// stateToFloat maps gobreaker states to gauge values.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
