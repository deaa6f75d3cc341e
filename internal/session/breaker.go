package session

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker around the HTTP transport.
type BreakerConfig struct {
	Enabled bool

	// MaxRequests is the number of requests allowed through while half-open.
	// 0 means 1.
	MaxRequests uint32

	// Interval clears the failure counts while closed. 0 never clears them.
	Interval time.Duration

	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration

	// FailureRatio trips the breaker once MinRequests have been seen.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig returns the breaker settings used when none are configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:      false,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// ErrCircuitOpen is returned by the transport while the breaker rejects requests.
var ErrCircuitOpen = gobreaker.ErrOpenState

// errServerStatus marks a 5xx response as a breaker failure. The response
// itself is still handed to the client so it can decode the error body.
var errServerStatus = errors.New("server error status")

// breakerTransport is an http.RoundTripper guarded by a circuit breaker.
type breakerTransport struct {
	base    http.RoundTripper
	breaker *gobreaker.CircuitBreaker[*http.Response]
	name    string
}

func newBreakerTransport(name string, base http.RoundTripper, cfg BreakerConfig, logger *slog.Logger) *breakerTransport {
	if base == nil {
		base = http.DefaultTransport
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}

	breakerState.WithLabelValues(name).Set(0)

	return &breakerTransport{
		base:    base,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),
		name:    name,
	}
}

// RoundTrip sends req through the breaker. Connection errors and 5xx
// responses count as failures; an open breaker fails without sending.
func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.breaker.Execute(func() (*http.Response, error) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerStatus
		}
		return resp, nil
	})
	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, errServerStatus):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("circuit breaker %s: %w", t.name, err)
	default:
		return nil, err
	}
}

// CloseIdleConnections forwards to the wrapped transport.
func (t *breakerTransport) CloseIdleConnections() {
	if c, ok := t.base.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

// State returns the current breaker state.
func (t *breakerTransport) State() gobreaker.State {
	return t.breaker.State()
}
