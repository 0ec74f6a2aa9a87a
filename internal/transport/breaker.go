package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Default breaker settings.
const (
	DefaultFailureThreshold = 5                // consecutive failures to open circuit
	DefaultOpenDuration     = 30 * time.Second // before half-open
	DefaultHalfOpenProbes   = 1                // probes allowed in half-open state
)

// State represents the circuit breaker state.
type State = gobreaker.State

// Circuit breaker state constants.
const (
	StateClosed   = gobreaker.StateClosed
	StateOpen     = gobreaker.StateOpen
	StateHalfOpen = gobreaker.StateHalfOpen
)

// BreakerConfig defines circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit.
	FailureThreshold int

	// OpenDuration is how long the circuit stays open before probing again.
	OpenDuration time.Duration

	// HalfOpenProbes is the number of probe requests allowed in half-open state.
	HalfOpenProbes int

	// Disabled makes the breaker a pass-through.
	Disabled bool
}

// Breaker guards a Transport with a circuit breaker.
//
// Server errors (5xx) and connection failures count against the circuit.
// Timeouts and caller cancellations do not: timeouts are retried by the
// transport and belong to the rate-limited flow, not to server health.
type Breaker struct {
	next Transport
	cb   *gobreaker.TwoStepCircuitBreaker[struct{}]
	name string
	off  bool
}

// NewBreaker wraps next with a circuit breaker named after the account.
func NewBreaker(next Transport, name string, cfg BreakerConfig, logger *zerolog.Logger) *Breaker {
	failureThreshold := cfg.FailureThreshold
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	openDuration := cfg.OpenDuration
	if openDuration <= 0 {
		openDuration = DefaultOpenDuration
	}
	halfOpenProbes := cfg.HalfOpenProbes
	if halfOpenProbes <= 0 {
		halfOpenProbes = DefaultHalfOpenProbes
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(halfOpenProbes), //nolint:gosec // validated positive above
		Timeout:     openDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failureThreshold) //nolint:gosec // validated positive above
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger == nil {
				return
			}
			event := logger.Info()
			if to == gobreaker.StateOpen {
				event = logger.Warn()
			}
			event.
				Str("account", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	}

	return &Breaker{
		next: next,
		cb:   gobreaker.NewTwoStepCircuitBreaker[struct{}](settings),
		name: name,
		off:  cfg.Disabled,
	}
}

// Post implements Transport.
func (b *Breaker) Post(
	ctx context.Context, rawURL string, form url.Values, headers http.Header, timeout time.Duration,
) (*Response, error) {
	return b.guard(func() (*Response, error) {
		return b.next.Post(ctx, rawURL, form, headers, timeout)
	})
}

// Get implements Transport.
func (b *Breaker) Get(ctx context.Context, rawURL string, headers http.Header, timeout time.Duration) (*Response, error) {
	return b.guard(func() (*Response, error) {
		return b.next.Get(ctx, rawURL, headers, timeout)
	})
}

// State returns the current circuit breaker state.
func (b *Breaker) State() State {
	return b.cb.State()
}

// Name returns the breaker's name.
func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) guard(fn func() (*Response, error)) (*Response, error) {
	if b.off {
		return fn()
	}

	done, err := b.cb.Allow()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, b.name)
	}

	resp, err := fn()
	done(failure(resp, err))
	return resp, err
}

var errServerStatus = errors.New("transport: server error status")

// failure returns the error the circuit should record for an exchange, or nil.
func failure(resp *Response, err error) error {
	if err != nil {
		if IsTimeout(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}
	if resp != nil && resp.StatusCode >= http.StatusInternalServerError {
		return errServerStatus
	}
	return nil
}
