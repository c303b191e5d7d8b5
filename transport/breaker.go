package transport

import (
	"errors"
	"time"

	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig holds configuration for the optional circuit breaker.
type BreakerConfig struct {
	Name         string
	MaxRequests  uint32        // requests allowed while half-open
	Interval     time.Duration // closed-state count reset period, 0 never resets
	Timeout      time.Duration // open duration before half-open
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig returns defaults for the backend breaker.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "backend",
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// WithCircuitBreaker guards calls with a circuit breaker. Network failures and 5xx
// responses count as failures; 4xx responses do not. A rejected call surfaces as a
// *errors.NetworkError since no response was obtained.
func WithCircuitBreaker(cfg BreakerConfig) Option {
	return func(c *Client) {
		settings := gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: cfg.MaxRequests,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cfg.MinRequests {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
			},
			IsSuccessful: func(err error) bool {
				if err == nil {
					return true
				}
				var apiErr *apperrors.APIError
				return errors.As(err, &apiErr) && apiErr.Status < 500
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				c.log.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state change")
			},
		}
		c.breaker = gobreaker.NewCircuitBreaker[*Response](settings)
	}
}

// BreakerState reports the breaker state, or StateClosed when no breaker is configured.
func (c *Client) BreakerState() gobreaker.State {
	if c.breaker == nil {
		return gobreaker.StateClosed
	}
	return c.breaker.State()
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
