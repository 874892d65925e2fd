package archive

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/sony/gobreaker/v2"

	"github.com/marinlafare/real-chessism/pkg/metrics"
)

// BreakerConfig configures the circuit breaker in front of the archive source.
type BreakerConfig struct {
	Name           string
	MaxRequests    uint32
	Interval       time.Duration
	Timeout        time.Duration
	FailureRatio   float64
	MinimumSamples uint32
}

// DefaultBreakerConfig returns the breaker settings used when none are configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:           "chess.com",
		MaxRequests:    2,
		Interval:       time.Minute,
		Timeout:        30 * time.Second,
		FailureRatio:   0.6,
		MinimumSamples: 10,
	}
}

// NewBreaker builds a breaker that trips once enough requests have been seen
// and the failure ratio crosses the threshold. Only transient failures count;
// 404 and empty bodies are successful calls.
func NewBreaker(cfg BreakerConfig, logger ectologger.Logger) *gobreaker.CircuitBreaker[any] {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinimumSamples {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		// The caller giving up is not a source failure. Per-attempt
		// timeouts come back as ErrTransient and still count.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warnf("Circuit breaker %s changed state from %s to %s", name, from, to)
			metrics.RecordBreakerState(name, breakerStateValue(to))
		},
	}
	metrics.RecordBreakerState(cfg.Name, 0)
	return gobreaker.NewCircuitBreaker[any](settings)
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
