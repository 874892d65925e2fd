package archive

import "time"

// RetryPolicy is applied to every call to the archive source. Attempt i uses
// Timeouts[i] (the last entry repeats) and is preceded by Backoff when i > 0.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	Timeouts    []time.Duration
}

// DefaultRetryPolicy retries an empty body once, after one second, with a longer timeout.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		Backoff:     time.Second,
		Timeouts:    []time.Duration{5 * time.Second, 10 * time.Second},
	}
}

// TimeoutFor returns the request timeout for the given zero-based attempt.
func (p RetryPolicy) TimeoutFor(attempt int) time.Duration {
	if len(p.Timeouts) == 0 {
		return 10 * time.Second
	}
	if attempt >= len(p.Timeouts) {
		return p.Timeouts[len(p.Timeouts)-1]
	}
	return p.Timeouts[attempt]
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
