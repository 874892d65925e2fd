package archive

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/time/rate"

	"github.com/marinlafare/real-chessism/pkg/metrics"
	"github.com/marinlafare/real-chessism/pkg/redis"
)

// Pacer spaces out request starts against the archive source.
type Pacer interface {
	// Wait blocks until the caller may start one request.
	Wait(ctx context.Context) error
	// Block holds back every request for d, e.g. after a 429.
	Block(ctx context.Context, d time.Duration)
}

// LocalPacer enforces a minimum delay between request starts within one process.
type LocalPacer struct {
	limiter *rate.Limiter

	mu           sync.Mutex
	blockedUntil time.Time
}

// NewLocalPacer returns a pacer admitting one request start per minDelay. A
// non-positive delay disables pacing.
func NewLocalPacer(minDelay time.Duration) *LocalPacer {
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}
	return &LocalPacer{limiter: rate.NewLimiter(limit, 1)}
}

// Wait implements Pacer
func (p *LocalPacer) Wait(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.PacerWaitTime.Observe(time.Since(start).Seconds()) }()

	p.mu.Lock()
	until := p.blockedUntil
	p.mu.Unlock()

	if d := time.Until(until); d > 0 {
		if err := sleep(ctx, d); err != nil {
			return err
		}
	}
	return p.limiter.Wait(ctx)
}

// Block implements Pacer
func (p *LocalPacer) Block(_ context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if until := time.Now().Add(d); until.After(p.blockedUntil) {
		p.blockedUntil = until
	}
}

// SharedPacer coordinates request starts across every instance sharing one Redis.
type SharedPacer struct {
	limiter  *redis.RateLimiter
	key      string
	minDelay time.Duration
	logger   ectologger.Logger
}

// NewSharedPacer returns a Redis-backed pacer. All instances using the same key
// share one start budget.
func NewSharedPacer(limiter *redis.RateLimiter, key string, minDelay time.Duration, logger ectologger.Logger) *SharedPacer {
	if key == "" {
		key = "archive"
	}
	if minDelay <= 0 {
		minDelay = time.Millisecond
	}
	return &SharedPacer{limiter: limiter, key: key, minDelay: minDelay, logger: logger}
}

// Wait implements Pacer
func (p *SharedPacer) Wait(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.PacerWaitTime.Observe(time.Since(start).Seconds()) }()

	for {
		res, err := p.limiter.Allow(ctx, p.key, 1, p.minDelay)
		if err != nil {
			// Redis trouble must not stall ingestion; fall back to local spacing.
			p.logger.WithContext(ctx).WithError(err).Warn("Shared pacer unavailable, falling back to fixed delay")
			return sleep(ctx, p.minDelay)
		}
		if res.Allowed {
			return nil
		}
		wait := res.RetryIn
		if wait <= 0 {
			wait = p.minDelay
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Block implements Pacer
func (p *SharedPacer) Block(ctx context.Context, d time.Duration) {
	if err := p.limiter.BlockFor(ctx, p.key, d); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warnf("Failed to block shared pacer for %s", d)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
