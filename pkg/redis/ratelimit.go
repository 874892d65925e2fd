package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
	RetryIn   time.Duration
}

// RateLimiter is a sliding window limiter shared by every process using the same Redis
type RateLimiter struct {
	client    *Client
	keyPrefix string
}

var slidingWindowScript = goredis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call("zremrangebyscore", key, "-inf", window_start)

	local current = redis.call("zcard", key)

	if current < limit then
		redis.call("zadd", key, now, now .. "-" .. math.random())
		redis.call("pexpire", key, window_ms)
		return {1, limit - current - 1}
	else
		local oldest = redis.call("zrange", key, 0, 0, "WITHSCORES")
		if #oldest > 0 then
			return {0, 0, oldest[2]}
		end
		return {0, 0, 0}
	end
`)

// NewRateLimiter creates a new RateLimiter
func NewRateLimiter(client *Client, keyPrefix string) *RateLimiter {
	if keyPrefix == "" {
		keyPrefix = "ratelimit:"
	}
	return &RateLimiter{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		// zrange WITHSCORES returns scores as strings
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(n, 64)
			if ferr != nil {
				return 0, err
			}
			return int64(f), nil
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}

func (r *RateLimiter) blockKey(key string) string {
	return r.keyPrefix + key + ":block"
}

// BlockFor blocks a key for d, e.g. when the upstream answers 429 with Retry-After.
func (r *RateLimiter) BlockFor(ctx context.Context, key string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.blockKey(key), "1", d)
}

// IsBlocked returns whether the key is currently blocked and, if so, for how long.
func (r *RateLimiter) IsBlocked(ctx context.Context, key string) (bool, time.Duration, error) {
	exists, err := r.client.Exists(ctx, r.blockKey(key))
	if err != nil {
		return false, 0, err
	}
	if !exists {
		return false, 0, nil
	}
	ttl, err := r.client.TTL(ctx, r.blockKey(key))
	if err != nil {
		return true, 0, err
	}
	if ttl < 0 {
		ttl = 0
	}
	return true, ttl, nil
}

// Allow checks whether one more event fits in the window. limit=1 yields a
// minimum spacing of window between admitted events.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error) {
	now := time.Now()
	windowStart := now.Add(-window)
	rateKey := r.keyPrefix + key

	if blocked, ttl, err := r.IsBlocked(ctx, key); err == nil && blocked {
		return &RateLimitResult{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   now.Add(ttl),
			RetryIn:   ttl,
		}, nil
	}

	result, err := slidingWindowScript.Run(ctx, r.client.rdb, []string{rateKey},
		now.UnixMilli(),
		windowStart.UnixMilli(),
		limit,
		window.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, err
	}

	allowedFlag, err := toInt64(result[0])
	if err != nil {
		return nil, err
	}
	remaining, err := toInt64(result[1])
	if err != nil {
		return nil, err
	}

	res := &RateLimitResult{
		Allowed:   allowedFlag == 1,
		Remaining: remaining,
		ResetAt:   now.Add(window),
	}

	if !res.Allowed && len(result) > 2 {
		oldestMs, err := toInt64(result[2])
		if err != nil {
			return nil, err
		}
		if oldestMs > 0 {
			res.RetryIn = time.UnixMilli(oldestMs).Add(window).Sub(now)
		}
	}

	return res, nil
}

// Reset clears the window and any block for a key
func (r *RateLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.keyPrefix+key, r.blockKey(key))
}
