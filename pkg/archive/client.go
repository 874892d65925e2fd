package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"

	"github.com/marinlafare/real-chessism/pkg/metrics"
)

const (
	// DefaultBaseURL is the chess.com public API
	DefaultBaseURL = "https://api.chess.com"

	// DefaultUserAgent identifies the service to the archive source
	DefaultUserAgent = "ChessismApp/1.0"

	// MaxResponseSize caps a single response body (64MB; very active players have large months)
	MaxResponseSize = 64 * 1024 * 1024

	defaultRetryAfter = 60 * time.Second
)

// letsPlayQuirk is an escaped-quote sequence some month archives contain that breaks JSON decoding.
var letsPlayQuirk = []byte(` \"Let"s Play!`)

// Config holds archive client configuration
type Config struct {
	BaseURL       string
	UserAgent     string
	MaxConcurrent int
	Retry         RetryPolicy
	// HTTPClient overrides the default transport; per-attempt timeouts are applied through the context
	HTTPClient *http.Client
}

// Client fetches player profiles and month archives from the archive source.
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
	policy    RetryPolicy
	pacer     Pacer
	sem       *semaphore.Weighted
	breaker   *gobreaker.CircuitBreaker[any]
	logger    ectologger.Logger
}

// NewClient creates a new archive client. A nil pacer disables pacing and a nil
// breaker disables circuit breaking.
func NewClient(cfg Config, pacer Pacer, breaker *gobreaker.CircuitBreaker[any], logger ectologger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 2
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    cfg.MaxConcurrent * 2,
				IdleConnTimeout: 90 * time.Second,
			},
		}
	}
	if pacer == nil {
		pacer = NewLocalPacer(0)
	}

	return &Client{
		http:      httpClient,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		policy:    cfg.Retry,
		pacer:     pacer,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		breaker:   breaker,
		logger:    logger,
	}
}

type monthBody struct {
	Games *[]RawGame `json:"games"`
}

// FetchMonth returns one month of a player's games. An empty slice with a nil
// error means the month has no data (404, empty body after retry, or no games key).
func (c *Client) FetchMonth(ctx context.Context, handle string, year, month int) ([]RawGame, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	url := fmt.Sprintf("%s/pub/player/%s/games/%04d/%02d", c.baseURL, strings.ToLower(handle), year, month)
	body, err := c.get(ctx, "month", url)
	if errors.Is(err, ErrNotFound) {
		c.logger.WithContext(ctx).Debugf("No archive for %s in %04d-%02d", handle, year, month)
		return []RawGame{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		c.logger.WithContext(ctx).Infof("Empty archive body for %s in %04d-%02d after retry", handle, year, month)
		return []RawGame{}, nil
	}

	body = bytes.ReplaceAll(body, letsPlayQuirk, []byte("lets_play"))

	var parsed monthBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode month %04d-%02d: %v", ErrTransient, year, month, err)
	}
	if parsed.Games == nil {
		return []RawGame{}, nil
	}
	return *parsed.Games, nil
}

// FetchProfile returns a player's profile, or ErrNotFound.
func (c *Client) FetchProfile(ctx context.Context, handle string) (*RawProfile, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	handle = strings.ToLower(handle)
	url := fmt.Sprintf("%s/pub/player/%s", c.baseURL, handle)
	body, err := c.get(ctx, "profile", url)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrNotFound
	}

	var profile RawProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("%w: decode profile %s: %v", ErrTransient, handle, err)
	}
	profile.Username = handle
	profile.Country = profile.CountryCode()
	return &profile, nil
}

type response struct {
	status int
	body   []byte
}

// get performs a paced GET under the retry policy. A nil body with a nil error
// means every attempt returned an empty body.
func (c *Client) get(ctx context.Context, kind, url string) ([]byte, error) {
	attempts := c.policy.attempts()
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			metrics.RecordArchiveRetry(kind)
			if err := sleep(ctx, c.policy.Backoff); err != nil {
				return nil, err
			}
		}

		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.execute(ctx, kind, url, c.policy.TimeoutFor(attempt))
		if err != nil {
			return nil, err
		}
		if resp.status == http.StatusNotFound {
			return nil, ErrNotFound
		}
		if len(bytes.TrimSpace(resp.body)) > 0 {
			return resp.body, nil
		}
		c.logger.WithContext(ctx).Debugf("Empty body from %s (attempt %d/%d)", url, attempt+1, attempts)
	}
	return nil, nil
}

func (c *Client) execute(ctx context.Context, kind, url string, timeout time.Duration) (*response, error) {
	call := func() (any, error) {
		return c.do(ctx, kind, url, timeout)
	}

	var (
		result any
		err    error
	)
	if c.breaker != nil {
		result, err = c.breaker.Execute(call)
	} else {
		result, err = call()
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: circuit breaker: %v", ErrTransient, err)
	}
	if err != nil {
		return nil, err
	}
	return result.(*response), nil
}

// do issues one request. 2xx and 404 are returned as responses; everything else is an error.
func (c *Client) do(ctx context.Context, kind, url string, timeout time.Duration) (*response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordArchiveRequest(kind, "error", time.Since(start).Seconds())
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.WithContext(ctx).WithError(err).Warnf("Archive request failed: GET %s", url)
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	metrics.RecordArchiveRequest(kind, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrTransient, err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("%w: response body too large (max %d bytes)", ErrTransient, MaxResponseSize)
	}

	c.logger.WithContext(ctx).Debugf("GET %s -> %d (%s)", url, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &response{status: resp.StatusCode, body: body}, nil
	case resp.StatusCode == http.StatusNotFound:
		return &response{status: resp.StatusCode}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.pacer.Block(ctx, wait)
		c.logger.WithContext(ctx).Warnf("Archive source rate limited GET %s, backing off %s", url, wait)
		return nil, ErrRateLimited
	default:
		return nil, fmt.Errorf("%w: GET %s returned %d", ErrTransient, url, resp.StatusCode)
	}
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}
