// Package health provides health check endpoints for the chessism service.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sony/gobreaker/v2"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// DefaultCheckTimeout bounds a single dependency check.
const DefaultCheckTimeout = 5 * time.Second

// CheckResult represents the result of a health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Response represents a health check response
type Response struct {
	Status     Status                 `json:"status"`
	Version    string                 `json:"version,omitempty"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

// CheckFunc reports the health of one dependency.
type CheckFunc func(ctx context.Context) CheckResult

// Checker provides health check functionality
type Checker struct {
	checks    map[string]CheckFunc
	startTime time.Time
	version   string
	mu        sync.RWMutex
	ready     bool
}

// NewChecker creates a new health checker with no checks registered
func NewChecker(version string) *Checker {
	return &Checker{
		checks:    make(map[string]CheckFunc),
		startTime: time.Now(),
		version:   version,
	}
}

// AddCheck registers a named check.
func (c *Checker) AddCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// AddPing registers a check that is unhealthy when ping fails. Both
// *sql.DB.PingContext and the redis client's Ping fit.
func (c *Checker) AddPing(name string, ping func(ctx context.Context) error) {
	c.AddCheck(name, PingCheck(ping))
}

// PingCheck turns a ping into a CheckFunc.
func PingCheck(ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) CheckResult {
		start := time.Now()
		ctx, cancel := context.WithTimeout(ctx, DefaultCheckTimeout)
		defer cancel()

		if err := ping(ctx); err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: err.Error(),
				Latency: time.Since(start).String(),
			}
		}
		return CheckResult{
			Status:  StatusHealthy,
			Latency: time.Since(start).String(),
		}
	}
}

// BreakerCheck reports the archive source as degraded while its circuit breaker is not closed.
func BreakerCheck(cb *gobreaker.CircuitBreaker[any]) CheckFunc {
	return func(context.Context) CheckResult {
		state := cb.State()
		if state == gobreaker.StateClosed {
			return CheckResult{Status: StatusHealthy}
		}
		return CheckResult{Status: StatusDegraded, Message: "circuit breaker " + state.String()}
	}
}

// SetReady marks the service as ready to receive traffic
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// IsReady returns whether the service is ready
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// LivenessHandler reports that the process is up.
func (c *Checker) LivenessHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, Response{
		Status:     StatusHealthy,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		ReportedAt: time.Now(),
	})
}

// ReadinessHandler reports whether the service can accept traffic.
func (c *Checker) ReadinessHandler(ctx echo.Context) error {
	if !c.IsReady() {
		return ctx.JSON(http.StatusServiceUnavailable, Response{
			Status:     StatusUnhealthy,
			Version:    c.version,
			ReportedAt: time.Now(),
			Checks: map[string]CheckResult{
				"startup": {Status: StatusUnhealthy, Message: "service is still starting up"},
			},
		})
	}
	return c.HealthHandler(ctx)
}

// HealthHandler runs every check and reports the combined status
func (c *Checker) HealthHandler(ctx echo.Context) error {
	checks := c.runChecks(ctx.Request().Context())
	overallStatus := calculateOverallStatus(checks)

	statusCode := http.StatusOK
	if overallStatus == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return ctx.JSON(statusCode, Response{
		Status:     overallStatus,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     checks,
		ReportedAt: time.Now(),
	})
}

// runChecks runs all checks concurrently.
func (c *Checker) runChecks(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	funcs := make([]CheckFunc, len(names))
	for i, name := range names {
		funcs[i] = c.checks[name]
	}
	c.mu.RUnlock()

	results := make([]CheckResult, len(names))
	var wg sync.WaitGroup
	for i := range funcs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = funcs[i](ctx)
		}(i)
	}
	wg.Wait()

	checks := make(map[string]CheckResult, len(names))
	for i, name := range names {
		checks[name] = results[i]
	}
	return checks
}

// calculateOverallStatus determines the overall health status
func calculateOverallStatus(checks map[string]CheckResult) Status {
	hasDegraded := false
	for _, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			hasDegraded = true
		}
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// RegisterRoutes registers health check routes under /api/v1
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	health := e.Group("/api/v1/health")

	health.GET("", c.HealthHandler)
	health.GET("/live", c.LivenessHandler)
	health.GET("/ready", c.ReadinessHandler)
}
