package middleware

import (
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/marinlafare/real-chessism/pkg/context"
	"github.com/marinlafare/real-chessism/pkg/metrics"
)

// Logger logs one line per request and records the request metrics. Errors
// are rendered through the echo error handler first so the logged status is
// the one the client saw.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := strconv.Itoa(res.Status)
			metrics.RecordHTTPRequest(req.Method, route, status, elapsed.Seconds())

			log := logger.WithContext(req.Context()).WithFields(map[string]any{
				"request_id":    context.GetRequestID(req.Context()),
				"method":        req.Method,
				"uri":           req.RequestURI,
				"status":        res.Status,
				"route":         route,
				"remote_ip":     c.RealIP(),
				"user_agent":    req.UserAgent(),
				"response_time": elapsed,
				"response_size": strconv.FormatInt(res.Size, 10),
			})
			if res.Status >= 500 {
				log.Warn("Request")
			} else {
				log.Info("Request")
			}

			return nil
		}
	}
}
