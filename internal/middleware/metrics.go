package middleware

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"runpod-proxy/internal/metrics"
)

const statusClientClosedRequest = 499

// MetricsMiddleware returns an Echo middleware that records Prometheus metrics
// for each inbound request. Duration covers the whole streamed body.
// metricsPath is the exposition route, or empty when it is not served.
func MetricsMiddleware(m *metrics.Metrics, metricsPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)

			labels := []string{
				metrics.NormalizeMethod(c.Request().Method),
				strconv.Itoa(resolveStatus(c, err)),
				metrics.NormalizePath(c.Request().URL.Path, metricsPath),
			}
			m.RequestsTotal.WithLabelValues(labels...).Inc()
			m.RequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// resolveStatus returns the status the caller saw. An *echo.HTTPError has not
// been written yet when the middleware runs, and a caller that disconnected
// after headers went out never saw the end of the body.
func resolveStatus(c echo.Context, err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	res := c.Response()
	if res.Committed && errors.Is(c.Request().Context().Err(), context.Canceled) {
		return statusClientClosedRequest
	}
	return res.Status
}
