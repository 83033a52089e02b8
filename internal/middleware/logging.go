// Package middleware provides Echo middleware for logging, metrics and
// request guarding.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/labstack/echo/v4"
)

// probeRoutes are polled by health checks; they log at debug.
var probeRoutes = []string{"/healthz", "/proxy/status"}

// RequestLogger returns an Echo middleware that logs each request with slog.
// Relay sessions can stay open for minutes while a worker cold starts, so the
// line is written when the response body is finished, not when headers go out.
// Scrapes of metricsPath also log at debug; pass "" when metrics are not served.
func RequestLogger(logger *slog.Logger, metricsPath string) echo.MiddlewareFunc {
	quiet := probeRoutes
	if metricsPath != "" {
		quiet = append(slices.Clone(probeRoutes), metricsPath)
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			logger.Log(req.Context(), requestLevel(quiet, req.URL.Path, res.Status), "request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
				"client_gone", errors.Is(req.Context().Err(), context.Canceled),
			)

			return err
		}
	}
}

func requestLevel(quiet []string, path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelWarn
	case slices.Contains(quiet, path):
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
