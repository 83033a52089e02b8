package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"runpod-proxy/internal/config"
	"runpod-proxy/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Static
// routes take precedence over the catch-all relay route.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, proxy *ProxyHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	e.Any("/", proxy.Handle)
	e.Any("/*", proxy.Handle)
}
