package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"runpod-proxy/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

type statusResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	UpstreamURL string `json:"upstream_url"`
	ListenAddr  string `json:"listen_addr"`
	Debug       bool   `json:"debug"`
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information. The credential is never included.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Status:      "ok",
		Version:     string(h.version),
		UpstreamURL: h.cfg.Upstream.BaseURL,
		ListenAddr:  h.cfg.Server.Addr(),
		Debug:       h.cfg.Debug,
	})
}
