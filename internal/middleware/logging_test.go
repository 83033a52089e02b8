package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequestLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := echo.New()
	e.Use(RequestLogger(logger, ""))
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	e := echo.New()
	e.Use(RequestLogger(logger, ""))
	e.Any("/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "streamed")
	})

	req := httptest.NewRequest(http.MethodPost, "/ep1/api/generate", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	out := buf.String()
	for _, want := range []string{"method=POST", "path=/ep1/api/generate", "status=200", "bytes_out=8", "client_gone=false"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}

func TestRequestLevel(t *testing.T) {
	quiet := []string{"/healthz", "/proxy/status", "/prom"}
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/ep1/run", 200, slog.LevelInfo},
		{"/ep1/run", 400, slog.LevelInfo},
		{"/ep1/run", 502, slog.LevelWarn},
		{"/healthz", 200, slog.LevelDebug},
		{"/proxy/status", 200, slog.LevelDebug},
		{"/prom", 200, slog.LevelDebug},
		{"/metrics", 200, slog.LevelInfo},
		{"/healthz", 503, slog.LevelWarn},
		{"/healthz/run", 200, slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := requestLevel(quiet, tt.path, tt.status); got != tt.want {
			t.Errorf("requestLevel(%q, %d) = %v, want %v", tt.path, tt.status, got, tt.want)
		}
	}
}

func TestRequestLogger_MetricsPath(t *testing.T) {
	tests := []struct {
		name        string
		metricsPath string
		path        string
		wantLogged  bool
	}{
		{"custom scrape path is quiet", "/prom", "/prom", false},
		{"default path relayed when metrics off", "", "/metrics", true},
		{"default path relayed when served elsewhere", "/prom", "/metrics", true},
		{"health probe is quiet", "/prom", "/healthz", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
			e := echo.New()
			e.Use(RequestLogger(logger, tt.metricsPath))
			e.Any("/*", func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})

			e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))

			if logged := buf.Len() > 0; logged != tt.wantLogged {
				t.Errorf("logged at info = %v, want %v: %s", logged, tt.wantLogged, buf.String())
			}
		})
	}
}
