package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"runpod-proxy/internal/client"
	"runpod-proxy/internal/config"
	"runpod-proxy/internal/handler"
	"runpod-proxy/internal/metrics"
	"runpod-proxy/internal/middleware"
	"runpod-proxy/internal/netutil"
	"runpod-proxy/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// bindRetries bounds how often a port found free by the search may be lost to
// another process before the listener is bound.
const bindRetries = 3

type rootCLI struct {
	Version kong.VersionFlag `help:"Print version and exit."`

	Serve   config.CLI `cmd:"" default:"withargs" help:"Run the local proxy (default)."`
	Example exampleCmd `cmd:"" help:"Print a client configuration snippet for an endpoint."`
}

func main() {
	if err := config.LoadDotEnv(config.DotEnvFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var root rootCLI
	kctx := kong.Parse(&root,
		kong.Name("runpod-proxy"),
		kong.Description("Local forwarding proxy for RunPod serverless endpoints."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
		kong.UsageOnError(),
	)

	if kctx.Command() != "serve" {
		kctx.FatalIfErrorf(kctx.Run())
		return
	}

	cli := root.Serve
	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			newMetrics,
			newEcho,
			client.NewUpstreamClient,
			service.NewProxyService,
			handler.NewProxyHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, startServer),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		h = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(h)
}

// newMetrics returns nil when metrics are disabled; every consumer accepts nil.
func newMetrics(cfg *config.Config) *metrics.Metrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.New()
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Request bodies are streamed to the provider and responses can run for
	// as long as a generation does, so neither read nor write is bounded.
	e.Server.ReadTimeout = 0
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Pre(middleware.RelayGuard())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(logger.With("component", "http"), cfg.Metrics.ServedPath()))
	if m != nil {
		e.Use(middleware.MetricsMiddleware(m, cfg.Metrics.ServedPath()))
	}
	if cfg.Server.BodyMaxBytes > 0 {
		e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	}

	if cfg.Server.RateLimit.Enabled {
		e.Use(middleware.RateLimit(cfg.Server.RateLimit.RequestsPerSecond))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	return e
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

type listenFunc func(host string, port int) (net.Listener, error)

// bind acquires the listener. Unless strict_port is set, the preferred port is
// only a starting point for the free-port search.
func bind(srv *config.ServerConfig, listen listenFunc) (net.Listener, error) {
	if srv.StrictPort {
		return listen(srv.Host, srv.Port)
	}

	from := srv.Port
	var lastErr error
	for i := 0; i < bindRetries; i++ {
		port, err := netutil.SelectPort(srv.Host, from, srv.PortSearchAttempts)
		if err != nil {
			return nil, err
		}
		ln, err := listen(srv.Host, port)
		if err == nil {
			return ln, nil
		}
		lastErr = err
		if port >= 65535 {
			break
		}
		from = port + 1
	}
	return nil, lastErr
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			preferred := cfg.Server.Port
			ln, err := bind(&cfg.Server, netutil.Listen)
			if err != nil {
				return err
			}
			cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port

			if cfg.Server.Port != preferred {
				logger.Warn("preferred port busy, using next free port",
					"preferred", preferred,
					"port", cfg.Server.Port,
				)
			}
			logger.Info("starting proxy",
				"addr", cfg.Server.Addr(),
				"upstream", cfg.Upstream.BaseURL,
				"usage", fmt.Sprintf("http://%s/<endpoint-id>/...", cfg.Server.Addr()),
			)
			go func() {
				if err := e.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down proxy")
			return e.Shutdown(ctx)
		},
	})
}
