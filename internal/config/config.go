// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/runpod-proxy/config.toml",
	"configs/config.toml",
}

// ReservedPaths are served locally and never relayed upstream.
var ReservedPaths = []string{"/healthz", "/proxy/status"}

const placeholderAPIKey = "YOUR_API_KEY_HERE"

// CLI holds the serve command's flags, parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Preferred listen port (overrides config).',env='PORT'"`
	APIKey   string `kong:"help='RunPod API key (overrides config).',env='RUNPOD_API_KEY,RUNPOD_API_TOKEN'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	Debug    bool   `kong:"short='d',help='Log relay metadata for every request.',env='DEBUG'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Runpod   RunpodConfig   `toml:"runpod"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Debug    bool           `toml:"debug"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds local listener settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"` // preferred port; 0 means default (5000)
	// StrictPort disables the free-port search and binds Port or fails.
	StrictPort         bool            `toml:"strict_port"`
	PortSearchAttempts int             `toml:"port_search_attempts"`
	BodyMaxBytes       int64           `toml:"body_max_bytes"` // 0 means unlimited
	RateLimit          RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// RunpodConfig holds the RunPod credential.
type RunpodConfig struct {
	APIKey string `toml:"api_key"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	BaseURL string `toml:"base_url"`
	// ColdStartTimeoutSeconds bounds the wait for response headers, which
	// covers worker provisioning. Streaming bodies are not time-limited.
	ColdStartTimeoutSeconds int `toml:"cold_start_timeout_seconds"`
	IdleConnections         int `toml:"idle_connections"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file, if any, and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/runpod-proxy/config.toml then configs/config.toml. Without a file the
// proxy runs on defaults plus flags and environment.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.APIKey != "" {
		c.Runpod.APIKey = cli.APIKey
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.Debug {
		c.Debug = true
	}
}

func (c *Config) validate() error {
	switch strings.TrimSpace(c.Runpod.APIKey) {
	case "":
		return errors.New("runpod.api_key is required; set it in config, --api-key, or RUNPOD_API_KEY")
	case placeholderAPIKey:
		return errors.New("runpod.api_key contains placeholder value")
	}

	if c.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url is required")
	}
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil {
		return fmt.Errorf("upstream.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("upstream.base_url must use HTTPS; got %q", c.Upstream.BaseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("upstream.base_url must not carry a query or fragment; got %q", c.Upstream.BaseURL)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1–65535; got %d", c.Server.Port)
	}
	if c.Server.PortSearchAttempts < 0 {
		return fmt.Errorf("server.port_search_attempts must be non-negative; got %d", c.Server.PortSearchAttempts)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.ColdStartTimeoutSeconds < 0 {
		return fmt.Errorf("upstream.cold_start_timeout_seconds must be non-negative; got %d", c.Upstream.ColdStartTimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	if c.Metrics.Enabled {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range ReservedPaths {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with defaults.
// For integer fields zero means "unset" because TOML cannot distinguish an
// explicit 0 from an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.PortSearchAttempts == 0 {
		c.Server.PortSearchAttempts = 100
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "https://api.runpod.ai/v2"
	}
	if c.Upstream.ColdStartTimeoutSeconds == 0 {
		c.Upstream.ColdStartTimeoutSeconds = 600
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Debug {
		c.Log.Level = "debug"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// ColdStartTimeout returns the upstream response-header timeout.
func (c *UpstreamConfig) ColdStartTimeout() time.Duration {
	return time.Duration(c.ColdStartTimeoutSeconds) * time.Second
}

// ServedPath returns the metrics exposition route, or "" when metrics are
// disabled and the path is relayed like any other.
func (c *MetricsConfig) ServedPath() string {
	if !c.Enabled {
		return ""
	}
	return c.Path
}

// Addr returns the listen address as host:port.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
