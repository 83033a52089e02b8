// Package client provides the upstream HTTP client for the RunPod serverless API.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"runpod-proxy/internal/config"
	"runpod-proxy/internal/metrics"
	"runpod-proxy/internal/model"
)

// UpstreamClient sends relayed requests to the provider.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling.
//
// The client has no overall timeout: generation responses are streamed and
// may legitimately run for minutes. Only the wait for response headers is
// bounded, by upstream.cold_start_timeout_seconds, which has to cover a worker
// being provisioned. The metrics parameter is optional; pass nil to disable
// upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost:   cfg.Upstream.IdleConnections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Upstream.ColdStartTimeout(),
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		// Bodies are relayed byte-for-byte, including their Content-Encoding.
		DisableCompression: true,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			// Redirects are relayed to the caller, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Do executes an HTTP request against the upstream and returns the raw response.
// The caller is responsible for closing the response body.
func (c *UpstreamClient) Do(req *http.Request) (*model.ProxyResponse, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	elapsed := time.Since(start)

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamTTFB.WithLabelValues(method).Observe(elapsed.Seconds())
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		c.metrics.UpstreamTTFB.WithLabelValues(method).Observe(elapsed.Seconds())
		c.metrics.UpstreamResponses.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	}

	c.logger.Debug("upstream response headers",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", elapsed.Milliseconds(),
	)

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// DoStream executes a request and returns the response body as a stream.
// The caller is responsible for closing the returned ReadCloser.
// The provided context controls the lifetime of the upstream request:
// when the context is canceled (e.g. client disconnects), the upstream
// request is also canceled. A contentLength of -1 sends body chunked.
func (c *UpstreamClient) DoStream(ctx context.Context, method, url string, header http.Header, body io.ReadCloser, contentLength int64) (*model.ProxyResponse, error) {
	if body == nil || contentLength == 0 {
		body = http.NoBody
		contentLength = 0
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header
	req.ContentLength = contentLength

	return c.Do(req)
}
