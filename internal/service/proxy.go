// Package service implements the core proxy forwarding logic.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"runpod-proxy/internal/client"
	"runpod-proxy/internal/config"
	"runpod-proxy/internal/model"
)

// ErrMalformedRequest is returned when the request path has no endpoint identifier.
var ErrMalformedRequest = errors.New("request path must start with an endpoint id: /<endpoint-id>/...")

// hopByHopHeaders are meaningful for a single transport leg only.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Request headers the transport recomputes or the proxy owns.
var recomputedRequestHeaders = []string{
	"Host",
	"Content-Length",
	"Authorization",
}

// ProxyService rewrites inbound requests onto the provider API.
type ProxyService struct {
	client     *client.UpstreamClient
	credential string
	logger     *slog.Logger
	baseURL    *url.URL
}

// NewProxyService creates a ProxyService.
func NewProxyService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) (*ProxyService, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream base_url %q must be absolute", cfg.Upstream.BaseURL)
	}

	return &ProxyService{
		client:     c,
		credential: cfg.Runpod.APIKey,
		logger:     logger.With("component", "proxy_service"),
		baseURL:    u,
	}, nil
}

// SplitEndpointPath splits an escaped request path into the endpoint id and
// the remainder, which is either empty or starts with "/".
func SplitEndpointPath(escapedPath string) (id, rest string, err error) {
	trimmed := strings.TrimPrefix(escapedPath, "/")
	id, rest, found := strings.Cut(trimmed, "/")
	if found {
		rest = "/" + rest
	}
	if id == "" {
		return "", "", ErrMalformedRequest
	}
	for _, seg := range strings.Split(id+rest, "/") {
		if isDotSegment(seg) {
			return "", "", fmt.Errorf("%w: dot segment in path", ErrMalformedRequest)
		}
	}
	if _, err := url.PathUnescape(id); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return id, rest, nil
}

// isDotSegment matches "." and "..", including percent-encoded forms.
func isDotSegment(seg string) bool {
	s, err := url.PathUnescape(seg)
	if err != nil {
		return false
	}
	return s == "." || s == ".."
}

// Forward sends an outbound request built by Outbound to the provider and
// returns its response. The caller is responsible for closing the response
// body.
func (s *ProxyService) Forward(out *model.ProxyRequest) (*model.ProxyResponse, error) {
	s.logger.Debug("forwarding request",
		"method", out.Method,
		"endpoint_id", out.EndpointID,
		"path", out.Path,
	)

	resp, err := s.client.DoStream(out.Ctx, out.Method, s.upstreamURL(out), out.Header, out.Body, out.ContentLength)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	resp.Header = FilterResponseHeaders(resp.Header)
	return resp, nil
}

// Outbound derives the upstream request from an inbound one. in.Path is the
// full inbound escaped path; its first segment selects the endpoint and is
// returned as EndpointID. Method, body, query and content length carry over
// unchanged; the configured credential replaces any caller Authorization.
func (s *ProxyService) Outbound(in *model.ProxyRequest) (*model.ProxyRequest, error) {
	id, rest, err := SplitEndpointPath(in.Path)
	if err != nil {
		return nil, err
	}

	header := filterRequestHeaders(in.Header)
	header.Set("Authorization", "Bearer "+s.credential)

	return &model.ProxyRequest{
		Ctx:           in.Ctx,
		Method:        in.Method,
		EndpointID:    id,
		Path:          strings.TrimSuffix(s.baseURL.EscapedPath(), "/") + "/" + id + rest,
		RawQuery:      in.RawQuery,
		Header:        header,
		Body:          in.Body,
		ContentLength: in.ContentLength,
	}, nil
}

func (s *ProxyService) upstreamURL(out *model.ProxyRequest) string {
	u := *s.baseURL
	u.RawPath = out.Path
	// Validated by SplitEndpointPath; fall back to the raw form otherwise.
	if p, err := url.PathUnescape(out.Path); err == nil {
		u.Path = p
	} else {
		u.Path = out.Path
	}
	u.RawQuery = out.RawQuery
	return u.String()
}

// filterRequestHeaders copies src minus hop-by-hop headers (including any
// named by Connection) and headers the transport or proxy sets itself.
func filterRequestHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	removeHopByHop(dst)
	for _, h := range recomputedRequestHeaders {
		dst.Del(h)
	}
	return dst
}

// FilterResponseHeaders copies src minus hop-by-hop headers.
func FilterResponseHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	removeHopByHop(dst)
	return dst
}

func removeHopByHop(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}
