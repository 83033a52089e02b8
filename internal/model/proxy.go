// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest is a request on either leg of a relay. The handler fills it from
// the inbound request; the service derives the outbound one from it.
type ProxyRequest struct {
	Ctx        context.Context
	Method     string
	EndpointID string
	Path       string // escaped path; for inbound requests it includes the endpoint prefix
	RawQuery   string
	Header     http.Header
	Body       io.ReadCloser
	// ContentLength is -1 when the body length is unknown (chunked).
	ContentLength int64
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
