package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"runpod-proxy/internal/config"
	"runpod-proxy/internal/metrics"
	"runpod-proxy/internal/model"
	"runpod-proxy/internal/service"
)

// statusClientClosedRequest is recorded when the caller goes away mid-relay.
// Nobody reads it; it keeps logs and metrics honest.
const statusClientClosedRequest = 499

const streamBufferSize = 32 * 1024

// bearerPattern matches bearer tokens in error messages.
var bearerPattern = regexp.MustCompile(`(?i)(bearer\s+)[^\s"',]+`)

// ProxyHandler relays /<endpoint-id>/... requests to the provider and streams
// the response back.
type ProxyHandler struct {
	service    *service.ProxyService
	logger     *slog.Logger
	metrics    *metrics.Metrics
	credential string
}

// NewProxyHandler creates a ProxyHandler. m may be nil.
func NewProxyHandler(svc *service.ProxyService, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service:    svc,
		logger:     logger.With("component", "proxy_handler"),
		metrics:    m,
		credential: cfg.Runpod.APIKey,
	}
}

// Handle runs one relay session.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()
	sess := model.NewSession(c.Response().Header().Get(echo.HeaderXRequestID))
	log := h.logger.With(
		"session_id", sess.ID,
		"method", req.Method,
		"path", req.URL.Path,
	)
	defer h.finish(sess, log, c)

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Path:          req.URL.EscapedPath(),
		RawQuery:      req.URL.RawQuery,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	out, err := h.service.Outbound(pr)
	if err != nil {
		h.advance(sess, log, model.StateErrored)
		return h.mapError(c, log, err)
	}
	sess.EndpointID = out.EndpointID
	log = log.With("endpoint_id", out.EndpointID)

	h.advance(sess, log, model.StateForwarding)
	resp, err := h.service.Forward(out)
	if err != nil {
		h.advance(sess, log, model.StateErrored)
		return h.mapError(c, log, err)
	}
	defer func() { _ = resp.Body.Close() }()

	h.advance(sess, log, model.StateStreamingResponse)

	dst := c.Response().Header()
	for key, vals := range resp.Header {
		dst[key] = vals
	}
	c.Response().WriteHeader(resp.StatusCode)

	// Once the status line is out, a failure can only truncate the body.
	if err := streamBody(c.Response(), resp.Body); err != nil {
		h.advance(sess, log, model.StateErrored)
		if req.Context().Err() != nil {
			log.Debug("client disconnected during streaming")
			return nil
		}
		log.Error("streaming response body", "err", h.sanitizeError(err))
		return nil
	}

	h.advance(sess, log, model.StateComplete)
	return nil
}

// streamBody copies body to w, flushing after every write so partial
// generations reach the caller as soon as the provider emits them.
func streamBody(w http.ResponseWriter, body io.Reader) error {
	rc := http.NewResponseController(w)
	buf := make([]byte, streamBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (h *ProxyHandler) advance(sess *model.Session, log *slog.Logger, next model.SessionState) {
	from := sess.State()
	if err := sess.Advance(next); err != nil {
		log.Error("relay session state", "err", err)
		return
	}
	log.Debug("relay session", "from", from.String(), "to", next.String())
}

func (h *ProxyHandler) finish(sess *model.Session, log *slog.Logger, c echo.Context) {
	state := sess.State()
	if !state.Terminal() {
		// Only reachable through a panic; Recover reports the cause.
		_ = sess.Advance(model.StateErrored)
		state = sess.State()
	}
	if h.metrics != nil {
		h.metrics.Sessions.WithLabelValues(state.String()).Inc()
	}
	log.Debug("relay session finished",
		"endpoint_id", sess.EndpointID,
		"state", state.String(),
		"status", c.Response().Status,
		"bytes_out", c.Response().Size,
		"duration_ms", sess.Elapsed().Milliseconds(),
	)
}

// mapError writes the response for a failed session. log carries the
// session attributes.
func (h *ProxyHandler) mapError(c echo.Context, log *slog.Logger, err error) error {
	if errors.Is(err, service.ErrMalformedRequest) {
		log.Debug("malformed request", "err", err)
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	if errors.Is(err, context.Canceled) && c.Request().Context().Err() != nil {
		log.Debug("client disconnected before upstream responded")
		return c.NoContent(statusClientClosedRequest)
	}

	log.Error("proxy error", "err", h.sanitizeError(err))

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "upstream request timed out",
		})
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "upstream did not respond within the cold start timeout",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream host unreachable",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream connection failed",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "upstream request failed",
	})
}

// sanitizeError redacts the credential and bearer tokens from error text.
func (h *ProxyHandler) sanitizeError(err error) string {
	msg := err.Error()
	if h.credential != "" {
		msg = strings.ReplaceAll(msg, h.credential, "[REDACTED]")
	}
	return bearerPattern.ReplaceAllString(msg, "${1}[REDACTED]")
}
