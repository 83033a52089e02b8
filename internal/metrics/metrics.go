// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for local request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}

// coldStartBuckets stretch to ten minutes; a serverless worker boot can take that long.
var coldStartBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamTTFB      *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec
	Sessions          *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runpod_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "runpod_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds, including streamed bodies.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "runpod_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamTTFB: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "runpod_proxy_upstream_time_to_headers_seconds",
			Help:    "Time until upstream response headers arrive, including cold starts.",
			Buckets: coldStartBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runpod_proxy_upstream_responses_total",
			Help: "Total upstream responses by method and status code.",
		}, []string{"method", "status_code"}),

		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runpod_proxy_relay_sessions_total",
			Help: "Relay sessions by terminal state.",
		}, []string{"state"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamTTFB,
		m.UpstreamResponses,
		m.Sessions,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// localRoutes are the paths the proxy always answers itself.
var localRoutes = []string{"/healthz", "/proxy/status"}

// NormalizePath returns a bounded path label for Prometheus metrics. Local
// routes keep their path; everything else is relayed traffic and collapses to
// "endpoint" so endpoint ids and model paths never become label values.
// metricsPath is the exposition route, or empty when metrics are not served.
func NormalizePath(path, metricsPath string) string {
	if metricsPath != "" && path == metricsPath {
		return metricsPath
	}
	for _, route := range localRoutes {
		if path == route {
			return route
		}
	}
	if strings.Trim(path, "/") == "" {
		return "other"
	}
	return "endpoint"
}
