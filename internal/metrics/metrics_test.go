package metrics

import (
	"testing"
)

func TestNew_GathersMetrics(t *testing.T) {
	m := New()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	// Should include at least Go runtime and process collectors.
	if len(families) == 0 {
		t.Fatal("expected non-empty metric families from Gather()")
	}

	m.RequestsTotal.WithLabelValues("GET", "200", "endpoint").Inc()
	m.Sessions.WithLabelValues("complete").Inc()
	m.UpstreamTTFB.WithLabelValues("POST").Observe(42)

	families, err = m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	want := map[string]bool{
		"runpod_proxy_http_requests_total":              false,
		"runpod_proxy_relay_sessions_total":             false,
		"runpod_proxy_upstream_time_to_headers_seconds": false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %s in gathered metrics", name)
		}
	}
}

func TestNormalizeMethod(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"GET", "GET"},
		{"POST", "POST"},
		{"OPTIONS", "OPTIONS"},
		{"XYZZY", "other"},
		{"get", "other"},
	}
	for _, tt := range tests {
		if got := NormalizeMethod(tt.in); got != tt.want {
			t.Errorf("NormalizeMethod(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path, metricsPath, want string
	}{
		{"/healthz", "/metrics", "/healthz"},
		{"/proxy/status", "/metrics", "/proxy/status"},
		{"/metrics", "/metrics", "/metrics"},
		{"/prom", "/prom", "/prom"},
		{"/metrics", "/prom", "endpoint"},
		{"/metrics", "", "endpoint"},
		{"/metrics/runsync", "/metrics", "endpoint"},
		{"/healthz/runsync", "/metrics", "endpoint"},
		{"/ep123/v1/models", "/metrics", "endpoint"},
		{"/ep123", "", "endpoint"},
		{"/healthzz/api/generate", "", "endpoint"},
		{"/", "", "other"},
		{"", "/metrics", "other"},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.path, tt.metricsPath); got != tt.want {
			t.Errorf("NormalizePath(%q, %q) = %q, want %q", tt.path, tt.metricsPath, got, tt.want)
		}
	}
}
