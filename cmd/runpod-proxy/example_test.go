package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestExampleCmd_Write(t *testing.T) {
	tests := []struct {
		name string
		cmd  exampleCmd
		want []string
	}{
		{
			name: "defaults",
			cmd:  exampleCmd{EndpointID: "ep123", Model: "ollama/llama3", Host: "127.0.0.1", Port: 5000},
			want: []string{
				`base_url="http://127.0.0.1:5000/ep123"`,
				`model="ollama/llama3"`,
				"runpod-proxy --port 5000",
				"/console/serverless/user/endpoint/ep123",
			},
		},
		{
			name: "ipv6 host and custom port",
			cmd:  exampleCmd{EndpointID: "abc", Model: "openai/gpt-oss", Host: "::1", Port: 5003},
			want: []string{`base_url="http://[::1]:5003/abc"`, `model="openai/gpt-oss"`},
		},
		{
			name: "id is path-escaped",
			cmd:  exampleCmd{EndpointID: "a b", Model: "m", Host: "127.0.0.1", Port: 5000},
			want: []string{`base_url="http://127.0.0.1:5000/a%20b"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.cmd.write(&buf); err != nil {
				t.Fatalf("write() error = %v", err)
			}
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestExampleCmd_EmptyID(t *testing.T) {
	cmd := exampleCmd{Model: "m", Host: "127.0.0.1", Port: 5000}
	if err := cmd.write(&bytes.Buffer{}); err == nil {
		t.Error("write() error = nil, want error for empty endpoint id")
	}
}
