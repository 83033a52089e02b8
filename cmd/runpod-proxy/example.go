package main

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"text/template"
)

const consoleURL = "https://www.runpod.io/console/serverless/user/endpoint/"

var exampleTmpl = template.Must(template.New("example").Parse(`# Start the proxy:
#   RUNPOD_API_KEY=<your key> runpod-proxy --port {{.Port}}
#
# Endpoint console: {{.Console}}

from litellm import completion

response = completion(
    model="{{.Model}}",
    messages=[{"role": "user", "content": "Why is the sky blue?"}],
    base_url="{{.BaseURL}}",
    stream=True,
)
for chunk in response:
    print(chunk.choices[0].delta.content or "", end="", flush=True)
`))

type exampleCmd struct {
	EndpointID string `arg:"" name:"endpoint-id" help:"Serverless endpoint id."`
	Model      string `short:"m" default:"ollama/llama3" help:"Model name passed to the client."`
	Host       string `default:"127.0.0.1" help:"Host the proxy listens on."`
	Port       int    `short:"p" default:"5000" env:"PORT" help:"Port the proxy listens on."`
}

type exampleData struct {
	Model   string
	BaseURL string
	Port    int
	Console string
}

func (c *exampleCmd) Run() error {
	return c.write(os.Stdout)
}

func (c *exampleCmd) write(w io.Writer) error {
	if c.EndpointID == "" {
		return fmt.Errorf("endpoint id must not be empty")
	}
	id := url.PathEscape(c.EndpointID)
	return exampleTmpl.Execute(w, exampleData{
		Model:   c.Model,
		BaseURL: "http://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) + "/" + id,
		Port:    c.Port,
		Console: consoleURL + id,
	})
}
