package mcp

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/go-logr/logr"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kagent-dev/mcpchat/pkg/registry"
)

const (
	// Upper bound for a single HTTP exchange with a networked service. Session
	// operations are bounded separately by the service timeout.
	defaultHTTPTimeout = 30 * time.Minute

	// MinOperationTimeout is the smallest per-operation timeout honoured.
	MinOperationTimeout = 1 * time.Second
)

// NewTransport creates the go-sdk transport for a service.
func NewTransport(ctx context.Context, svc registry.Service) (mcpsdk.Transport, error) {
	log := logr.FromContextOrDiscard(ctx)

	kind, err := svc.Kind()
	if err != nil {
		return nil, err
	}

	switch kind {
	case registry.KindSubprocess:
		exe, args, err := svc.CommandLine()
		if err != nil {
			return nil, err
		}
		cmd := exec.Command(exe, args...)
		cmd.Env = svc.Environ(os.Environ())
		cmd.Stderr = os.Stderr
		log.V(1).Info("Creating subprocess transport", "service", svc.Name, "command", exe, "args", args)
		return &mcpsdk.CommandTransport{Command: cmd}, nil

	case registry.KindSSE, registry.KindStreamableHTTP:
		var rt http.RoundTripper = http.DefaultTransport
		if len(svc.Headers) > 0 {
			rt = &headerRoundTripper{base: rt, headers: svc.Headers}
		}
		httpClient := &http.Client{Timeout: defaultHTTPTimeout, Transport: rt}

		log.V(1).Info("Creating network transport", "service", svc.Name, "kind", kind, "url", svc.URL)
		if kind == registry.KindSSE {
			return &mcpsdk.SSEClientTransport{Endpoint: svc.URL, HTTPClient: httpClient}, nil
		}
		return &mcpsdk.StreamableClientTransport{Endpoint: svc.URL, HTTPClient: httpClient}, nil
	}

	return nil, fmt.Errorf("no transport for service %q of kind %q", svc.Name, kind)
}

// operationContext bounds session work against svc by its configured timeout.
func operationContext(ctx context.Context, svc registry.Service) (context.Context, context.CancelFunc) {
	if svc.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	timeout := time.Duration(svc.Timeout * float64(time.Second))
	if timeout < MinOperationTimeout {
		timeout = MinOperationTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// headerRoundTripper adds fixed headers to every request.
type headerRoundTripper struct {
	base    http.RoundTripper
	headers map[string]string
}

func (rt *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for key, value := range rt.headers {
		req.Header.Set(key, value)
	}
	return rt.base.RoundTrip(req)
}
