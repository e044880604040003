package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kagent-dev/mcpchat/internal/version"
	"github.com/kagent-dev/mcpchat/pkg/registry"
)

// Session is an initialized MCP client session. *mcpsdk.ClientSession implements it.
type Session interface {
	ListTools(ctx context.Context, params *mcpsdk.ListToolsParams) (*mcpsdk.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error)
	Close() error
}

// Connector opens a session to a service, performing the initialize handshake.
type Connector interface {
	Connect(ctx context.Context, svc registry.Service) (Session, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, svc registry.Service) (Session, error)

func (f ConnectorFunc) Connect(ctx context.Context, svc registry.Service) (Session, error) {
	return f(ctx, svc)
}

// TransportFunc builds the transport for a service.
type TransportFunc func(ctx context.Context, svc registry.Service) (mcpsdk.Transport, error)

// SDKConnector connects with the official MCP go-sdk client.
type SDKConnector struct {
	impl      *mcpsdk.Implementation
	transport TransportFunc
}

// NewConnector returns a connector using NewTransport.
func NewConnector() *SDKConnector {
	return NewConnectorWithTransport(NewTransport)
}

// NewConnectorWithTransport returns a connector that obtains transports from fn.
func NewConnectorWithTransport(fn TransportFunc) *SDKConnector {
	return &SDKConnector{
		impl: &mcpsdk.Implementation{
			Name:    "mcpchat",
			Version: version.Get().Short(),
		},
		transport: fn,
	}
}

func (c *SDKConnector) Connect(ctx context.Context, svc registry.Service) (Session, error) {
	transport, err := c.transport(ctx, svc)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for %s: %w", svc.Name, err)
	}
	client := mcpsdk.NewClient(c.impl, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", svc.Name, err)
	}
	return session, nil
}

// ToolResult is the outcome of a tool call that reached its service.
type ToolResult struct {
	Service string
	// Content is the text of the result, non-text parts rendered as JSON.
	Content string
	// IsError reports a tool-level failure returned by the service.
	IsError bool
	Raw     *mcpsdk.CallToolResult
}

func newToolResult(service string, res *mcpsdk.CallToolResult) *ToolResult {
	out := &ToolResult{Service: service, Raw: res}
	if res == nil {
		return out
	}
	out.IsError = res.IsError

	var parts []string
	for _, c := range res.Content {
		switch v := c.(type) {
		case *mcpsdk.TextContent:
			parts = append(parts, v.Text)
		default:
			if b, err := json.Marshal(v); err == nil {
				parts = append(parts, string(b))
			}
		}
	}
	if len(parts) == 0 && res.StructuredContent != nil {
		if b, err := json.Marshal(res.StructuredContent); err == nil {
			parts = append(parts, string(b))
		}
	}
	out.Content = strings.Join(parts, "\n")
	return out
}

// schemaToMap converts a tool input schema of any representation into a plain map.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return nil
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
