package fetch

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const ToolName = "fetch"

// Tool serves the fetch MCP tool.
type Tool struct {
	fetcher *Fetcher
	metrics *Metrics
	log     logr.Logger
}

func NewTool(fetcher *Fetcher, metrics *Metrics, log logr.Logger) *Tool {
	return &Tool{fetcher: fetcher, metrics: metrics, log: log}
}

// Register adds the fetch tool to s.
func (t *Tool) Register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool(ToolName,
		mcp.WithDescription("Fetches a website and returns its content"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("URL to fetch"),
		),
	), t.handle)
}

func (t *Tool) handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageURL := mcp.ParseString(request, "url", "")
	if pageURL == "" {
		t.metrics.observe(outcomeError, 0)
		return mcp.NewToolResultError("Missing required argument 'url'"), nil
	}

	start := time.Now()
	markdown, err := t.fetcher.Fetch(ctx, pageURL)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		t.metrics.observe(outcomeError, elapsed)
		t.log.Error(err, "Fetch failed", "url", pageURL)
		return mcp.NewToolResultError(err.Error()), nil
	}

	t.metrics.observe(outcomeSuccess, elapsed)
	t.log.Info("Fetched page", "url", pageURL, "bytes", len(markdown), "durationSeconds", elapsed)
	return mcp.NewToolResultText(markdown), nil
}
