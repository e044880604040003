package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kagent-dev/mcpchat/pkg/catalog"
	"github.com/kagent-dev/mcpchat/pkg/registry"
)

const tracerName = "github.com/kagent-dev/mcpchat/pkg/mcp"

// Aggregator builds the tool catalog by listing the tools of every service.
type Aggregator struct {
	connector Connector
	tracer    trace.Tracer
}

func NewAggregator(connector Connector) *Aggregator {
	return &Aggregator{connector: connector, tracer: otel.Tracer(tracerName)}
}

// Aggregate visits services in order and concatenates their tools. A service
// that cannot be reached or listed is logged and skipped; the returned error
// collects those failures and does not invalidate the catalog.
func (a *Aggregator) Aggregate(ctx context.Context, services []registry.Service) (*catalog.Catalog, error) {
	log := logr.FromContextOrDiscard(ctx)

	var (
		tools []catalog.Tool
		errs  *multierror.Error
	)
	log.Info("Collecting tools from MCP services", "serviceCount", len(services))
	for _, svc := range services {
		serviceTools, err := a.ListServiceTools(ctx, svc)
		if err != nil {
			log.Error(err, "Failed to fetch tools from MCP service", "service", svc.Name, "target", svc.Target())
			errs = multierror.Append(errs, err)
			continue
		}
		log.Info("Loaded tools from MCP service", "service", svc.Name, "toolCount", len(serviceTools))
		tools = append(tools, serviceTools...)
	}

	cat := catalog.New(tools)
	for _, conflict := range cat.Conflicts() {
		log.Info("WARNING: tool is exposed by several services, the first one wins",
			"tool", conflict.Tool, "services", strings.Join(conflict.Services, ","))
	}
	return cat, errs.ErrorOrNil()
}

// ListServiceTools opens a session to svc and returns every tool it lists.
func (a *Aggregator) ListServiceTools(ctx context.Context, svc registry.Service) (_ []catalog.Tool, err error) {
	log := logr.FromContextOrDiscard(ctx)

	ctx, span := a.tracer.Start(ctx, "mcp.list_tools", trace.WithAttributes(attribute.String("mcp.service", svc.Name)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	opCtx, cancel := operationContext(ctx, svc)
	defer cancel()

	session, err := a.connector.Connect(opCtx, svc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrServiceUnreachable, svc.Name, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.V(1).Info("Closing MCP session failed", "service", svc.Name, "error", cerr.Error())
		}
	}()

	var tools []catalog.Tool
	params := &mcpsdk.ListToolsParams{}
	for {
		res, err := session.ListTools(opCtx, params)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: list tools: %w", ErrServiceUnreachable, svc.Name, err)
		}
		for _, t := range res.Tools {
			if t == nil {
				continue
			}
			tools = append(tools, catalog.Tool{
				Service:     svc.Name,
				Name:        t.Name,
				Description: t.Description,
				InputSchema: schemaToMap(t.InputSchema),
			})
			log.V(1).Info("MCP tool", "service", svc.Name, "tool", t.Name, "description", t.Description)
		}
		if res.NextCursor == "" {
			break
		}
		params = &mcpsdk.ListToolsParams{Cursor: res.NextCursor}
	}
	span.SetAttributes(attribute.Int("mcp.tool_count", len(tools)))
	return tools, nil
}
