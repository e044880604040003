package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kagent-dev/mcpchat/pkg/catalog"
	"github.com/kagent-dev/mcpchat/pkg/registry"
)

// Invoker calls a tool on the service that owns it, one fresh session per call.
type Invoker struct {
	connector Connector
	tracer    trace.Tracer
}

func NewInvoker(connector Connector) *Invoker {
	return &Invoker{connector: connector, tracer: otel.Tracer(tracerName)}
}

// Invoke resolves toolName against the catalog and calls it on the first owning
// service that answers. Later owners are tried, in catalog order, only when an
// earlier one fails. A tool-level error result counts as an answer.
//
// When no owner answered but at least one rejected the call at the protocol
// level (for example invalid params), the first rejection is returned as an
// error result so the model can correct itself.
//
// The returned error wraps ErrToolNotFound when no service owns the tool (no
// session is opened) or when every owner failed.
func (i *Invoker) Invoke(ctx context.Context, cat *catalog.Catalog, services []registry.Service, toolName string, arguments any) (*ToolResult, error) {
	log := logr.FromContextOrDiscard(ctx)

	owners := cat.Owners(toolName)
	if len(owners) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, toolName)
	}

	var (
		errs     *multierror.Error
		rejected *ToolResult
	)
	for _, owner := range owners {
		svc, ok := registry.Find(services, owner)
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf("%w: %s is not configured", ErrServiceUnreachable, owner))
			continue
		}

		start := time.Now()
		res, err := i.call(ctx, svc, toolName, arguments)
		elapsed := time.Since(start)
		if err != nil {
			log.Error(err, "Tool call failed", "tool", toolName, "service", svc.Name, "durationSeconds", elapsed.Seconds())
			errs = multierror.Append(errs, err)
			if rejected == nil {
				rejected = rejectionResult(svc.Name, toolName, err)
			}
			continue
		}
		log.Info("Tool executed", "tool", toolName, "service", svc.Name, "isError", res.IsError, "durationSeconds", elapsed.Seconds())
		return res, nil
	}
	if rejected != nil {
		log.Info("Returning tool rejection to the model", "tool", toolName, "service", rejected.Service)
		return rejected, nil
	}
	return nil, fmt.Errorf("%w: %q failed on every service: %w", ErrToolNotFound, toolName, errs.ErrorOrNil())
}

// rejectionResult converts a JSON-RPC rejection into an error result. It
// returns nil for any other failure.
func rejectionResult(service, toolName string, err error) *ToolResult {
	var rpcErr *jsonrpc.Error
	if !errors.Is(err, ErrToolRejected) || !errors.As(err, &rpcErr) {
		return nil
	}
	return &ToolResult{
		Service: service,
		Content: fmt.Sprintf("Error: %s rejected the call to %s: %s", service, toolName, rpcErr.Message),
		IsError: true,
	}
}

func (i *Invoker) call(ctx context.Context, svc registry.Service, toolName string, arguments any) (_ *ToolResult, err error) {
	log := logr.FromContextOrDiscard(ctx)

	ctx, span := i.tracer.Start(ctx, "mcp.call_tool", trace.WithAttributes(
		attribute.String("mcp.service", svc.Name),
		attribute.String("mcp.tool", toolName),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	opCtx, cancel := operationContext(ctx, svc)
	defer cancel()

	session, err := i.connector.Connect(opCtx, svc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrServiceUnreachable, svc.Name, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.V(1).Info("Closing MCP session failed", "service", svc.Name, "error", cerr.Error())
		}
	}()

	log.V(1).Info("Calling tool", "tool", toolName, "service", svc.Name, "arguments", arguments)
	res, err := session.CallTool(opCtx, &mcpsdk.CallToolParams{Name: toolName, Arguments: arguments})
	if err != nil {
		var rpcErr *jsonrpc.Error
		if errors.As(err, &rpcErr) {
			return nil, fmt.Errorf("%w: %s: call %s: %w", ErrToolRejected, svc.Name, toolName, err)
		}
		return nil, fmt.Errorf("%w: %s: call %s: %w", ErrServiceUnreachable, svc.Name, toolName, err)
	}
	return newToolResult(svc.Name, res), nil
}
