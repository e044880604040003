package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kagent-dev/mcpchat/pkg/catalog"
	"github.com/kagent-dev/mcpchat/pkg/mcp"
	"github.com/kagent-dev/mcpchat/pkg/models"
	"github.com/kagent-dev/mcpchat/pkg/registry"
)

// ErrArgumentParse marks tool-call arguments that are not valid JSON. The loop
// recovers by passing the raw value on.
var ErrArgumentParse = errors.New("malformed tool-call arguments")

// State of the conversation loop.
type State int

const (
	StateAwaitingModel State = iota
	StateProcessingToolCalls
	StateAwaitingUserInput
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "AWAITING_MODEL"
	case StateProcessingToolCalls:
		return "PROCESSING_TOOL_CALLS"
	case StateAwaitingUserInput:
		return "AWAITING_USER_INPUT"
	case StateTerminated:
		return "TERMINATED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

const defaultPrompt = "> "

// ToolInvoker calls a tool on the service that owns it.
type ToolInvoker interface {
	Invoke(ctx context.Context, cat *catalog.Catalog, services []registry.Service, toolName string, arguments any) (*mcp.ToolResult, error)
}

// Options wires a Loop to its collaborators.
type Options struct {
	Backend  models.ChatBackend
	Invoker  ToolInvoker
	Catalog  *catalog.Catalog
	Services []registry.Service
	Console  Console
	// SystemPrompt is the full system message. Empty means no system message.
	SystemPrompt string
}

// Loop drives one chat run: model turns, tool calls and operator input.
type Loop struct {
	backend  models.ChatBackend
	invoker  ToolInvoker
	catalog  *catalog.Catalog
	services []registry.Service
	console  Console
	tools    []models.ToolDeclaration
	tracer   trace.Tracer

	conv    *Conversation
	state   State
	pending []models.ToolCall
}

func NewLoop(opts Options) *Loop {
	return &Loop{
		backend:  opts.Backend,
		invoker:  opts.Invoker,
		catalog:  opts.Catalog,
		services: opts.Services,
		console:  opts.Console,
		tools:    opts.Catalog.Declarations(),
		tracer:   otel.Tracer("github.com/kagent-dev/mcpchat/pkg/chat"),
		conv:     NewConversation(opts.SystemPrompt),
		state:    StateAwaitingUserInput,
	}
}

func (l *Loop) Conversation() *Conversation { return l.conv }
func (l *Loop) State() State                { return l.state }

// Run starts with query as the first user message, or asks the operator for
// one when query is blank, and steps until the loop terminates. Model
// failures and tools that could not be invoked anywhere end the run with an
// error.
func (l *Loop) Run(ctx context.Context, query string) error {
	if q := strings.TrimSpace(query); q != "" {
		l.conv.Append(models.UserMessage(q))
		l.state = StateAwaitingModel
	}
	for l.state != StateTerminated {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Step performs the work of the current state and moves to the next one.
func (l *Loop) Step(ctx context.Context) error {
	switch l.state {
	case StateAwaitingModel:
		return l.awaitModel(ctx)
	case StateProcessingToolCalls:
		return l.processToolCalls(ctx)
	case StateAwaitingUserInput:
		return l.awaitUserInput(ctx)
	}
	return nil
}

func (l *Loop) awaitModel(ctx context.Context) error {
	log := logr.FromContextOrDiscard(ctx)

	ctx, span := l.tracer.Start(ctx, "chat.model_turn", trace.WithAttributes(
		attribute.String("chat.backend", l.backend.Name()),
		attribute.String("chat.model", l.backend.Model()),
		attribute.Int("chat.messages", l.conv.Len()),
	))
	defer span.End()

	log.V(1).Info("Sending conversation to model", "backend", l.backend.Name(), "messages", l.conv.Len(), "tools", len(l.tools))
	start := time.Now()
	stop := l.console.Busy("Thinking...")
	reply, err := l.backend.Send(ctx, l.conv.Messages(), l.tools)
	stop()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %s: %w", models.ErrBackend, l.backend.Name(), err)
	}
	log.V(1).Info("Model replied", "toolCalls", len(reply.ToolCalls), "durationSeconds", time.Since(start).Seconds())

	reply.Role = models.RoleAssistant
	l.conv.Append(*reply)
	if reply.Content != "" {
		renderAssistant(l.console.Writer(), reply.Content)
	}

	if len(reply.ToolCalls) > 0 {
		l.pending = reply.ToolCalls
		l.state = StateProcessingToolCalls
		return nil
	}
	l.state = StateAwaitingUserInput
	return nil
}

func (l *Loop) processToolCalls(ctx context.Context) error {
	log := logr.FromContextOrDiscard(ctx)
	out := l.console.Writer()

	for _, call := range l.pending {
		args, err := ParseArguments(call.Arguments)
		if err != nil {
			log.V(1).Info("Passing raw tool arguments", "tool", call.Name, "reason", err.Error())
		}
		renderToolCall(out, call, args)

		res, err := l.invoker.Invoke(ctx, l.catalog, l.services, call.Name, args)
		if err != nil {
			return err
		}
		msg := models.ToolMessage(call, res.Content)
		msg.IsError = res.IsError
		l.conv.Append(msg)
		renderToolResult(out, res)
	}
	l.pending = nil
	l.state = StateAwaitingModel
	return nil
}

func (l *Loop) awaitUserInput(ctx context.Context) error {
	out := l.console.Writer()

	line, err := l.console.ReadLine(defaultPrompt)
	if err != nil {
		if errors.Is(err, io.EOF) {
			l.state = StateTerminated
			return nil
		}
		return fmt.Errorf("reading input: %w", err)
	}

	input := strings.TrimSpace(line)
	if input == "" {
		renderNotice(out, "Input must not be empty.")
		return nil
	}

	switch strings.ToLower(input) {
	case "exit":
		l.state = StateTerminated
	case "clear":
		l.conv.Clear()
		renderNotice(out, "Conversation cleared.")
	case "reset":
		l.conv.Reset()
		renderNotice(out, "Conversation reset.")
	case "tools":
		renderTools(out, l.catalog)
	case "services":
		renderServices(out, l.services)
	case "model":
		fmt.Fprintf(out, "Model: %s (%s)\n", l.backend.Model(), l.backend.Name())
	case "url":
		fmt.Fprintf(out, "Model URL: %s\n", l.backend.BaseURL())
	case "help":
		renderHelp(out)
	default:
		l.conv.Append(models.UserMessage(input))
		l.state = StateAwaitingModel
	}
	return nil
}

// ParseArguments decodes serialized tool-call arguments. Values that are not
// strings are returned as they are and a blank string becomes an empty object.
// When the string is not valid JSON it is returned unchanged together with an
// error wrapping ErrArgumentParse.
func ParseArguments(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		if raw == nil {
			return map[string]any{}, nil
		}
		return raw, nil
	}
	if strings.TrimSpace(s) == "" {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s, fmt.Errorf("%w: %w", ErrArgumentParse, err)
	}
	return v, nil
}
