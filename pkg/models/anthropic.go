package models

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/go-logr/logr"
)

const (
	defaultAnthropicMaxTokens = 8192
	defaultAnthropicBaseURL   = "https://api.anthropic.com"
)

// AnthropicBackend talks to the Anthropic messages API.
type AnthropicBackend struct {
	config Config
	client anthropic.Client
	logger logr.Logger
}

// NewAnthropicBackend builds an Anthropic backend. The API key comes from the
// config, then ANTHROPIC_API_KEY.
func NewAnthropicBackend(cfg Config, logger logr.Logger) (*AnthropicBackend, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClientFor(cfg)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	logger.V(1).Info("Initialized Anthropic backend", "model", cfg.Model, "baseUrl", cfg.BaseURL)
	return &AnthropicBackend{config: cfg, client: anthropic.NewClient(opts...), logger: logger}, nil
}

func (b *AnthropicBackend) Name() string  { return TypeAnthropic }
func (b *AnthropicBackend) Model() string { return b.config.Model }

func (b *AnthropicBackend) BaseURL() string {
	if b.config.BaseURL == "" {
		return defaultAnthropicBaseURL
	}
	return b.config.BaseURL
}

func (b *AnthropicBackend) Send(ctx context.Context, messages []Message, tools []ToolDeclaration) (*Message, error) {
	converted, system := toAnthropicMessages(messages)

	maxTokens := int64(defaultAnthropicMaxTokens)
	if b.config.MaxTokens > 0 {
		maxTokens = int64(b.config.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.config.Model),
		Messages:  converted,
		MaxTokens: maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}

	message, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}

	reply := &Message{Role: RoleAssistant}
	var text []string
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
				text = append(text, tb.Text)
			}
		case "tool_use":
			if tu, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
				args, err := toolUseArguments(tu.Input)
				if err != nil {
					b.logger.V(1).Info("Passing raw tool_use input", "tool", tu.Name, "reason", err.Error())
				}
				reply.ToolCalls = append(reply.ToolCalls, ToolCall{ID: tu.ID, Name: tu.Name, Arguments: args})
			}
		}
	}
	reply.Content = strings.Join(text, "\n")
	return reply, nil
}

// toolUseArguments decodes a tool_use input into an object. Input that is not
// a JSON object is returned as its raw JSON text together with the error.
func toolUseArguments(input any) (any, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		if r, ok := input.(json.RawMessage); ok {
			return string(r), err
		}
		return input, err
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return string(raw), err
	}
	if args == nil {
		return map[string]any{}, nil
	}
	return args, nil
}

// toAnthropicMessages converts the history into alternating turns. System
// messages are lifted into the system prompt and consecutive tool results are
// folded into a single user turn.
func toAnthropicMessages(messages []Message) ([]anthropic.MessageParam, string) {
	var (
		out     []anthropic.MessageParam
		system  []string
		results []anthropic.ContentBlockParamUnion
	)
	flushResults := func() {
		if len(results) > 0 {
			out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleUser, Content: results})
			results = nil
		}
	}

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleTool:
			results = append(results, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, m.IsError))
		case RoleUser:
			flushResults()
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)},
			})
		case RoleAssistant:
			flushResults()
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, argumentsObject(tc.Arguments), tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant, Content: blocks})
			}
		}
	}
	flushResults()
	return out, strings.Join(system, "\n\n")
}

func toAnthropicTools(tools []ToolDeclaration) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{Properties: map[string]any{}}
		if props, ok := t.Parameters["properties"].(map[string]any); ok {
			schema.Properties = props
		}
		switch required := t.Parameters["required"].(type) {
		case []string:
			schema.Required = required
		case []any:
			for _, r := range required {
				if s, ok := r.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}
		tool := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: schema,
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out
}
