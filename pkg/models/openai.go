package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"
	"github.com/openai/openai-go/v3/shared/constant"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIBackend talks to the OpenAI chat completions API or a compatible endpoint.
type OpenAIBackend struct {
	config Config
	client openai.Client
	logger logr.Logger
}

// NewOpenAIBackend builds an OpenAI backend. The API key comes from the config,
// then OPENAI_API_KEY. A custom base URL may run without a key.
func NewOpenAIBackend(cfg Config, logger logr.Logger) (*OpenAIBackend, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		apiKey = "ollama" // placeholder for compatible endpoints that ignore the key
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClientFor(cfg)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	logger.V(1).Info("Initialized OpenAI backend", "model", cfg.Model, "baseUrl", cfg.BaseURL)
	return &OpenAIBackend{config: cfg, client: openai.NewClient(opts...), logger: logger}, nil
}

func (b *OpenAIBackend) Name() string  { return TypeOpenAI }
func (b *OpenAIBackend) Model() string { return b.config.Model }

func (b *OpenAIBackend) BaseURL() string {
	if b.config.BaseURL == "" {
		return defaultOpenAIBaseURL
	}
	return b.config.BaseURL
}

func (b *OpenAIBackend) Send(ctx context.Context, messages []Message, tools []ToolDeclaration) (*Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(b.config.Model),
		Messages: toOpenAIMessages(messages),
	}
	if len(tools) > 0 {
		params.Tools = toOpenAITools(tools)
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String("auto"),
		}
	}
	if b.config.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(b.config.MaxTokens))
	}

	completion, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("openai: no choices in response")
	}

	msg := completion.Choices[0].Message
	reply := &Message{Role: RoleAssistant, Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		if tc.Type != "function" || tc.Function.Name == "" {
			continue
		}
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return reply, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		case RoleAssistant:
			asst := openai.ChatCompletionAssistantMessageParam{
				Role: constant.Assistant("assistant"),
			}
			for _, tc := range m.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID:   tc.ID,
						Type: constant.Function("function"),
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: argumentsString(tc.Arguments),
						},
					},
				})
			}
			if m.Content != "" {
				asst.Content.OfString = param.NewOpt(m.Content)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		}
	}
	return out
}

func toOpenAITools(tools []ToolDeclaration) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		params := make(shared.FunctionParameters, len(t.Parameters))
		for k, v := range t.Parameters {
			params[k] = v
		}
		def := shared.FunctionDefinitionParam{
			Name:        t.Name,
			Parameters:  params,
			Description: openai.String(t.Description),
		}
		out = append(out, openai.ChatCompletionFunctionTool(def))
	}
	return out
}

// argumentsString renders tool-call arguments in their serialized JSON form.
func argumentsString(args any) string {
	switch v := args.(type) {
	case nil:
		return "{}"
	case string:
		return v
	case json.RawMessage:
		return string(v)
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}
