package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// DefaultOllamaURL is the local Ollama server.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaBackend talks to the native Ollama chat API.
type OllamaBackend struct {
	config Config
	client *http.Client
	logger logr.Logger
}

func NewOllamaBackend(cfg Config, logger logr.Logger) *OllamaBackend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	logger.V(1).Info("Initialized Ollama backend", "model", cfg.Model, "baseUrl", cfg.BaseURL)
	return &OllamaBackend{config: cfg, client: httpClientFor(cfg), logger: logger}
}

func (b *OllamaBackend) Name() string    { return TypeOllama }
func (b *OllamaBackend) Model() string   { return b.config.Model }
func (b *OllamaBackend) BaseURL() string { return b.config.BaseURL }

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaFunctionCall `json:"function"`
}

type ollamaFunctionCall struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

type ollamaTool struct {
	Type     string         `json:"type"`
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

func (b *OllamaBackend) Send(ctx context.Context, messages []Message, tools []ToolDeclaration) (*Message, error) {
	body := ollamaChatRequest{
		Model:    b.config.Model,
		Messages: toOllamaMessages(messages),
		Tools:    toOllamaTools(tools),
		Stream:   false,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ollama marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.config.BaseURL+"/api/chat", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama api: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama decode: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("ollama api: %s", out.Error)
	}

	reply := &Message{Role: RoleAssistant, Content: out.Message.Content}
	for _, tc := range out.Message.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{
			ID:        "call_" + uuid.NewString(),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return reply, nil
}

func toOllamaMessages(messages []Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		om := ollamaMessage{Role: string(m.Role), Content: m.Content}
		if m.Role == RoleTool {
			om.ToolName = m.Name
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, ollamaToolCall{
				Function: ollamaFunctionCall{Name: tc.Name, Arguments: argumentsObject(tc.Arguments)},
			})
		}
		out = append(out, om)
	}
	return out
}

func toOllamaTools(tools []ToolDeclaration) []ollamaTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]ollamaTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, ollamaTool{
			Type:     "function",
			Function: ollamaFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	return out
}

// argumentsObject renders tool-call arguments as a JSON object where possible.
// Strings that do not hold a JSON object are kept under "input".
func argumentsObject(args any) any {
	switch v := args.(type) {
	case nil:
		return map[string]any{}
	case string:
		var obj map[string]any
		if err := json.Unmarshal([]byte(v), &obj); err == nil && obj != nil {
			return obj
		}
		return map[string]any{"input": v}
	}
	return args
}
