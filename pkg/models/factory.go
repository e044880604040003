package models

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

const (
	TypeOllama    = "ollama"
	TypeOpenAI    = "openai"
	TypeAnthropic = "anthropic"
)

// Config selects and configures a chat backend.
type Config struct {
	Type    string
	Model   string
	BaseURL string
	APIKey  string
	// Headers are sent with every backend request.
	Headers map[string]string
	Timeout time.Duration
	// MaxTokens caps the reply length where the backend requires it.
	MaxTokens int
}

// ProviderFunc builds a backend for one model type.
type ProviderFunc func(cfg Config, logger logr.Logger) (ChatBackend, error)

// Factory maps model types to backend providers.
type Factory struct {
	providers map[string]ProviderFunc
}

// NewFactory returns a factory with the built-in backends registered.
func NewFactory() *Factory {
	f := &Factory{providers: make(map[string]ProviderFunc)}
	f.Register(TypeOllama, func(cfg Config, logger logr.Logger) (ChatBackend, error) {
		return NewOllamaBackend(cfg, logger), nil
	})
	f.Register(TypeOpenAI, func(cfg Config, logger logr.Logger) (ChatBackend, error) {
		return NewOpenAIBackend(cfg, logger)
	})
	f.Register(TypeAnthropic, func(cfg Config, logger logr.Logger) (ChatBackend, error) {
		return NewAnthropicBackend(cfg, logger)
	})
	return f
}

func (f *Factory) Register(modelType string, provider ProviderFunc) {
	f.providers[modelType] = provider
}

// New builds the backend registered for cfg.Type.
func (f *Factory) New(cfg Config, logger logr.Logger) (ChatBackend, error) {
	provider, ok := f.providers[strings.ToLower(cfg.Type)]
	if !ok {
		return nil, fmt.Errorf("unsupported model type %q (supported: %s)", cfg.Type, strings.Join(f.SupportedTypes(), ", "))
	}
	return provider(cfg, logger)
}

// SupportedTypes returns the registered model types, sorted.
func (f *Factory) SupportedTypes() []string {
	types := make([]string, 0, len(f.providers))
	for t := range f.providers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// NewBackend builds a backend with the default factory.
func NewBackend(cfg Config, logger logr.Logger) (ChatBackend, error) {
	return NewFactory().New(cfg, logger)
}

func httpClientFor(cfg Config) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	client := &http.Client{Timeout: timeout}
	if len(cfg.Headers) > 0 {
		client.Transport = &headerTransport{base: http.DefaultTransport, headers: cfg.Headers}
	}
	return client
}

// headerTransport adds custom headers to all requests.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
