package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kagent-dev/mcpchat/pkg/models"
)

const (
	EnvPrefix = "MCPCHAT"

	DefaultModelType  = models.TypeOllama
	DefaultModelName  = "qwen2.5:32b"
	DefaultConfigFile = "mcp_config.json"
	DefaultLogLevel   = "info"
)

// Settings are the resolved mcpchat options. Flags win over MCPCHAT_* env
// vars, which win over $HOME/.mcpchat/config.yaml.
type Settings struct {
	ModelType    string `mapstructure:"model-type"`
	ModelName    string `mapstructure:"model-name"`
	ModelURL     string `mapstructure:"model-url"`
	ConfigFile   string `mapstructure:"config"`
	Service      string `mapstructure:"service"`
	Query        string `mapstructure:"query"`
	APIKey       string `mapstructure:"api-key"`
	SystemPrompt string `mapstructure:"system-prompt"`
	LogLevel     string `mapstructure:"log-level"`
}

// AddFlags registers every setting on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.StringP("model-type", "t", DefaultModelType, "Chat backend: ollama, openai or anthropic")
	fs.StringP("model-name", "n", DefaultModelName, "Model name")
	fs.StringP("model-url", "l", "", "Backend endpoint (default depends on the backend)")
	fs.StringP("config", "c", DefaultConfigFile, "MCP services file (JSON or YAML)")
	fs.StringP("service", "s", "", "Only load this service")
	fs.StringP("query", "q", "", "First user message")
	fs.String("api-key", "", "Backend API key")
	fs.String("system-prompt", "", "Base system prompt")
	fs.String("log-level", DefaultLogLevel, "Log level: debug, info, warn or error")
}

// Load resolves Settings from fs, the environment and the optional user
// config file. A missing config file is not an error.
func Load(fs *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	v.SetDefault("model-type", DefaultModelType)
	v.SetDefault("model-name", DefaultModelName)
	v.SetDefault("config", DefaultConfigFile)
	v.SetDefault("log-level", DefaultLogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	if home, err := os.UserHomeDir(); err == nil {
		v.SetConfigFile(filepath.Join(home, ".mcpchat", "config.yaml"))
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	s.ModelType = strings.ToLower(strings.TrimSpace(s.ModelType))
	return &s, s.Validate()
}

func (s *Settings) Validate() error {
	switch s.ModelType {
	case models.TypeOllama, models.TypeOpenAI, models.TypeAnthropic:
	default:
		return fmt.Errorf("unsupported model type %q", s.ModelType)
	}
	if strings.TrimSpace(s.ModelName) == "" {
		return errors.New("model name must not be empty")
	}
	if strings.TrimSpace(s.ConfigFile) == "" {
		return errors.New("config file must not be empty")
	}
	return nil
}

// ModelConfig converts the settings into a backend configuration.
func (s *Settings) ModelConfig() models.Config {
	return models.Config{
		Type:    s.ModelType,
		Model:   s.ModelName,
		BaseURL: s.ModelURL,
		APIKey:  s.APIKey,
	}
}
