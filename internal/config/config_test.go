package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("mcpchat", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	s, err := Load(newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultModelType, s.ModelType)
	assert.Equal(t, DefaultModelName, s.ModelName)
	assert.Equal(t, DefaultConfigFile, s.ConfigFile)
	assert.Equal(t, DefaultLogLevel, s.LogLevel)
	assert.Empty(t, s.ModelURL)
	assert.Empty(t, s.Query)
}

func TestLoadPrecedence(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".mcpchat"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".mcpchat", "config.yaml"),
		[]byte("model-name: from-file\nlog-level: debug\nmodel-url: http://file:11434\n"), 0o644))
	t.Setenv("MCPCHAT_MODEL_URL", "http://env:11434")

	s, err := Load(newFlags(t, "-t", "OpenAI", "-q", "hello", "--api-key", "sk-test"))
	require.NoError(t, err)

	assert.Equal(t, "openai", s.ModelType)
	assert.Equal(t, "from-file", s.ModelName)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, "http://env:11434", s.ModelURL)
	assert.Equal(t, "hello", s.Query)

	cfg := s.ModelConfig()
	assert.Equal(t, "openai", cfg.Type)
	assert.Equal(t, "sk-test", cfg.APIKey)
}

func TestLoadRejectsUnknownModelType(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := Load(newFlags(t, "--model-type", "gemini"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported model type")
}

func TestValidate(t *testing.T) {
	s := Settings{ModelType: "ollama", ModelName: "m", ConfigFile: "c.json"}
	assert.NoError(t, s.Validate())

	s.ModelName = " "
	assert.Error(t, s.Validate())
}
