package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadJSONPreservesOrder(t *testing.T) {
	path := writeFile(t, "mcp_config.json", `{
  "mcpServers": {
    "zeta": {"type": "stream", "url": "http://localhost:8000/sse"},
    "alpha": {"command": "fetch-server --stdio", "env": {"FOO": "bar"}},
    "mid": {"type": "http", "url": "http://localhost:8000/mcp", "headers": {"X-Token": "t"}, "timeout": 5}
  }
}`)

	services, err := Load(path, "")
	require.NoError(t, err)
	require.Len(t, services, 3)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, []string{services[0].Name, services[1].Name, services[2].Name})

	kind, err := services[0].Kind()
	require.NoError(t, err)
	assert.Equal(t, KindSSE, kind)

	kind, err = services[1].Kind()
	require.NoError(t, err)
	assert.Equal(t, KindSubprocess, kind, "type defaults to subprocess")
	assert.Equal(t, map[string]string{"FOO": "bar"}, services[1].Env)

	assert.Equal(t, "t", services[2].Headers["X-Token"])
	assert.Equal(t, float64(5), services[2].Timeout)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "services.yaml", `
mcpServers:
  second:
    type: sse
    url: http://localhost:8000/sse
  first:
    type: stdio
    command: fetch-server --stdio
`)

	services, err := Load(path, "")
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "second", services[0].Name)
	assert.Equal(t, "first", services[1].Name)
	assert.Equal(t, "fetch-server --stdio", services[1].Command)
}

func TestLoadOnlyService(t *testing.T) {
	path := writeFile(t, "mcp_config.json", `{"mcpServers": {
		"a": {"command": "a"},
		"b": {"command": "b"}
	}}`)

	services, err := Load(path, "b")
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "b", services[0].Name)

	services, err = Load(path, "missing")
	require.NoError(t, err)
	assert.Empty(t, services)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown type", `{"mcpServers": {"x": {"type": "carrier-pigeon", "url": "http://x"}}}`},
		{"stream without url", `{"mcpServers": {"x": {"type": "stream"}}}`},
		{"subprocess without command", `{"mcpServers": {"x": {"type": "subprocess", "command": "   "}}}`},
		{"malformed json", `{"mcpServers": {`},
		{"servers not an object", `{"mcpServers": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.json", tt.content), "")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"), "")
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestLoadWithoutServers(t *testing.T) {
	services, err := Load(writeFile(t, "c.json", `{"other": 1}`), "")
	require.NoError(t, err)
	assert.Empty(t, services)
}

func TestCommandLine(t *testing.T) {
	svc := Service{Name: "x", Command: "  python   server.py --port 8000 "}
	exe, args, err := svc.CommandLine()
	require.NoError(t, err)
	assert.Equal(t, "python", exe)
	assert.Equal(t, []string{"server.py", "--port", "8000"}, args)
}

func TestEnviron(t *testing.T) {
	svc := Service{Env: map[string]string{"PATH": "/opt/bin", "NEW": "1", "ALSO": "2"}}
	got := svc.Environ([]string{"HOME=/root", "PATH=/usr/bin"})
	assert.Equal(t, []string{"HOME=/root", "PATH=/opt/bin", "ALSO=2", "NEW=1"}, got)
}

func TestTargetAndFind(t *testing.T) {
	services := []Service{
		{Name: "net", Type: "stream", URL: "http://h/sse"},
		{Name: "local", Command: "tool --stdio"},
	}
	assert.Equal(t, "http://h/sse", services[0].Target())
	assert.Equal(t, "tool --stdio", services[1].Target())

	svc, ok := Find(services, "local")
	assert.True(t, ok)
	assert.Equal(t, "tool --stdio", svc.Command)

	_, ok = Find(services, "none")
	assert.False(t, ok)
}
