package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks an unusable services file. It is fatal at startup.
var ErrConfiguration = errors.New("configuration error")

// Kind is the normalized transport used to reach a service.
type Kind string

const (
	// KindSSE is a networked service speaking MCP over server-sent events.
	KindSSE Kind = "sse"
	// KindStreamableHTTP is a networked service speaking MCP streamable HTTP.
	KindStreamableHTTP Kind = "http"
	// KindSubprocess is a local command speaking MCP over its standard streams.
	KindSubprocess Kind = "subprocess"
)

// Aliases accepted in the "type" field, mapped to their transport.
var typeAliases = map[string]Kind{
	"":           KindSubprocess,
	"subprocess": KindSubprocess,
	"stdio":      KindSubprocess,
	"stream":     KindSSE,
	"sse":        KindSSE,
	"http":       KindStreamableHTTP,
	"streamable": KindStreamableHTTP,
}

// Service describes one named MCP service from the services file.
type Service struct {
	Name    string            `json:"-" yaml:"-"`
	Type    string            `json:"type,omitempty" yaml:"type,omitempty"`
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Command string            `json:"command,omitempty" yaml:"command,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// Timeout in seconds for each session operation. Zero uses the transport default.
	Timeout float64 `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Kind returns the normalized transport kind of the service.
func (s Service) Kind() (Kind, error) {
	kind, ok := typeAliases[strings.ToLower(strings.TrimSpace(s.Type))]
	if !ok {
		return "", fmt.Errorf("%w: service %q has unsupported type %q", ErrConfiguration, s.Name, s.Type)
	}
	return kind, nil
}

// Target is the URL or command used to reach the service, for display.
func (s Service) Target() string {
	if kind, _ := s.Kind(); kind == KindSubprocess {
		return s.Command
	}
	return s.URL
}

// CommandLine splits Command on whitespace into the executable and its arguments.
func (s Service) CommandLine() (string, []string, error) {
	fields := strings.Fields(s.Command)
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("%w: service %q has no command", ErrConfiguration, s.Name)
	}
	return fields[0], fields[1:], nil
}

// Environ overlays Env onto base, replacing existing keys in place and appending new ones.
func (s Service) Environ(base []string) []string {
	out := make([]string, 0, len(base)+len(s.Env))
	seen := make(map[string]bool, len(s.Env))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if v, ok := s.Env[key]; ok {
			out = append(out, key+"="+v)
			seen[key] = true
			continue
		}
		out = append(out, kv)
	}
	for _, key := range slices.Sorted(maps.Keys(s.Env)) {
		if !seen[key] {
			out = append(out, key+"="+s.Env[key])
		}
	}
	return out
}

// Validate checks the fields required by the service's transport.
func (s Service) Validate() error {
	kind, err := s.Kind()
	if err != nil {
		return err
	}
	switch kind {
	case KindSubprocess:
		_, _, err := s.CommandLine()
		return err
	default:
		if strings.TrimSpace(s.URL) == "" {
			return fmt.Errorf("%w: service %q of type %q requires a url", ErrConfiguration, s.Name, s.Type)
		}
	}
	return nil
}

// Load reads the services file at path and returns its services in file order.
// When only is non-empty, just the service of that name is returned (or none).
func Load(path, only string) ([]Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrConfiguration, path, err)
	}
	var services []Service
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		services, err = decodeYAML(data)
	default:
		services, err = decodeJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrConfiguration, path, err)
	}

	var out []Service
	for _, svc := range services {
		if only != "" && svc.Name != only {
			continue
		}
		if err := svc.Validate(); err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, nil
}

// decodeJSON walks the mcpServers object with the token decoder so that the
// order of services matches the file.
func decodeJSON(data []byte) ([]Service, error) {
	var root struct {
		MCPServers json.RawMessage `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.MCPServers) == 0 || string(root.MCPServers) == "null" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(root.MCPServers))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("mcpServers must be an object")
	}

	var services []Service
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, _ := tok.(string)
		var svc Service
		if err := dec.Decode(&svc); err != nil {
			return nil, fmt.Errorf("service %q: %w", name, err)
		}
		svc.Name = name
		services = append(services, svc)
	}
	return services, nil
}

func decodeYAML(data []byte) ([]Service, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("top level must be a mapping")
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "mcpServers" {
			continue
		}
		servers := root.Content[i+1]
		if servers.Kind != yaml.MappingNode {
			return nil, errors.New("mcpServers must be a mapping")
		}
		var services []Service
		for j := 0; j+1 < len(servers.Content); j += 2 {
			name := servers.Content[j].Value
			var svc Service
			if err := servers.Content[j+1].Decode(&svc); err != nil {
				return nil, fmt.Errorf("service %q: %w", name, err)
			}
			svc.Name = name
			services = append(services, svc)
		}
		return services, nil
	}
	return nil, nil
}

// Find returns the service with the given name.
func Find(services []Service, name string) (Service, bool) {
	for _, svc := range services {
		if svc.Name == name {
			return svc, true
		}
	}
	return Service{}, false
}
