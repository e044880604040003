package catalog

import (
	"github.com/kagent-dev/mcpchat/pkg/models"
)

// Tool is a tool advertised by a service, tagged with the service's name.
type Tool struct {
	Service     string         `json:"service"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Catalog is the ordered list of tools from every reachable service.
// Order is service order, then the order each service listed its tools.
type Catalog struct {
	tools []Tool
}

// New returns a catalog holding a copy of tools.
func New(tools []Tool) *Catalog {
	return &Catalog{tools: append([]Tool(nil), tools...)}
}

// Tools returns a copy of the catalog entries.
func (c *Catalog) Tools() []Tool {
	if c == nil {
		return nil
	}
	return append([]Tool(nil), c.tools...)
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.tools)
}

// Owners returns the services exposing a tool called name, in catalog order.
func (c *Catalog) Owners(name string) []string {
	if c == nil {
		return nil
	}
	var owners []string
	seen := map[string]bool{}
	for _, t := range c.tools {
		if t.Name == name && !seen[t.Service] {
			seen[t.Service] = true
			owners = append(owners, t.Service)
		}
	}
	return owners
}

// Conflict is a tool name exposed by more than one service.
type Conflict struct {
	Tool     string
	Services []string
}

// Conflicts lists tool names claimed by several services, in order of first appearance.
// The first service listed is the one that wins lookups.
func (c *Catalog) Conflicts() []Conflict {
	var out []Conflict
	seen := map[string]bool{}
	for _, t := range c.Tools() {
		if seen[t.Name] {
			continue
		}
		seen[t.Name] = true
		if owners := c.Owners(t.Name); len(owners) > 1 {
			out = append(out, Conflict{Tool: t.Name, Services: owners})
		}
	}
	return out
}

// Declarations converts the catalog into tool declarations for a chat model.
// Duplicate names keep the first-registered entry.
func (c *Catalog) Declarations() []models.ToolDeclaration {
	var decls []models.ToolDeclaration
	seen := map[string]bool{}
	for _, t := range c.Tools() {
		if seen[t.Name] {
			continue
		}
		seen[t.Name] = true
		params := t.InputSchema
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		decls = append(decls, models.ToolDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}
	return decls
}
