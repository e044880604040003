package chat

import (
	"encoding/json"
	"strings"

	"github.com/kagent-dev/mcpchat/pkg/catalog"
)

// DefaultSystemPrompt is used when no prompt is configured.
const DefaultSystemPrompt = "You are a helpful assistant. When a question needs fresh or external information, " +
	"call one of the available tools and base your answer on its result."

type promptTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// BuildSystemPrompt appends the tool list, as JSON, to base. Without tools
// base is returned unchanged.
func BuildSystemPrompt(base string, cat *catalog.Catalog) string {
	decls := cat.Declarations()
	if len(decls) == 0 {
		return base
	}

	tools := make([]promptTool, 0, len(decls))
	for _, d := range decls {
		tools = append(tools, promptTool{Name: d.Name, Description: d.Description, InputSchema: d.Parameters})
	}
	b, err := json.MarshalIndent(tools, "", "  ")
	if err != nil {
		return base
	}

	var sb strings.Builder
	sb.WriteString(base)
	if base != "" {
		sb.WriteString("\n\n")
	}
	sb.WriteString("Available tools:\n")
	sb.Write(b)
	return sb.String()
}
