package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/kagent-dev/mcpchat/pkg/catalog"
	"github.com/kagent-dev/mcpchat/pkg/mcp"
	"github.com/kagent-dev/mcpchat/pkg/models"
	"github.com/kagent-dev/mcpchat/pkg/registry"
)

var (
	BoldGreen  = color.New(color.FgGreen, color.Bold).SprintFunc()
	BoldBlue   = color.New(color.FgBlue, color.Bold).SprintFunc()
	BoldYellow = color.New(color.FgYellow, color.Bold).SprintFunc()
	Faint      = color.New(color.Faint).SprintFunc()
)

// maxResultPreview bounds how much of a tool result is echoed to the console.
const maxResultPreview = 500

var commandHelp = [][]string{
	{"exit", "leave the chat"},
	{"clear", "erase the whole conversation"},
	{"reset", "erase the conversation and restore the system prompt"},
	{"tools", "list available tools"},
	{"services", "list configured MCP services"},
	{"model", "show the chat model"},
	{"url", "show the chat model endpoint"},
	{"help", "show this help"},
}

func renderTable(w io.Writer, headers []string, rows [][]string) {
	tw := table.NewWriter()
	header := make(table.Row, 0, len(headers))
	for _, h := range headers {
		header = append(header, h)
	}
	tw.AppendHeader(header)
	for _, r := range rows {
		row := make(table.Row, 0, len(r))
		for _, cell := range r {
			row = append(row, cell)
		}
		tw.AppendRow(row)
	}
	fmt.Fprintln(w, tw.Render())
}

func renderTools(w io.Writer, cat *catalog.Catalog) {
	if cat.Len() == 0 {
		fmt.Fprintln(w, "No tools available.")
		return
	}
	rows := make([][]string, 0, cat.Len())
	for _, t := range cat.Tools() {
		rows = append(rows, []string{t.Service, t.Name, firstLine(t.Description)})
	}
	renderTable(w, []string{"Service", "Tool", "Description"}, rows)
}

func renderServices(w io.Writer, services []registry.Service) {
	if len(services) == 0 {
		fmt.Fprintln(w, "No services configured.")
		return
	}
	rows := make([][]string, 0, len(services))
	for _, svc := range services {
		kind, _ := svc.Kind()
		rows = append(rows, []string{svc.Name, string(kind), svc.Target()})
	}
	renderTable(w, []string{"Service", "Type", "Target"}, rows)
}

func renderHelp(w io.Writer) {
	renderTable(w, []string{"Command", "Description"}, commandHelp)
}

func renderAssistant(w io.Writer, content string) {
	fmt.Fprintf(w, "%s %s\n", BoldGreen("Assistant:"), content)
}

func renderToolCall(w io.Writer, call models.ToolCall, args any) {
	b, err := json.Marshal(args)
	if err != nil {
		b = []byte(fmt.Sprint(args))
	}
	fmt.Fprintf(w, "%s %s %s\n", BoldBlue("Tool call:"), call.Name, Faint(string(b)))
}

func renderToolResult(w io.Writer, res *mcp.ToolResult) {
	label := BoldBlue("Tool result")
	if res.IsError {
		label = BoldYellow("Tool error")
	}
	fmt.Fprintf(w, "%s %s\n", label+Faint(" ("+res.Service+"):"), truncate(res.Content, maxResultPreview))
}

func renderNotice(w io.Writer, msg string) {
	fmt.Fprintln(w, BoldYellow(msg))
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
