package mcp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/mcpchat/internal/version"
	"github.com/kagent-dev/mcpchat/pkg/catalog"
	"github.com/kagent-dev/mcpchat/pkg/registry"
)

type urlInput struct {
	URL string `json:"url,omitempty"`
}

// newTestServer returns an in-memory MCP server whose tools echo
// "<server>:<tool>:<url>".
func newTestServer(name string, opts *mcpsdk.ServerOptions, tools ...string) *mcpsdk.Server {
	s := mcpsdk.NewServer(&mcpsdk.Implementation{Name: name, Version: "test"}, opts)
	for _, tool := range tools {
		mcpsdk.AddTool(s, &mcpsdk.Tool{Name: tool, Description: tool + " from " + name},
			func(ctx context.Context, req *mcpsdk.CallToolRequest, in urlInput) (*mcpsdk.CallToolResult, any, error) {
				return &mcpsdk.CallToolResult{
					Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: name + ":" + tool + ":" + in.URL}},
				}, nil, nil
			})
	}
	return s
}

// recordingConnector connects to in-memory servers by service name and counts
// opened sessions. Services without a server fail to connect.
type recordingConnector struct {
	mu      sync.Mutex
	servers map[string]*mcpsdk.Server
	opened  []string
}

func (c *recordingConnector) connector() Connector {
	return NewConnectorWithTransport(func(ctx context.Context, svc registry.Service) (mcpsdk.Transport, error) {
		c.mu.Lock()
		c.opened = append(c.opened, svc.Name)
		c.mu.Unlock()

		srv, ok := c.servers[svc.Name]
		if !ok {
			return nil, errors.New("connection refused")
		}
		clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()
		if _, err := srv.Connect(ctx, serverTransport, nil); err != nil {
			return nil, err
		}
		return clientTransport, nil
	})
}

func services(names ...string) []registry.Service {
	out := make([]registry.Service, 0, len(names))
	for _, n := range names {
		out = append(out, registry.Service{Name: n, Type: "stream", URL: "http://" + n + "/sse"})
	}
	return out
}

func TestAggregateSkipsUnreachableServices(t *testing.T) {
	rc := &recordingConnector{servers: map[string]*mcpsdk.Server{
		"web":   newTestServer("web", nil, "alpha", "beta"),
		"clock": newTestServer("clock", nil, "now"),
	}}
	agg := NewAggregator(rc.connector())

	cat, err := agg.Aggregate(context.Background(), services("web", "down", "clock"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServiceUnreachable)

	require.Equal(t, 3, cat.Len())
	tools := cat.Tools()
	assert.Equal(t, catalog.Tool{Service: "web", Name: "alpha", Description: "alpha from web", InputSchema: tools[0].InputSchema}, tools[0])
	assert.Equal(t, "web", tools[1].Service)
	assert.Equal(t, "beta", tools[1].Name)
	assert.Equal(t, "clock", tools[2].Service)
	assert.Equal(t, "now", tools[2].Name)

	require.NotNil(t, tools[0].InputSchema)
	assert.Equal(t, "object", tools[0].InputSchema["type"])
}

func TestAggregateAllReachable(t *testing.T) {
	rc := &recordingConnector{servers: map[string]*mcpsdk.Server{
		"a": newTestServer("a", nil, "one"),
		"b": newTestServer("b", nil, "one", "two"),
	}}

	cat, err := NewAggregator(rc.connector()).Aggregate(context.Background(), services("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, 3, cat.Len(), "duplicates are kept")
	assert.Equal(t, []string{"a", "b"}, cat.Owners("one"))
}

func TestListServiceToolsPaginates(t *testing.T) {
	rc := &recordingConnector{servers: map[string]*mcpsdk.Server{
		"paged": newTestServer("paged", &mcpsdk.ServerOptions{PageSize: 1}, "a", "b", "c"),
	}}

	tools, err := NewAggregator(rc.connector()).ListServiceTools(context.Background(), services("paged")[0])
	require.NoError(t, err)
	require.Len(t, tools, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{tools[0].Name, tools[1].Name, tools[2].Name})
}

func TestInvokeRoutesToOwningService(t *testing.T) {
	rc := &recordingConnector{servers: map[string]*mcpsdk.Server{
		"web":   newTestServer("web", nil, "fetch"),
		"clock": newTestServer("clock", nil, "now"),
	}}
	svcs := services("web", "clock")
	cat := catalog.New([]catalog.Tool{
		{Service: "web", Name: "fetch"},
		{Service: "clock", Name: "now"},
	})

	res, err := NewInvoker(rc.connector()).Invoke(context.Background(), cat, svcs, "fetch", map[string]any{"url": "http://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "web", res.Service)
	assert.Equal(t, "web:fetch:http://example.com", res.Content)
	assert.False(t, res.IsError)
	assert.Equal(t, []string{"web"}, rc.opened)
}

func TestInvokeUnknownToolOpensNoSession(t *testing.T) {
	rc := &recordingConnector{servers: map[string]*mcpsdk.Server{"web": newTestServer("web", nil, "fetch")}}
	cat := catalog.New([]catalog.Tool{{Service: "web", Name: "fetch"}})

	_, err := NewInvoker(rc.connector()).Invoke(context.Background(), cat, services("web"), "missing", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.Contains(t, err.Error(), "missing")
	assert.Empty(t, rc.opened)
}

func TestInvokeFallsBackInCatalogOrder(t *testing.T) {
	rc := &recordingConnector{servers: map[string]*mcpsdk.Server{"backup": newTestServer("backup", nil, "fetch")}}
	cat := catalog.New([]catalog.Tool{
		{Service: "primary", Name: "fetch"},
		{Service: "backup", Name: "fetch"},
	})

	res, err := NewInvoker(rc.connector()).Invoke(context.Background(), cat, services("primary", "backup"), "fetch", map[string]any{"url": "u"})
	require.NoError(t, err)
	assert.Equal(t, "backup", res.Service)
	assert.Equal(t, []string{"primary", "backup"}, rc.opened)
}

func TestInvokeFirstOwnerWins(t *testing.T) {
	rc := &recordingConnector{servers: map[string]*mcpsdk.Server{
		"first":  newTestServer("first", nil, "fetch"),
		"second": newTestServer("second", nil, "fetch"),
	}}
	cat := catalog.New([]catalog.Tool{
		{Service: "first", Name: "fetch"},
		{Service: "second", Name: "fetch"},
	})

	res, err := NewInvoker(rc.connector()).Invoke(context.Background(), cat, services("first", "second"), "fetch", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "first", res.Service)
	assert.Equal(t, []string{"first"}, rc.opened)
}

func TestInvokeAllOwnersFail(t *testing.T) {
	rc := &recordingConnector{servers: map[string]*mcpsdk.Server{}}
	cat := catalog.New([]catalog.Tool{
		{Service: "a", Name: "fetch"},
		{Service: "b", Name: "fetch"},
	})

	_, err := NewInvoker(rc.connector()).Invoke(context.Background(), cat, services("a", "b"), "fetch", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.ErrorIs(t, err, ErrServiceUnreachable)
	assert.Equal(t, []string{"a", "b"}, rc.opened)
}

func TestInvokeRejectedArgumentsBecomeErrorResult(t *testing.T) {
	rc := &recordingConnector{servers: map[string]*mcpsdk.Server{
		"first":  newTestServer("first", nil, "fetch"),
		"second": newTestServer("second", nil, "fetch"),
	}}
	cat := catalog.New([]catalog.Tool{
		{Service: "down", Name: "fetch"},
		{Service: "first", Name: "fetch"},
		{Service: "second", Name: "fetch"},
	})

	res, err := NewInvoker(rc.connector()).Invoke(context.Background(), cat, services("down", "first", "second"), "fetch", "{bad json")
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "first", res.Service)
	assert.Contains(t, res.Content, "first rejected the call to fetch")
	assert.Contains(t, res.Content, "invalid params")
	assert.Equal(t, []string{"down", "first", "second"}, rc.opened, "later owners are still tried")
}

func TestInvokeRejectionLosesToLaterAnswer(t *testing.T) {
	strict := &recordingConnector{servers: map[string]*mcpsdk.Server{"strict": newTestServer("strict", nil, "fetch")}}
	lenient := &fakeSession{}
	connector := ConnectorFunc(func(ctx context.Context, svc registry.Service) (Session, error) {
		if svc.Name == "lenient" {
			return lenient, nil
		}
		return strict.connector().Connect(ctx, svc)
	})
	cat := catalog.New([]catalog.Tool{
		{Service: "strict", Name: "fetch"},
		{Service: "lenient", Name: "fetch"},
	})

	res, err := NewInvoker(connector).Invoke(context.Background(), cat, services("strict", "lenient"), "fetch", "{bad json")
	require.NoError(t, err)
	assert.Equal(t, "lenient", res.Service)
	assert.Equal(t, "part one\npart two", res.Content)
	require.Len(t, lenient.calls, 1)
}

// fakeSession records calls and closes without a real server.
type fakeSession struct {
	calls  []*mcpsdk.CallToolParams
	err    error
	closed int
}

func (s *fakeSession) ListTools(context.Context, *mcpsdk.ListToolsParams) (*mcpsdk.ListToolsResult, error) {
	return &mcpsdk.ListToolsResult{}, s.err
}

func (s *fakeSession) CallTool(_ context.Context, p *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error) {
	s.calls = append(s.calls, p)
	if s.err != nil {
		return nil, s.err
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "part one"}, &mcpsdk.TextContent{Text: "part two"}},
		IsError: true,
	}, nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

func TestInvokeClosesSessionOnEveryOutcome(t *testing.T) {
	cat := catalog.New([]catalog.Tool{{Service: "svc", Name: "tool"}})

	t.Run("success", func(t *testing.T) {
		session := &fakeSession{}
		conn := ConnectorFunc(func(context.Context, registry.Service) (Session, error) { return session, nil })

		res, err := NewInvoker(conn).Invoke(context.Background(), cat, services("svc"), "tool", "{bad json")
		require.NoError(t, err)
		assert.Equal(t, 1, session.closed)
		require.Len(t, session.calls, 1)
		assert.Equal(t, "{bad json", session.calls[0].Arguments)
		assert.True(t, res.IsError)
		assert.Equal(t, "part one\npart two", res.Content)
	})

	t.Run("failure", func(t *testing.T) {
		session := &fakeSession{err: errors.New("boom")}
		conn := ConnectorFunc(func(context.Context, registry.Service) (Session, error) { return session, nil })

		_, err := NewInvoker(conn).Invoke(context.Background(), cat, services("svc"), "tool", nil)
		require.Error(t, err)
		assert.Equal(t, 1, session.closed)
	})
}

func TestConnectorAnnouncesClientVersion(t *testing.T) {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "peer", Version: "test"}, nil)
	mcpsdk.AddTool(srv, &mcpsdk.Tool{Name: "whoami"},
		func(ctx context.Context, req *mcpsdk.CallToolRequest, in urlInput) (*mcpsdk.CallToolResult, any, error) {
			info := req.Session.InitializeParams().ClientInfo
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: info.Name + " " + info.Version}},
			}, nil, nil
		})
	rc := &recordingConnector{servers: map[string]*mcpsdk.Server{"peer": srv}}
	cat := catalog.New([]catalog.Tool{{Service: "peer", Name: "whoami"}})

	res, err := NewInvoker(rc.connector()).Invoke(context.Background(), cat, services("peer"), "whoami", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "mcpchat "+version.Get().Short(), res.Content)
}

func TestNewToolResultStructuredContent(t *testing.T) {
	res := newToolResult("svc", &mcpsdk.CallToolResult{StructuredContent: map[string]any{"ok": true}})
	assert.Equal(t, `{"ok":true}`, res.Content)
	assert.Equal(t, "", newToolResult("svc", nil).Content)
}

func TestNewTransport(t *testing.T) {
	t.Setenv("MCPCHAT_TEST_BASE", "base")

	t.Run("subprocess", func(t *testing.T) {
		svc := registry.Service{Name: "local", Command: "fetch-server --stdio", Env: map[string]string{"EXTRA": "1"}}
		tr, err := NewTransport(context.Background(), svc)
		require.NoError(t, err)

		ct, ok := tr.(*mcpsdk.CommandTransport)
		require.True(t, ok)
		assert.Equal(t, []string{"fetch-server", "--stdio"}, ct.Command.Args)
		assert.Contains(t, ct.Command.Env, "EXTRA=1")
		assert.Contains(t, ct.Command.Env, "MCPCHAT_TEST_BASE=base")
	})

	t.Run("stream", func(t *testing.T) {
		tr, err := NewTransport(context.Background(), registry.Service{Name: "net", Type: "stream", URL: "http://localhost:8000/sse"})
		require.NoError(t, err)
		st, ok := tr.(*mcpsdk.SSEClientTransport)
		require.True(t, ok)
		assert.Equal(t, "http://localhost:8000/sse", st.Endpoint)
	})

	t.Run("streamable http", func(t *testing.T) {
		tr, err := NewTransport(context.Background(), registry.Service{Name: "net", Type: "http", URL: "http://localhost:8000/mcp"})
		require.NoError(t, err)
		_, ok := tr.(*mcpsdk.StreamableClientTransport)
		assert.True(t, ok)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := NewTransport(context.Background(), registry.Service{Name: "x", Type: "pigeon"})
		assert.ErrorIs(t, err, registry.ErrConfiguration)
	})
}

func TestHeaderRoundTripper(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	client := &http.Client{Transport: &headerRoundTripper{base: http.DefaultTransport, headers: map[string]string{"Authorization": "Bearer t"}}}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "Bearer t", got)
}
