package mcp_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/seeker/pkg/service/mcp"
	"github.com/m-mizutani/seeker/pkg/tool"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type searchParams struct {
	Query      string `json:"query" jsonschema:"Search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Maximum number of results"`
}

func newHTTPServer(t *testing.T) *httptest.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "test-http-server",
		Version: "1.0.0",
	}, nil)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "web_search",
		Description: "Search the web",
	}, func(_ context.Context, _ *mcpsdk.CallToolRequest, params *searchParams) (*mcpsdk.CallToolResult, any, error) {
		if params.Query == "fail" {
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "search backend unavailable"}},
			}, nil, nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{
				&mcpsdk.TextContent{Text: "Title: " + params.Query},
				&mcpsdk.TextContent{Text: "URL: https://example.com/"},
			},
		}, nil, nil
	})

	handler := mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return server
	}, nil)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPStreamableTransport(t *testing.T) {
	ctx := context.Background()
	srv := newHTTPServer(t)

	client := mcp.NewClient()
	gt.NoError(t, client.Connect(ctx, mcp.ServerConfig{
		Name:      "test-http",
		Transport: "http",
		URL:       srv.URL,
	}))
	defer client.Close()

	gt.Equal(t, client.GetAllServers(), []string{"test-http"})

	tools, err := client.GetTools("test-http")
	gt.NoError(t, err)
	gt.A(t, tools).Length(1)
	gt.Equal(t, tools[0].Name, "web_search")

	result, err := client.CallTool(ctx, "test-http", "web_search", map[string]any{"query": "golang"})
	gt.NoError(t, err)
	gt.A(t, result.Content).Length(2)

	err = client.Connect(ctx, mcp.ServerConfig{Name: "test-http", Transport: "http", URL: srv.URL})
	gt.Error(t, err)

	_, err = client.CallTool(ctx, "missing", "web_search", nil)
	gt.Error(t, err)
}

func TestProviderThroughRegistry(t *testing.T) {
	ctx := context.Background()
	srv := newHTTPServer(t)

	client := mcp.NewClient()
	gt.NoError(t, client.Connect(ctx, mcp.ServerConfig{Name: "remote", Transport: "http", URL: srv.URL}))
	provider := mcp.NewProvider(client)
	defer provider.Close()

	reg := tool.New(nil, provider)
	catalog, err := reg.Catalog(ctx)
	gt.NoError(t, err)

	entry, ok := catalog.Lookup("web_search")
	gt.True(t, ok)
	gt.Equal(t, entry.Class, tool.ClassSearch)
	gt.V(t, entry.Parameters).NotNil()
	gt.Map(t, entry.Parameters.Properties).HasKey("query")

	res, err := reg.Execute(ctx, catalog, "FUNCTION_CALL: web_search|query=golang|max_results=2")
	gt.NoError(t, err)
	gt.Equal(t, res.Result, "Title: golang\nURL: https://example.com/")

	_, err = reg.Execute(ctx, catalog, "FUNCTION_CALL: web_search|query=fail")
	gt.True(t, goerr.HasTag(err, tool.ErrTagExecution))
}

func TestStdioTransport(t *testing.T) {
	if os.Getenv("TEST_MCP_STDIO") == "" {
		t.Skip("TEST_MCP_STDIO is not set")
	}
	ctx := context.Background()

	client := mcp.NewClient()
	gt.NoError(t, client.Connect(ctx, mcp.ServerConfig{
		Name:      "test-stdio",
		Transport: "stdio",
		Command:   []string{"go", "run", "./testdata/stdio/main.go"},
	}))
	defer client.Close()

	reg := tool.New(nil, mcp.NewProvider(client))
	catalog, err := reg.Catalog(ctx)
	gt.NoError(t, err)

	res, err := reg.Execute(ctx, catalog, "FUNCTION_CALL: open_url|url=https://go.dev/")
	gt.NoError(t, err)
	gt.Equal(t, res.Class, tool.ClassNavigation)
	gt.Equal(t, res.Result, "OPEN_URL:https://go.dev/")
}

func TestLoadAndConnect(t *testing.T) {
	ctx := context.Background()
	srv := newHTTPServer(t)

	t.Run("no path", func(t *testing.T) {
		p, err := mcp.LoadAndConnect(ctx, "")
		gt.NoError(t, err)
		gt.True(t, p == nil)
	})

	t.Run("skips servers that fail", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mcp.yaml")
		gt.NoError(t, os.WriteFile(path, []byte(`servers:
  - name: good
    transport: http
    url: `+srv.URL+`
  - name: bad
    transport: carrier-pigeon
`), 0o644))

		p, err := mcp.LoadAndConnect(ctx, path)
		gt.NoError(t, err)
		gt.V(t, p).NotNil()
		defer p.Close()

		ok, err := p.Init(ctx, nil)
		gt.NoError(t, err)
		gt.True(t, ok)
		gt.A(t, p.Spec().FunctionDeclarations).Length(1)
	})

	t.Run("broken yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mcp.yaml")
		gt.NoError(t, os.WriteFile(path, []byte("servers: [:"), 0o644))
		_, err := mcp.LoadAndConnect(ctx, path)
		gt.Error(t, err)
	})
}
