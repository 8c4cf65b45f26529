package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/tool"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

// Provider exposes the tools of connected MCP servers as a tool.Tool
type Provider struct {
	client *Client
	tools  []*remoteTool
}

type remoteTool struct {
	serverName string
	mcpTool    *mcp.Tool
	funcDecl   *genai.FunctionDeclaration
}

// NewProvider creates a new MCP tool provider
func NewProvider(client *Client) *Provider {
	return &Provider{client: client}
}

// Flags returns nil; servers are configured by the MCP config file
func (p *Provider) Flags() []cli.Flag {
	return nil
}

// Init collects the tools of every connected server
func (p *Provider) Init(_ context.Context, _ *tool.Client) (bool, error) {
	if p == nil || p.client == nil {
		return false, nil
	}

	p.tools = nil
	for _, serverName := range p.client.GetAllServers() {
		tools, err := p.client.GetTools(serverName)
		if err != nil {
			return false, goerr.Wrap(err, "failed to get tools from server", goerr.V("server", serverName))
		}

		for _, t := range tools {
			funcDecl, err := toFunctionDeclaration(t)
			if err != nil {
				return false, goerr.Wrap(err, "failed to convert tool",
					goerr.V("server", serverName),
					goerr.V("tool", t.Name))
			}

			p.tools = append(p.tools, &remoteTool{
				serverName: serverName,
				mcpTool:    t,
				funcDecl:   funcDecl,
			})
		}
	}

	return len(p.tools) > 0, nil
}

func toFunctionDeclaration(t *mcp.Tool) (*genai.FunctionDeclaration, error) {
	funcDecl := &genai.FunctionDeclaration{
		Name:        t.Name,
		Description: t.Description,
	}
	if t.InputSchema == nil {
		return funcDecl, nil
	}

	// InputSchema is untyped; round trip it through JSON
	raw, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal input schema")
	}
	var jsSchema jsonschema.Schema
	if err := json.Unmarshal(raw, &jsSchema); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal input schema")
	}

	schema, err := convertJSONSchemaToGenai(&jsSchema)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to convert input schema")
	}
	funcDecl.Parameters = schema
	return funcDecl, nil
}

// Spec returns the declarations of all remote tools
func (p *Provider) Spec() *genai.Tool {
	if len(p.tools) == 0 {
		return nil
	}

	funcDecls := make([]*genai.FunctionDeclaration, len(p.tools))
	for i, t := range p.tools {
		funcDecls[i] = t.funcDecl
	}
	return &genai.Tool{FunctionDeclarations: funcDecls}
}

func (p *Provider) Prompt(_ context.Context) string {
	return ""
}

// Execute calls the remote tool. A result flagged as an error by the
// server becomes an "error" response.
func (p *Provider) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	var target *remoteTool
	for _, t := range p.tools {
		if t.funcDecl.Name == fc.Name {
			target = t
			break
		}
	}
	if target == nil {
		return nil, goerr.New("tool not found", goerr.V("name", fc.Name))
	}

	result, err := p.client.CallTool(ctx, target.serverName, target.mcpTool.Name, fc.Args)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call MCP tool")
	}

	text, err := resultText(result)
	if err != nil {
		return nil, err
	}

	key := "result"
	if result.IsError {
		key = "error"
	}
	return &genai.FunctionResponse{
		Name:     fc.Name,
		Response: map[string]any{key: text},
	}, nil
}

// resultText joins the text parts of a tool result. Results without text
// are rendered as JSON.
func resultText(result *mcp.CallToolResult) (string, error) {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n"), nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal MCP result")
	}
	return string(raw), nil
}

// Close disconnects every MCP server
func (p *Provider) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
