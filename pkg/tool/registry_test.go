package tool_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/seeker/pkg/tool"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

type stubTool struct {
	names   []string
	enabled bool
	initErr error
	inits   int
	respond func(fc genai.FunctionCall) (*genai.FunctionResponse, error)
}

func (s *stubTool) Spec() *genai.Tool {
	decls := make([]*genai.FunctionDeclaration, len(s.names))
	for i, n := range s.names {
		decls[i] = &genai.FunctionDeclaration{
			Name:        n,
			Description: "stub " + n,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: map[string]*genai.Schema{"query": {Type: genai.TypeString}, "limit": {Type: genai.TypeInteger}},
				Required:   []string{"query"},
			},
		}
	}
	return &genai.Tool{FunctionDeclarations: decls}
}

func (s *stubTool) Init(context.Context, *tool.Client) (bool, error) {
	s.inits++
	return s.enabled, s.initErr
}

func (s *stubTool) Execute(_ context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	if s.respond != nil {
		return s.respond(fc)
	}
	return &genai.FunctionResponse{Name: fc.Name, Response: map[string]any{"result": "ok:" + fc.Args["query"].(string)}}, nil
}

func (s *stubTool) Prompt(context.Context) string { return "use " + s.names[0] }
func (s *stubTool) Flags() []cli.Flag {
	return []cli.Flag{&cli.StringFlag{Name: s.names[0] + "-flag"}}
}

func TestRegistryCatalog(t *testing.T) {
	ctx := context.Background()
	search := &stubTool{names: []string{"web_search", "open_url"}, enabled: true}
	other := &stubTool{names: []string{"lookup"}, enabled: true}
	off := &stubTool{names: []string{"disabled"}, enabled: false}
	dup := &stubTool{names: []string{"lookup"}, enabled: true}

	reg := tool.New(nil, search, other, off, dup)
	gt.A(t, reg.Flags()).Length(4)

	catalog, err := reg.Catalog(ctx)
	gt.NoError(t, err)
	gt.Equal(t, catalog.Names(), []string{"web_search", "open_url", "lookup"})
	gt.S(t, catalog.Describe()).Contains("- web_search(limit: integer?, query: string): stub web_search")
	gt.S(t, catalog.Prompts()).Contains("use web_search")
	gt.S(t, catalog.Prompts()).NotContains("use disabled")

	e, ok := catalog.Lookup("web_search")
	gt.True(t, ok)
	gt.Equal(t, e.Class, tool.ClassSearch)
	e, _ = catalog.Lookup("open_url")
	gt.Equal(t, e.Class, tool.ClassNavigation)
	e, _ = catalog.Lookup("lookup")
	gt.Equal(t, e.Class, tool.ClassGeneral)

	again, err := reg.Catalog(ctx)
	gt.NoError(t, err)
	gt.True(t, again == catalog)
	gt.Equal(t, search.inits, 1)
}

func TestRegistryCatalogInitFailure(t *testing.T) {
	broken := &stubTool{names: []string{"x"}, initErr: errors.New("no credentials")}
	reg := tool.New(nil, broken)

	_, err := reg.Catalog(context.Background())
	gt.Error(t, err)

	// retried on the next call
	broken.initErr = nil
	broken.enabled = true
	catalog, err := reg.Catalog(context.Background())
	gt.NoError(t, err)
	gt.Equal(t, catalog.Names(), []string{"x"})
}

func TestRegistryExecute(t *testing.T) {
	ctx := context.Background()
	failing := &stubTool{names: []string{"explode"}, enabled: true, respond: func(genai.FunctionCall) (*genai.FunctionResponse, error) {
		return nil, errors.New("boom")
	}}
	reporting := &stubTool{names: []string{"soft_fail"}, enabled: true, respond: func(fc genai.FunctionCall) (*genai.FunctionResponse, error) {
		return &genai.FunctionResponse{Name: fc.Name, Response: map[string]any{"error": "quota exceeded"}}, nil
	}}
	structured := &stubTool{names: []string{"structured"}, enabled: true, respond: func(fc genai.FunctionCall) (*genai.FunctionResponse, error) {
		return &genai.FunctionResponse{Name: fc.Name, Response: map[string]any{"items": []int{1, 2}}}, nil
	}}
	ok := &stubTool{names: []string{"web_search"}, enabled: true}

	reg := tool.New(nil, failing, reporting, structured, ok)
	catalog, err := reg.Catalog(ctx)
	gt.NoError(t, err)

	res, err := reg.Execute(ctx, catalog, "FUNCTION_CALL: web_search|query=golang")
	gt.NoError(t, err)
	gt.Equal(t, res.ToolName, "web_search")
	gt.Equal(t, res.Result, "ok:golang")
	gt.Equal(t, res.Class, tool.ClassSearch)

	res, err = reg.Execute(ctx, catalog, "FUNCTION_CALL: structured|query=x")
	gt.NoError(t, err)
	gt.Equal(t, res.Result, `{"items":[1,2]}`)

	for name, plan := range map[string]string{
		"tool error":     "FUNCTION_CALL: explode|query=x",
		"error response": "FUNCTION_CALL: soft_fail|query=x",
		"unknown tool":   "FUNCTION_CALL: missing|query=x",
		"malformed plan": "FUNCTION_CALL: web_search|limit=lots",
		"empty plan":     "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Execute(ctx, catalog, plan)
			gt.True(t, goerr.HasTag(err, tool.ErrTagExecution))
		})
	}

	_, err = reg.Execute(ctx, nil, "FUNCTION_CALL: web_search|query=x")
	gt.True(t, goerr.HasTag(err, tool.ErrTagExecution))
}
