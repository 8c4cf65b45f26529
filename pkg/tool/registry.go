package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

// ErrTagExecution marks a failed tool invocation: malformed plan, unknown
// tool or an error raised by the tool itself.
var ErrTagExecution = goerr.NewTag("tool_execution")

// Result is the outcome of one tool invocation
type Result struct {
	ToolName string
	Class    Class
	// Result is the textual form of the response
	Result   string
	Response map[string]any
}

// Registry manages available tools. Tools are initialized once, on the
// first Catalog call, and shared by every session.
type Registry struct {
	client *Client
	tools  []Tool

	mu      sync.Mutex
	catalog *Catalog
}

// New creates a new tool registry with the given tools
func New(client *Client, tools ...Tool) *Registry {
	if client == nil {
		client = &Client{}
	}
	return &Registry{
		client: client,
		tools:  tools,
	}
}

// Flags returns all tool flags combined
func (r *Registry) Flags() []cli.Flag {
	var flags []cli.Flag
	for _, t := range r.tools {
		if toolFlags := t.Flags(); toolFlags != nil {
			flags = append(flags, toolFlags...)
		}
	}
	return flags
}

// Catalog initializes the tools if needed and returns the enabled functions.
// A failed initialization is retried on the next call.
func (r *Registry) Catalog(ctx context.Context) (*Catalog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.catalog != nil {
		return r.catalog, nil
	}

	logger := logging.From(ctx)
	catalog := newCatalog()
	for _, t := range r.tools {
		enabled, err := t.Init(ctx, r.client)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize tool", goerr.V("tool", fmt.Sprintf("%T", t)))
		}
		if !enabled {
			logger.Debug("tool disabled", "tool", fmt.Sprintf("%T", t))
			continue
		}

		spec := t.Spec()
		if spec == nil {
			continue
		}
		for _, fd := range spec.FunctionDeclarations {
			entry := &Entry{
				Name:        fd.Name,
				Description: fd.Description,
				Parameters:  fd.Parameters,
				Class:       classify(t, fd.Name),
				tool:        t,
			}
			if !catalog.add(entry) {
				logger.Warn("duplicated tool name, keeping the first one", "name", fd.Name)
			}
		}
		if prompt := t.Prompt(ctx); prompt != "" {
			catalog.prompts = append(catalog.prompts, prompt)
		}
	}

	logger.Info("tools loaded", "count", catalog.Len(), "names", catalog.Names())
	r.catalog = catalog
	return catalog, nil
}

func classify(t Tool, name string) Class {
	if c, ok := t.(Classifier); ok {
		if class := c.Class(name); class != "" {
			return class
		}
	}
	if class, ok := defaultClasses[name]; ok {
		return class
	}
	return ClassGeneral
}

// Execute parses plan, checks the function is in catalog and runs it.
// Every failure carries ErrTagExecution.
func (r *Registry) Execute(ctx context.Context, catalog *Catalog, plan string) (*Result, error) {
	if catalog == nil {
		return nil, goerr.New("tool catalog is not loaded", goerr.T(ErrTagExecution))
	}

	call, err := ParseCall(plan, func(name string) *genai.Schema {
		if e, ok := catalog.Lookup(name); ok {
			return e.Parameters
		}
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse plan", goerr.T(ErrTagExecution))
	}

	entry, ok := catalog.Lookup(call.Name)
	if !ok {
		return nil, goerr.New("unknown tool",
			goerr.T(ErrTagExecution),
			goerr.V("name", call.Name),
			goerr.V("available", catalog.Names()))
	}

	logging.From(ctx).Debug("executing tool", "name", call.Name, "args", call.Args)

	resp, err := entry.tool.Execute(ctx, genai.FunctionCall{Name: call.Name, Args: call.Args})
	if err != nil {
		return nil, goerr.Wrap(err, "tool execution failed",
			goerr.T(ErrTagExecution),
			goerr.V("name", call.Name))
	}
	if resp == nil {
		return nil, goerr.New("tool returned no response", goerr.T(ErrTagExecution), goerr.V("name", call.Name))
	}
	if msg, ok := resp.Response["error"]; ok {
		return nil, goerr.New(fmt.Sprintf("tool %s reported an error: %v", call.Name, msg),
			goerr.T(ErrTagExecution),
			goerr.V("name", call.Name))
	}

	return &Result{
		ToolName: call.Name,
		Class:    entry.Class,
		Result:   responseText(resp.Response),
		Response: resp.Response,
	}, nil
}

func responseText(resp map[string]any) string {
	for _, key := range []string{"result", "output"} {
		if v, ok := resp[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if raw, err := json.Marshal(v); err == nil {
				return string(raw)
			}
		}
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Sprintf("%v", resp)
	}
	return string(raw)
}
