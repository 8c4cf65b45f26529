package tool

import (
	"context"

	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

// Tool represents an external capability the agent can invoke
type Tool interface {
	// Spec returns the function declarations provided by this tool
	Spec() *genai.Tool

	// Init prepares the tool with shared resources. It returns false when
	// the tool should stay disabled, e.g. because it is not configured.
	Init(ctx context.Context, client *Client) (bool, error)

	// Execute runs the tool with the given function call and returns the response
	Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error)

	// Prompt returns additional guidance for the planner. Empty if none.
	Prompt(ctx context.Context) string

	// Flags returns CLI flags for this tool, or nil
	Flags() []cli.Flag
}

// Class tells the agent loop how to treat a tool's result
type Class string

const (
	ClassGeneral    Class = "general"
	ClassSearch     Class = "search"
	ClassNavigation Class = "navigation"
)

// Classifier is implemented by tools whose functions are not general
// purpose. Tools without it fall back to the well-known names.
type Classifier interface {
	Class(name string) Class
}

var defaultClasses = map[string]Class{
	"web_search":       ClassSearch,
	"search_documents": ClassSearch,
	"open_url":         ClassNavigation,
}
