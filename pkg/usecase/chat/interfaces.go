package chat

import (
	"context"

	"github.com/m-mizutani/seeker/pkg/model"
	"github.com/m-mizutani/seeker/pkg/tool"
)

// Perceiver reads the intent of a raw user input
type Perceiver interface {
	Perceive(ctx context.Context, text string) (*model.Perception, error)
}

// PlanInput is everything the planner sees at one step
type PlanInput struct {
	Perception *model.Perception
	Memories   []*model.MemoryRecord
	// Tools is the rendered tool catalog
	Tools string
	// Guidance is extra instruction contributed by tools
	Guidance string
	History  []model.Turn
}

// Planner chooses the next action. The returned plan is either a final
// answer (tool.FinalAnswerMarker) or a tool invocation.
type Planner interface {
	Plan(ctx context.Context, input PlanInput) (string, error)
}

// Toolbox lists and runs tools. *tool.Registry implements it.
type Toolbox interface {
	Catalog(ctx context.Context) (*tool.Catalog, error)
	Execute(ctx context.Context, catalog *tool.Catalog, plan string) (*tool.Result, error)
}

// Recorder persists the transcript of a finished session
type Recorder interface {
	Save(ctx context.Context, history *model.History) error
}

var _ Toolbox = (*tool.Registry)(nil)
