package chat

import (
	"bytes"
	"context"
	_ "embed"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/adapter"
	"github.com/m-mizutani/seeker/pkg/model"
	"github.com/m-mizutani/seeker/pkg/tool"
	"github.com/m-mizutani/seeker/pkg/utils/logging"
	"google.golang.org/genai"
)

//go:embed prompt/plan.md
var planPromptRaw string

var planPromptTmpl = template.Must(template.New("plan").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(planPromptRaw))

// GeminiPlanner asks Gemini for the next action. The conversation is sent
// as chat contents followed by the planning prompt.
type GeminiPlanner struct {
	gemini adapter.Gemini
}

func NewGeminiPlanner(gemini adapter.Gemini) *GeminiPlanner {
	return &GeminiPlanner{gemini: gemini}
}

func (p *GeminiPlanner) Plan(ctx context.Context, input PlanInput) (string, error) {
	perception := input.Perception
	if perception == nil {
		perception = &model.Perception{}
	}

	var buf bytes.Buffer
	if err := planPromptTmpl.Execute(&buf, map[string]any{
		"Tools":      input.Tools,
		"Guidance":   input.Guidance,
		"Perception": perception,
		"Memories":   input.Memories,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute plan prompt template")
	}
	prompt := genai.NewContentFromText(buf.String(), genai.RoleUser)

	history := turnsToContents(input.History)
	resp, err := p.generate(ctx, history, prompt)
	if err != nil && isTokenLimitError(err) {
		logging.From(ctx).Warn("history exceeds token limit, compacting", "turns", len(input.History))
		compacted, cErr := compactHistory(ctx, p.gemini, history)
		if cErr != nil {
			return "", goerr.Wrap(cErr, "failed to compact history after token limit error")
		}
		resp, err = p.generate(ctx, compacted, prompt)
	}
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate plan")
	}

	return normalizePlan(responseText(resp)), nil
}

func (p *GeminiPlanner) generate(ctx context.Context, history []*genai.Content, prompt *genai.Content) (*genai.GenerateContentResponse, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	contents = append(contents, history...)
	contents = append(contents, prompt)

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText("You are a careful research assistant that plans one action at a time.", ""),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}
	return p.gemini.GenerateContent(ctx, contents, config)
}

// turnsToContents maps the session history to Gemini chat contents. Tool
// output is replayed as user content since it is not a native function
// response.
func turnsToContents(turns []model.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case model.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleModel))
		case model.RoleTool:
			contents = append(contents, genai.NewContentFromText("Tool "+t.Name+" output:\n"+t.Content, genai.RoleUser))
		default:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleUser))
		}
	}
	return contents
}

// normalizePlan picks the plan out of the model reply. A final answer
// keeps everything after its marker; a function call is a single line.
// A reply with neither marker is taken as the answer itself.
func normalizePlan(reply string) string {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")
	reply = strings.TrimSpace(reply)

	lines := strings.Split(reply, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, tool.FunctionCallMarker):
			return line
		case strings.HasPrefix(line, tool.FinalAnswerMarker):
			rest := append([]string{line}, lines[i+1:]...)
			return strings.TrimSpace(strings.Join(rest, "\n"))
		}
	}

	if reply == "" {
		return tool.FinalAnswerMarker + " I could not decide on a next step."
	}
	return tool.FinalAnswerMarker + " " + reply
}
