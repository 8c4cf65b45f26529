package chat

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/adapter"
	"github.com/m-mizutani/seeker/pkg/model"
	"google.golang.org/genai"
)

//go:embed prompt/perception.md
var perceptionPromptRaw string

var perceptionPromptTmpl = template.Must(template.New("perception").Parse(perceptionPromptRaw))

// GeminiPerceiver extracts intent, tool hint and entities with a
// structured Gemini response
type GeminiPerceiver struct {
	gemini adapter.Gemini
}

func NewGeminiPerceiver(gemini adapter.Gemini) *GeminiPerceiver {
	return &GeminiPerceiver{gemini: gemini}
}

var perceptionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"intent": {
			Type:        genai.TypeString,
			Description: "Short label of what the user wants",
		},
		"tool_hint": {
			Type:        genai.TypeString,
			Description: "Most useful tool, if any",
		},
		"entities": {
			Type:        genai.TypeArray,
			Description: "Named things mentioned by the user",
			Items:       &genai.Schema{Type: genai.TypeString},
		},
	},
	Required: []string{"intent"},
}

func (p *GeminiPerceiver) Perceive(ctx context.Context, text string) (*model.Perception, error) {
	var buf bytes.Buffer
	if err := perceptionPromptTmpl.Execute(&buf, map[string]any{"Input": text}); err != nil {
		return nil, goerr.Wrap(err, "failed to execute perception prompt template")
	}

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   perceptionSchema,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}

	resp, err := p.gemini.GenerateContent(ctx, []*genai.Content{
		genai.NewContentFromText(buf.String(), genai.RoleUser),
	}, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate perception")
	}

	raw := strings.TrimSpace(responseText(resp))
	if raw == "" {
		return nil, goerr.New("empty perception response")
	}

	var perception model.Perception
	if err := json.Unmarshal([]byte(raw), &perception); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal perception", goerr.V("json", raw))
	}
	return &perception, nil
}
