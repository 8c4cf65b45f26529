package chat

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/adapter"
	"google.golang.org/genai"
)

const (
	compressionRatio = 0.7 // share of history bytes folded into the summary
	summaryHeader    = "=== Previous Conversation Summary ===\n\n"
)

//go:embed prompt/summarize.md
var summarizePrompt string

// isTokenLimitError reports whether Gemini refused the request because the
// input was too long
func isTokenLimitError(err error) bool {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	// "The input token count (2500030) exceeds the maximum number of tokens allowed (1048576)."
	return apiErr.Code == 400 &&
		apiErr.Status == "INVALID_ARGUMENT" &&
		strings.HasPrefix(apiErr.Message, "The input token count (") &&
		strings.Contains(apiErr.Message, ") exceeds the maximum number of tokens allowed (")
}

func contentSize(content *genai.Content) int {
	data, err := json.Marshal(content)
	if err != nil {
		return 0
	}
	return len(data)
}

// compactHistory folds the oldest contents, up to compressionRatio of the
// total size, into one summary message and keeps the rest as is.
func compactHistory(ctx context.Context, gemini adapter.Gemini, contents []*genai.Content) ([]*genai.Content, error) {
	if len(contents) == 0 {
		return nil, goerr.New("history is empty")
	}

	sizes := make([]int, len(contents))
	total := 0
	for i, c := range contents {
		sizes[i] = contentSize(c)
		total += sizes[i]
	}

	threshold := int(float64(total) * compressionRatio)
	cut, acc := 0, 0
	for i, size := range sizes {
		acc += size
		if acc >= threshold {
			cut = i + 1
			break
		}
	}
	if cut == 0 || cut >= len(contents) {
		return nil, goerr.New("insufficient content to compress",
			goerr.V("contents", len(contents)),
			goerr.V("bytes", total))
	}

	summary, err := summarize(ctx, gemini, contents[:cut])
	if err != nil {
		return nil, goerr.Wrap(err, "failed to summarize history")
	}

	compacted := make([]*genai.Content, 0, len(contents)-cut+1)
	compacted = append(compacted, genai.NewContentFromText(summaryHeader+summary, genai.RoleUser))
	compacted = append(compacted, contents[cut:]...)
	return compacted, nil
}

func summarize(ctx context.Context, gemini adapter.Gemini, contents []*genai.Content) (string, error) {
	req := make([]*genai.Content, 0, len(contents)+1)
	req = append(req, contents...)
	req = append(req, genai.NewContentFromText(summarizePrompt, genai.RoleUser))

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText("You are an assistant that keeps notes of a research conversation.", ""),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}

	resp, err := gemini.GenerateContent(ctx, req, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate summary")
	}

	summary := strings.TrimSpace(responseText(resp))
	if summary == "" {
		return "", goerr.New("empty summary generated")
	}
	return summary, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
