package adapter_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/seeker/pkg/adapter"
	"google.golang.org/genai"
)

func newTestGemini(t *testing.T) *adapter.GeminiClient {
	projectID := os.Getenv("TEST_GEMINI_PROJECT")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT is not set")
	}
	location := os.Getenv("TEST_GEMINI_LOCATION")
	if location == "" {
		location = "us-central1"
	}

	client, err := adapter.NewGemini(context.Background(), projectID, location)
	gt.NoError(t, err)
	return client
}

func TestGeminiGenerateContent(t *testing.T) {
	client := newTestGemini(t)

	contents := []*genai.Content{
		genai.NewContentFromText("What is the capital of France? Answer in one word.", genai.RoleUser),
	}
	resp, err := client.GenerateContent(context.Background(), contents, nil)
	gt.NoError(t, err)
	gt.True(t, len(resp.Candidates) > 0)
	gt.S(t, resp.Text()).Contains("Paris")
}

func TestGeminiEmbedding(t *testing.T) {
	client := newTestGemini(t)

	values, err := client.Embedding(context.Background(), "vector search", 256)
	gt.NoError(t, err)
	gt.A(t, values).Length(256)
}

type fakeGemini struct {
	values []float32
	err    error
	dims   []int
}

func (f *fakeGemini) GenerateContent(context.Context, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return nil, nil
}

func (f *fakeGemini) Embedding(_ context.Context, _ string, dim int) ([]float32, error) {
	f.dims = append(f.dims, dim)
	return f.values, f.err
}
