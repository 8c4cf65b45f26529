package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
)

// ErrTagEmbedding marks failures of an embedding provider: transport errors,
// non-success status and malformed or empty responses.
var ErrTagEmbedding = goerr.NewTag("embedding")

// Embedder converts text into a fixed-length vector. Implementations must
// return an error instead of a zero vector when the provider fails.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GeminiEmbedder embeds text with the Gemini embedding model.
type GeminiEmbedder struct {
	client         Gemini
	dimensionality int
}

type GeminiEmbedderOption func(*GeminiEmbedder)

// WithDimensionality truncates embeddings to d dimensions on the server side.
func WithDimensionality(d int) GeminiEmbedderOption {
	return func(e *GeminiEmbedder) {
		e.dimensionality = d
	}
}

func NewGeminiEmbedder(client Gemini, opts ...GeminiEmbedderOption) *GeminiEmbedder {
	e := &GeminiEmbedder{client: client}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	values, err := e.client.Embedding(ctx, text, e.dimensionality)
	if err != nil {
		return nil, goerr.Wrap(err, "gemini embedding failed", goerr.T(ErrTagEmbedding))
	}
	if len(values) == 0 {
		return nil, goerr.New("gemini returned empty embedding", goerr.T(ErrTagEmbedding))
	}
	if e.dimensionality > 0 && len(values) != e.dimensionality {
		return nil, goerr.New("unexpected embedding dimensionality",
			goerr.T(ErrTagEmbedding),
			goerr.V("expected", e.dimensionality),
			goerr.V("actual", len(values)))
	}
	return values, nil
}
