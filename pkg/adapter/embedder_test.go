package adapter_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/seeker/pkg/adapter"
)

func TestGeminiEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("returns provider values", func(t *testing.T) {
		g := &fakeGemini{values: []float32{0.1, 0.2, 0.3}}
		e := adapter.NewGeminiEmbedder(g, adapter.WithDimensionality(3))

		vec, err := e.Embed(ctx, "hello")
		gt.NoError(t, err)
		gt.Equal(t, vec, []float32{0.1, 0.2, 0.3})
		gt.Equal(t, g.dims, []int{3})
	})

	t.Run("transport failure is tagged", func(t *testing.T) {
		g := &fakeGemini{err: errors.New("connection reset")}
		_, err := adapter.NewGeminiEmbedder(g).Embed(ctx, "hello")
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, adapter.ErrTagEmbedding))
	})

	t.Run("empty vector is an error, not a zero vector", func(t *testing.T) {
		g := &fakeGemini{values: []float32{}}
		vec, err := adapter.NewGeminiEmbedder(g).Embed(ctx, "hello")
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, adapter.ErrTagEmbedding))
		gt.A(t, vec).Length(0)
	})

	t.Run("unexpected dimensionality", func(t *testing.T) {
		g := &fakeGemini{values: []float32{1, 2}}
		_, err := adapter.NewGeminiEmbedder(g, adapter.WithDimensionality(3)).Embed(ctx, "hello")
		gt.True(t, goerr.HasTag(err, adapter.ErrTagEmbedding))
	})
}
