package adapter

import (
	"context"
	"slices"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"
)

// CachedEmbedder memoizes embeddings by exact text. Failed calls are never
// cached.
type CachedEmbedder struct {
	base  Embedder
	cache *ristretto.Cache
}

// NewCachedEmbedder wraps base with a cache holding up to maxEntries vectors.
func NewCachedEmbedder(base Embedder, maxEntries int64) (*CachedEmbedder, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,

		// cost counts entries, not bytes
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding cache", goerr.V("max_entries", maxEntries))
	}

	return &CachedEmbedder{base: base, cache: cache}, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return slices.Clone(vec), nil
		}
	}

	vec, err := c.base.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Set(text, slices.Clone(vec), 1)
	c.cache.Wait()
	return vec, nil
}

func (c *CachedEmbedder) Close() {
	c.cache.Close()
}
