// Package embedtest provides deterministic embedders for tests.
package embedtest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/adapter"
)

const DefaultDim = 64

// Embedder hashes every lowercased word into a signed bucket and normalizes
// the sum, so texts sharing words land close to each other.
type Embedder struct {
	dim   int
	calls atomic.Int64

	mu   sync.Mutex
	fail map[string]bool
	seen []string
}

func New(dim int) *Embedder {
	if dim <= 0 {
		dim = DefaultDim
	}
	return &Embedder{dim: dim, fail: map[string]bool{}}
}

// FailOn makes Embed return an embedding error for text.
func (e *Embedder) FailOn(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail[text] = true
}

// Calls returns how many Embed calls were made, including failed ones.
func (e *Embedder) Calls() int {
	return int(e.calls.Load())
}

// Texts returns every text passed to Embed in call order.
func (e *Embedder) Texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.seen...)
}

func (e *Embedder) Dim() int {
	return e.dim
}

func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	e.mu.Lock()
	e.seen = append(e.seen, text)
	failing := e.fail[text]
	e.mu.Unlock()

	if failing {
		return nil, goerr.New("embedding provider unavailable", goerr.T(adapter.ErrTagEmbedding))
	}

	vec := make([]float32, e.dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w == "" {
			continue
		}
		h := fnv.New64a()
		h.Write([]byte(w))
		seed := h.Sum64()
		for range 3 {
			seed = seed*6364136223846793005 + 1442695040888963407
			idx := int(seed>>33) % e.dim
			if seed&1 == 0 {
				vec[idx]++
			} else {
				vec[idx]--
			}
		}
	}
	return normalize(vec), nil
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// keep empty text distinguishable from a provider failure
		vec[0] = 1
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}

var _ adapter.Embedder = (*Embedder)(nil)
