// Package memory keeps the per-session semantic memory: records paired
// one-to-one with their embeddings in a vector index.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/adapter"
	"github.com/m-mizutani/seeker/pkg/model"
	"github.com/m-mizutani/seeker/pkg/vector"
)

// overfetch is the candidate multiplier applied before filtering
const overfetch = 2

type Store struct {
	embedder adapter.Embedder
	now      func() time.Time

	mu      sync.RWMutex
	index   *vector.Index
	records []*model.MemoryRecord
}

type Option func(*Store)

// WithClock replaces time.Now for timestamps assigned on Add
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(embedder adapter.Embedder, opts ...Option) *Store {
	s := &Store{
		embedder: embedder,
		now:      time.Now,
		index:    vector.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add embeds record.Text and stores the vector and the record together. On
// any failure the store is left unchanged. Missing ID and Timestamp are
// filled in.
func (s *Store) Add(ctx context.Context, record *model.MemoryRecord) (*model.MemoryRecord, error) {
	if record == nil {
		return nil, goerr.New("memory record is nil")
	}
	if err := record.Kind.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid memory record")
	}

	vec, err := s.embedder.Embed(ctx, record.Text)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed memory record", goerr.V("kind", record.Kind))
	}

	stored := record.Clone()
	if stored.ID == "" {
		stored.ID = model.NewMemoryID()
	}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.index.Add(vec); err != nil {
		return nil, goerr.Wrap(err, "failed to index memory record", goerr.V("id", stored.ID))
	}
	s.records = append(s.records, stored)

	return stored.Clone(), nil
}

// Filter narrows the result of Retrieve
type Filter func(*filterSet)

type filterSet struct {
	kind    model.Kind
	tags    []string
	session model.SessionID
}

func WithKind(kind model.Kind) Filter {
	return func(f *filterSet) {
		f.kind = kind
	}
}

// WithTags keeps records sharing at least one tag with tags
func WithTags(tags ...string) Filter {
	return func(f *filterSet) {
		f.tags = append(f.tags, tags...)
	}
}

func WithSession(id model.SessionID) Filter {
	return func(f *filterSet) {
		f.session = id
	}
}

func (f *filterSet) match(r *model.MemoryRecord) bool {
	if f.kind != "" && r.Kind != f.kind {
		return false
	}
	if len(f.tags) > 0 && !r.HasAnyTag(f.tags) {
		return false
	}
	if f.session != "" && r.SessionID != f.session {
		return false
	}
	return true
}

// Retrieve returns at most topK records nearest to query that satisfy every
// filter. Candidates are limited to the 2*topK nearest records before
// filtering, so fewer than topK matches may come back even when more exist.
// An empty store yields nil without calling the embedder.
func (s *Store) Retrieve(ctx context.Context, query string, topK int, filters ...Filter) ([]*model.MemoryRecord, error) {
	if topK <= 0 || s.Len() == 0 {
		return nil, nil
	}

	fs := &filterSet{}
	for _, f := range filters {
		f(fs)
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed memory query")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits, err := s.index.Search(vec, topK*overfetch)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search memory index")
	}

	var results []*model.MemoryRecord
	for _, hit := range hits {
		r := s.records[hit.Position]
		if !fs.match(r) {
			continue
		}
		results = append(results, r.Clone())
		if len(results) == topK {
			break
		}
	}
	return results, nil
}

// Len returns the number of stored records
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Records returns copies of every record in insertion order
func (s *Store) Records() []*model.MemoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.MemoryRecord, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out
}

// consistent reports whether every record has exactly one vector
func (s *Store) consistent() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Len() == len(s.records)
}
