package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrInvalidKind = goerr.New("invalid memory kind")
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// Kind classifies what a memory record was derived from
type Kind string

const (
	KindPreference Kind = "preference"
	KindToolOutput Kind = "tool_output"
	KindFact       Kind = "fact"
	KindQuery      Kind = "query"
	KindSystem     Kind = "system"
)

// Validate checks if the kind is valid
func (k Kind) Validate() error {
	switch k {
	case KindPreference, KindToolOutput, KindFact, KindQuery, KindSystem:
		return nil
	default:
		return goerr.Wrap(ErrInvalidKind, "unknown kind", goerr.V("kind", k))
	}
}

// MemoryRecord is one observation held by the memory store. It is never
// mutated after it has been added.
type MemoryRecord struct {
	ID          MemoryID  `json:"id"`
	Text        string    `json:"text"`
	Kind        Kind      `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	ToolName    string    `json:"tool_name,omitempty"`
	SourceQuery string    `json:"user_query,omitempty"`
	Tags        []string  `json:"tags"`
	SessionID   SessionID `json:"session_id,omitempty"`
}

// Clone returns a deep copy so callers cannot alias the stored tags
func (r *MemoryRecord) Clone() *MemoryRecord {
	c := *r
	c.Tags = slices.Clone(r.Tags)
	return &c
}

// HasAnyTag reports whether the record carries at least one of tags
func (r *MemoryRecord) HasAnyTag(tags []string) bool {
	for _, t := range tags {
		if slices.Contains(r.Tags, t) {
			return true
		}
	}
	return false
}
