package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/model"
)

// Memory is an in-process Repository used when Firestore is not configured
type Memory struct {
	mu        sync.RWMutex
	histories map[model.HistoryID]*model.History
}

var _ Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{histories: map[model.HistoryID]*model.History{}}
}

func (r *Memory) PutHistory(_ context.Context, history *model.History) error {
	if history == nil || history.ID == "" {
		return goerr.New("history ID is required")
	}

	copied := *history
	copied.Turns = nil

	r.mu.Lock()
	defer r.mu.Unlock()
	r.histories[history.ID] = &copied
	return nil
}

func (r *Memory) GetHistory(_ context.Context, id model.HistoryID) (*model.History, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.histories[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "no such history", goerr.V("id", id))
	}
	copied := *h
	return &copied, nil
}

func (r *Memory) ListHistory(_ context.Context, offset, limit int) ([]*model.History, error) {
	r.mu.RLock()
	all := make([]*model.History, 0, len(r.histories))
	for _, h := range r.histories {
		copied := *h
		all = append(all, &copied)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
