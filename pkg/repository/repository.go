package repository

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/model"
)

// ErrNotFound is returned when the requested history does not exist
var ErrNotFound = goerr.New("history not found")

// Repository persists transcript metadata. Turns are stored separately in
// blob storage.
type Repository interface {
	// PutHistory creates or replaces a history
	PutHistory(ctx context.Context, history *model.History) error

	// GetHistory retrieves a history by ID
	GetHistory(ctx context.Context, id model.HistoryID) (*model.History, error)

	// ListHistory returns histories, newest first
	ListHistory(ctx context.Context, offset, limit int) ([]*model.History, error)
}
