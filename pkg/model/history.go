package model

import (
	"time"

	"github.com/google/uuid"
)

type HistoryID string

// NewHistoryID generates a new unique HistoryID
func NewHistoryID() HistoryID {
	return HistoryID(uuid.New().String())
}

// History is the saved transcript of one agent session
type History struct {
	ID        HistoryID
	SessionID SessionID
	Topic     string
	TurnCount int
	CreatedAt time.Time
	UpdatedAt time.Time

	// Turns are kept in blob storage, not in the metadata document
	Turns []Turn `firestore:"-"`
}
