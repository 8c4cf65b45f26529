package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const historyCollection = "histories"

// Firestore implements Repository on Cloud Firestore
type Firestore struct {
	client *firestore.Client
}

var _ Repository = (*Firestore)(nil)

// NewFirestore connects to the given Firestore database
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	if projectID == "" {
		return nil, goerr.New("firestore project ID is required")
	}
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID),
			goerr.V("database", databaseID))
	}
	return &Firestore{client: client}, nil
}

func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) PutHistory(ctx context.Context, history *model.History) error {
	if history == nil || history.ID == "" {
		return goerr.New("history ID is required")
	}

	doc := r.client.Collection(historyCollection).Doc(string(history.ID))
	if _, err := doc.Set(ctx, history); err != nil {
		return goerr.Wrap(err, "failed to put history", goerr.V("id", history.ID))
	}
	return nil
}

func (r *Firestore) GetHistory(ctx context.Context, id model.HistoryID) (*model.History, error) {
	snap, err := r.client.Collection(historyCollection).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "no such history", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get history", goerr.V("id", id))
	}

	var history model.History
	if err := snap.DataTo(&history); err != nil {
		return nil, goerr.Wrap(err, "failed to decode history", goerr.V("id", id))
	}
	return &history, nil
}

func (r *Firestore) ListHistory(ctx context.Context, offset, limit int) ([]*model.History, error) {
	query := r.client.Collection(historyCollection).
		OrderBy("CreatedAt", firestore.Desc).
		Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var histories []*model.History
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list histories",
				goerr.V("offset", offset),
				goerr.V("limit", limit))
		}

		var history model.History
		if err := doc.DataTo(&history); err != nil {
			return nil, goerr.Wrap(err, "failed to decode history", goerr.V("id", doc.Ref.ID))
		}
		histories = append(histories, &history)
	}
	return histories, nil
}
