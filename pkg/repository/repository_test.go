package repository_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/seeker/pkg/model"
	"github.com/m-mizutani/seeker/pkg/repository"
)

func testRepository(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)
	session := model.NewSessionID(now)

	histories := []*model.History{
		{ID: model.NewHistoryID(), SessionID: session, Topic: "golang generics", TurnCount: 4, CreatedAt: now.Add(-2 * time.Hour), UpdatedAt: now},
		{ID: model.NewHistoryID(), SessionID: session, Topic: "vector search", TurnCount: 2, CreatedAt: now.Add(-1 * time.Hour), UpdatedAt: now},
		{ID: model.NewHistoryID(), SessionID: session, Topic: "websocket", TurnCount: 6, CreatedAt: now, UpdatedAt: now},
	}
	for _, h := range histories {
		gt.NoError(t, repo.PutHistory(ctx, h))
	}

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetHistory(ctx, histories[1].ID)
		gt.NoError(t, err)
		gt.Equal(t, got.Topic, "vector search")
		gt.Equal(t, got.TurnCount, 2)
		gt.Equal(t, got.SessionID, session)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.GetHistory(ctx, model.HistoryID("no-such-history"))
		gt.True(t, errors.Is(err, repository.ErrNotFound))
	})

	t.Run("overwrite", func(t *testing.T) {
		updated := *histories[0]
		updated.TurnCount = 10
		gt.NoError(t, repo.PutHistory(ctx, &updated))

		got, err := repo.GetHistory(ctx, updated.ID)
		gt.NoError(t, err)
		gt.Equal(t, got.TurnCount, 10)
	})

	t.Run("missing ID", func(t *testing.T) {
		gt.Error(t, repo.PutHistory(ctx, &model.History{Topic: "x"}))
	})
}

func TestMemory(t *testing.T) {
	testRepository(t, repository.NewMemory())
}

func TestMemoryListHistory(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []model.HistoryID
	for i := range 5 {
		h := &model.History{
			ID:        model.NewHistoryID(),
			Topic:     "topic",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		ids = append(ids, h.ID)
		gt.NoError(t, repo.PutHistory(ctx, h))
	}

	all, err := repo.ListHistory(ctx, 0, 0)
	gt.NoError(t, err)
	gt.A(t, all).Length(5)
	gt.Equal(t, all[0].ID, ids[4])
	gt.Equal(t, all[4].ID, ids[0])

	page, err := repo.ListHistory(ctx, 1, 2)
	gt.NoError(t, err)
	gt.A(t, page).Length(2)
	gt.Equal(t, page[0].ID, ids[3])
	gt.Equal(t, page[1].ID, ids[2])

	empty, err := repo.ListHistory(ctx, 10, 2)
	gt.NoError(t, err)
	gt.A(t, empty).Length(0)
}

func TestMemoryDropsTurns(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()

	h := &model.History{
		ID:    model.NewHistoryID(),
		Turns: []model.Turn{{Role: model.RoleUser, Content: "hello"}},
	}
	gt.NoError(t, repo.PutHistory(ctx, h))

	got, err := repo.GetHistory(ctx, h.ID)
	gt.NoError(t, err)
	gt.A(t, got.Turns).Length(0)
	gt.A(t, h.Turns).Length(1)
}

func TestFirestore(t *testing.T) {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	repo, err := repository.NewFirestore(context.Background(), projectID, databaseID)
	gt.NoError(t, err)
	defer repo.Close()

	testRepository(t, repo)
}
