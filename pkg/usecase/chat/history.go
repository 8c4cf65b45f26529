package chat

import (
	"context"
	"encoding/json"
	"io"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/adapter"
	"github.com/m-mizutani/seeker/pkg/model"
	"github.com/m-mizutani/seeker/pkg/repository"
)

func historyKey(id model.HistoryID) string {
	return "histories/" + string(id) + ".json"
}

// HistoryRecorder saves transcripts: turns as JSON in storage, metadata in
// the repository
type HistoryRecorder struct {
	repo    repository.Repository
	storage adapter.Storage
}

var _ Recorder = (*HistoryRecorder)(nil)

func NewHistoryRecorder(repo repository.Repository, storage adapter.Storage) *HistoryRecorder {
	return &HistoryRecorder{repo: repo, storage: storage}
}

func (r *HistoryRecorder) Save(ctx context.Context, history *model.History) error {
	if history.ID == "" {
		return goerr.New("history ID is required")
	}

	writer, err := r.storage.Put(ctx, historyKey(history.ID))
	if err != nil {
		return goerr.Wrap(err, "failed to create storage writer", goerr.V("id", history.ID))
	}

	data, err := json.Marshal(history.Turns)
	if err != nil {
		_ = writer.Close()
		return goerr.Wrap(err, "failed to marshal history turns")
	}
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return goerr.Wrap(err, "failed to write history to storage", goerr.V("id", history.ID))
	}
	if err := writer.Close(); err != nil {
		return goerr.Wrap(err, "failed to close storage writer", goerr.V("id", history.ID))
	}

	if err := r.repo.PutHistory(ctx, history); err != nil {
		return goerr.Wrap(err, "failed to put history to repository", goerr.V("id", history.ID))
	}
	return nil
}

// Load returns the history metadata together with its turns
func (r *HistoryRecorder) Load(ctx context.Context, id model.HistoryID) (*model.History, error) {
	history, err := r.repo.GetHistory(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get history from repository")
	}

	reader, err := r.storage.Get(ctx, historyKey(id))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get history from storage", goerr.V("id", id))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read history data", goerr.V("id", id))
	}

	var turns []model.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal history turns", goerr.V("id", id))
	}
	history.Turns = turns
	return history, nil
}

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>\]\)]+`)

// SourceURLs lists the URLs found in tool output turns, in order of first
// appearance
func SourceURLs(turns []model.Turn) []string {
	seen := map[string]bool{}
	var urls []string
	for _, t := range turns {
		if t.Role != model.RoleTool {
			continue
		}
		for _, u := range urlPattern.FindAllString(t.Content, -1) {
			u = strings.TrimRight(u, ".,;:")
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}
	return urls
}
