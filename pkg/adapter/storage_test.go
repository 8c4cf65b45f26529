package adapter_test

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/seeker/pkg/adapter"
)

func testStorage(t *testing.T, s adapter.Storage) {
	ctx := context.Background()
	key := "histories/" + uuid.NewString() + ".json"

	w, err := s.Put(ctx, key)
	gt.NoError(t, err)
	_, err = w.Write([]byte(`{"turns":[]}`))
	gt.NoError(t, err)
	gt.NoError(t, w.Close())

	r, err := s.Get(ctx, key)
	gt.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	gt.NoError(t, err)
	gt.Equal(t, string(data), `{"turns":[]}`)

	_, err = s.Get(ctx, "histories/missing.json")
	gt.Error(t, err)
}

func TestFileStorage(t *testing.T) {
	testStorage(t, adapter.NewFileStorage(t.TempDir()))
}

func TestCloudStorage(t *testing.T) {
	bucket := os.Getenv("TEST_STORAGE_BUCKET")
	if bucket == "" {
		t.Skip("TEST_STORAGE_BUCKET is not set")
	}

	s, err := adapter.NewStorage(context.Background(), bucket, "seeker-test/")
	gt.NoError(t, err)
	testStorage(t, s)
}
