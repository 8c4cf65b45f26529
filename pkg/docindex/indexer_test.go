package docindex_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/seeker/pkg/adapter/embedtest"
	"github.com/m-mizutani/seeker/pkg/docindex"
)

type fixture struct {
	docDir   string
	indexDir string
	emb      *embedtest.Embedder
	indexer  *docindex.Indexer
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		docDir:   filepath.Join(root, "documents"),
		indexDir: filepath.Join(root, "index"),
		emb:      embedtest.New(256),
	}
	gt.NoError(t, os.MkdirAll(f.docDir, 0o755))
	for name, content := range files {
		f.write(t, name, content)
	}
	f.indexer = docindex.New(f.docDir, f.indexDir, f.emb, docindex.WithChunking(8, 2))
	return f
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	gt.NoError(t, os.WriteFile(filepath.Join(f.docDir, name), []byte(content), 0o644))
}

func TestProcessSkipsUnchangedDocuments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{
		"go.md":   "Go is a statically typed compiled language designed at Google by Robert Griesemer Rob Pike and Ken Thompson",
		"rust.md": "Rust is a multi paradigm language emphasizing performance type safety and concurrency",
	})

	first, err := f.indexer.Process(ctx)
	gt.NoError(t, err)
	gt.Equal(t, first.Processed, []string{"go.md", "rust.md"})
	gt.True(t, first.Chunks > 0)
	calls := f.emb.Calls()
	gt.Equal(t, calls, first.Chunks)

	second, err := f.indexer.Process(ctx)
	gt.NoError(t, err)
	gt.A(t, second.Processed).Length(0)
	gt.Equal(t, second.Skipped, []string{"go.md", "rust.md"})
	gt.Equal(t, f.emb.Calls(), calls)
}

func TestProcessReembedsOnlyChangedDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{
		"a.txt": "alpha beta gamma delta epsilon zeta eta theta iota kappa",
		"b.txt": "one two three four five six seven eight nine ten",
		"c.txt": "red orange yellow green blue indigo violet",
	})

	_, err := f.indexer.Process(ctx)
	gt.NoError(t, err)
	before := len(f.emb.Texts())

	f.write(t, "b.txt", "one two three four five six seven eight nine ten!")

	report, err := f.indexer.Process(ctx)
	gt.NoError(t, err)
	gt.Equal(t, report.Processed, []string{"b.txt"})
	gt.Equal(t, report.Skipped, []string{"a.txt", "c.txt"})

	want := docindex.Chunk("one two three four five six seven eight nine ten!", 8, 2)
	gt.Equal(t, f.emb.Texts()[before:], want)
}

func TestProcessFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{
		"good.txt":   "retrieval augmented generation",
		"bad.txt":    "poison chunk",
		"binary.png": "not really an image",
		".hidden":    "ignored",
	})
	f.emb.FailOn("poison chunk")

	report, err := f.indexer.Process(ctx)
	gt.NoError(t, err)
	gt.Equal(t, report.Processed, []string{"good.txt"})
	gt.A(t, report.Failed).Length(2)

	failed := map[string]bool{}
	for _, fl := range report.Failed {
		failed[fl.Document] = true
	}
	gt.True(t, failed["bad.txt"])
	gt.True(t, failed["binary.png"])

	// failed documents are retried on the next run
	again, err := f.indexer.Process(ctx)
	gt.NoError(t, err)
	gt.A(t, again.Failed).Length(2)
	gt.Equal(t, again.Skipped, []string{"good.txt"})
}

func TestProcessPersistsArtifacts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"doc.md": "persisted vector index content"})

	_, err := f.indexer.Process(ctx)
	gt.NoError(t, err)

	for _, name := range []string{docindex.IndexFile, docindex.MetadataFile, docindex.CacheFile} {
		_, err := os.Stat(filepath.Join(f.indexDir, name))
		gt.NoError(t, err)
	}

	entries, err := os.ReadDir(f.indexDir)
	gt.NoError(t, err)
	for _, e := range entries {
		gt.False(t, strings.HasSuffix(e.Name(), ".tmp"))
	}

	// a fresh indexer over the same directories sees the cache
	reopened := docindex.New(f.docDir, f.indexDir, f.emb, docindex.WithChunking(8, 2))
	report, err := reopened.Process(ctx)
	gt.NoError(t, err)
	gt.Equal(t, report.Skipped, []string{"doc.md"})
}

func TestSearchBuildsIndexLazily(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{
		"paris.txt":  "Paris is the capital of France",
		"berlin.txt": "Berlin is the capital of Germany",
		"pasta.txt":  "Boil pasta in salted water for ten minutes",
	})
	gt.False(t, f.indexer.Ready())

	results, err := f.indexer.Search(ctx, "capital of France", 2)
	gt.NoError(t, err)
	gt.True(t, f.indexer.Ready())
	gt.A(t, results).Length(2)
	gt.Equal(t, results[0].Document, "paris.txt")
	gt.Equal(t, results[0].ChunkID, "paris_0")
	gt.Equal(t, results[0].Chunk, "Paris is the capital of France")
	gt.True(t, results[0].Distance <= results[1].Distance)
}

func TestSearchEmptyDirectory(t *testing.T) {
	f := newFixture(t, nil)

	results, err := f.indexer.Search(context.Background(), "anything", 5)
	gt.NoError(t, err)
	gt.A(t, results).Length(0)
}

func TestProcessRebuildsAfterLosingIndex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{"old.md": "legacy notes about release process"})

	_, err := f.indexer.Process(ctx)
	gt.NoError(t, err)
	gt.NoError(t, os.Remove(filepath.Join(f.indexDir, docindex.IndexFile)))
	gt.False(t, f.indexer.Ready())

	f.write(t, "new.md", "fresh guide for websocket sessions")
	report, err := f.indexer.Process(ctx)
	gt.NoError(t, err)
	gt.Equal(t, report.Processed, []string{"new.md", "old.md"})
	gt.True(t, f.indexer.Ready())

	results, err := f.indexer.Search(ctx, "fresh guide for websocket sessions", 1)
	gt.NoError(t, err)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].Document, "new.md")
	gt.Equal(t, results[0].ChunkID, "new_0")
}

func TestSearchRebuildsMisalignedMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]string{
		"paris.txt":  "Paris is the capital of France",
		"berlin.txt": "Berlin is the capital of Germany",
	})

	_, err := f.indexer.Process(ctx)
	gt.NoError(t, err)

	// metadata left behind by an interrupted save
	gt.NoError(t, os.WriteFile(filepath.Join(f.indexDir, docindex.MetadataFile),
		[]byte(`[{"doc":"stale.txt","chunk":"stale","chunk_id":"stale_0"}]`), 0o644))
	gt.False(t, f.indexer.Ready())

	results, err := f.indexer.Search(ctx, "Berlin is the capital of Germany", 1)
	gt.NoError(t, err)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].Document, "berlin.txt")
	gt.True(t, f.indexer.Ready())
}
