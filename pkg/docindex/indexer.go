// Package docindex builds and queries the persisted document index shared
// by every session.
package docindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/adapter"
	"github.com/m-mizutani/seeker/pkg/model"
	"github.com/m-mizutani/seeker/pkg/utils/logging"
	"github.com/m-mizutani/seeker/pkg/vector"
)

const (
	IndexFile    = "index.bin"
	MetadataFile = "metadata.json"
	CacheFile    = "doc_index_cache.json"
)

// ErrIndexMismatch means the persisted vectors, metadata and cache do not
// describe the same set of chunks.
var ErrIndexMismatch = goerr.New("document index artifacts are out of sync")

// Indexer owns the documents directory and the index artifacts derived from
// it. Only the indexer writes the artifacts.
type Indexer struct {
	docDir    string
	indexDir  string
	embedder  adapter.Embedder
	extractor Extractor
	chunkSize int
	overlap   int

	// runMu serializes Process; artifactMu keeps Search from reading a
	// half-replaced set of artifacts.
	runMu      sync.Mutex
	artifactMu sync.RWMutex
}

type Option func(*Indexer)

func WithExtractor(e Extractor) Option {
	return func(x *Indexer) {
		x.extractor = e
	}
}

func WithChunking(size, overlap int) Option {
	return func(x *Indexer) {
		x.chunkSize = size
		x.overlap = overlap
	}
}

func New(docDir, indexDir string, embedder adapter.Embedder, opts ...Option) *Indexer {
	x := &Indexer{
		docDir:    docDir,
		indexDir:  indexDir,
		embedder:  embedder,
		extractor: TextExtractor{},
		chunkSize: ChunkSize,
		overlap:   ChunkOverlap,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *Indexer) DocumentDir() string {
	return x.docDir
}

// Failure is a document that could not be indexed in a run
type Failure struct {
	Document string `json:"document"`
	Error    string `json:"error"`
}

// Report summarizes one Process run
type Report struct {
	Processed []string  `json:"processed"`
	Skipped   []string  `json:"skipped"`
	Failed    []Failure `json:"failed"`
	Chunks    int       `json:"chunks"`
}

type artifacts struct {
	index    *vector.Index
	metadata []model.ChunkMeta
	cache    map[string]string
}

// Process indexes every new or changed document. Documents whose content
// hash matches the cache are skipped. A failing document is reported and
// left out of the cache so the next run retries it. All three artifacts are
// written at the end of the run.
func (x *Indexer) Process(ctx context.Context) (*Report, error) {
	x.runMu.Lock()
	defer x.runMu.Unlock()

	logger := logging.From(ctx)

	if err := os.MkdirAll(x.docDir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create documents directory", goerr.V("dir", x.docDir))
	}
	if err := os.MkdirAll(x.indexDir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create index directory", goerr.V("dir", x.indexDir))
	}

	x.artifactMu.RLock()
	art, err := x.load()
	x.artifactMu.RUnlock()
	if errors.Is(err, ErrIndexMismatch) {
		logger.Warn("rebuilding document index from scratch", "error", err)
		art = newArtifacts()
	} else if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(x.docDir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list documents", goerr.V("dir", x.docDir))
	}

	report := &Report{}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") || filepath.Ext(name) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, goerr.Wrap(err, "document processing interrupted")
		}

		path := filepath.Join(x.docDir, name)
		hash, err := fileHash(path)
		if err != nil {
			logger.Warn("failed to hash document", "doc", name, "error", err)
			report.Failed = append(report.Failed, Failure{Document: name, Error: err.Error()})
			continue
		}
		if art.cache[name] == hash {
			report.Skipped = append(report.Skipped, name)
			continue
		}

		logger.Info("processing document", "doc", name)
		vecs, metas, err := x.embedDocument(ctx, path)
		if err != nil {
			logger.Error("failed to process document", "doc", name, "error", err)
			report.Failed = append(report.Failed, Failure{Document: name, Error: err.Error()})
			continue
		}

		if err := checkDims(art.index.Dim(), vecs); err != nil {
			logger.Error("failed to index document", "doc", name, "error", err)
			report.Failed = append(report.Failed, Failure{Document: name, Error: err.Error()})
			continue
		}
		for _, vec := range vecs {
			if _, err := art.index.Add(vec); err != nil {
				return nil, goerr.Wrap(err, "failed to add chunk vector", goerr.V("doc", name))
			}
		}

		art.metadata = append(art.metadata, metas...)
		art.cache[name] = hash
		report.Processed = append(report.Processed, name)
		report.Chunks += len(metas)
	}

	x.artifactMu.Lock()
	defer x.artifactMu.Unlock()
	if err := x.save(art); err != nil {
		return nil, err
	}

	if len(report.Processed) > 0 {
		logger.Info("saved document index",
			"processed", len(report.Processed),
			"chunks", report.Chunks,
			"total", art.index.Len())
	} else {
		logger.Debug("no new documents to index", "skipped", len(report.Skipped))
	}

	return report, nil
}

func (x *Indexer) embedDocument(ctx context.Context, path string) ([][]float32, []model.ChunkMeta, error) {
	text, err := x.extractor.Extract(ctx, path)
	if err != nil {
		return nil, nil, err
	}

	name := filepath.Base(path)
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	chunks := Chunk(text, x.chunkSize, x.overlap)
	vecs := make([][]float32, 0, len(chunks))
	metas := make([]model.ChunkMeta, 0, len(chunks))
	for i, chunk := range chunks {
		vec, err := x.embedder.Embed(ctx, chunk)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to embed chunk", goerr.V("doc", name), goerr.V("chunk", i))
		}
		vecs = append(vecs, vec)
		metas = append(metas, model.ChunkMeta{
			Document: name,
			Chunk:    chunk,
			ChunkID:  stem + "_" + strconv.Itoa(i),
		})
	}
	return vecs, metas, nil
}

// checkDims rejects a document whose vectors would not fit the index, so a
// document is either indexed completely or not at all.
func checkDims(dim int, vecs [][]float32) error {
	for i, vec := range vecs {
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) == 0 || len(vec) != dim {
			return goerr.Wrap(vector.ErrDimensionMismatch, "chunk vector does not fit the index",
				goerr.V("chunk", i),
				goerr.V("expected", dim),
				goerr.V("actual", len(vec)))
		}
	}
	return nil
}

// Ready reports whether the index and its metadata exist on disk and
// agree with each other.
func (x *Indexer) Ready() bool {
	for _, name := range []string{IndexFile, MetadataFile} {
		if _, err := os.Stat(filepath.Join(x.indexDir, name)); err != nil {
			return false
		}
	}

	x.artifactMu.RLock()
	defer x.artifactMu.RUnlock()
	_, err := x.load()
	return err == nil
}

// EnsureReady runs Process once when the persisted index is missing or
// inconsistent.
func (x *Indexer) EnsureReady(ctx context.Context) error {
	if x.Ready() {
		return nil
	}

	logging.From(ctx).Info("document index not found, processing documents", "dir", x.docDir)
	if _, err := x.Process(ctx); err != nil {
		return goerr.Wrap(err, "failed to build document index")
	}
	return nil
}

// SearchResult is a chunk matched by Search
type SearchResult struct {
	model.ChunkMeta
	Distance float32 `json:"distance"`
}

// Search returns up to k chunks nearest to query. The index is built first
// if it does not exist yet.
func (x *Indexer) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if err := x.EnsureReady(ctx); err != nil {
		return nil, err
	}

	x.artifactMu.RLock()
	art, err := x.load()
	x.artifactMu.RUnlock()
	if err != nil {
		return nil, err
	}
	if art.index.Len() == 0 {
		return nil, nil
	}

	vec, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed document query")
	}

	hits, err := art.index.Search(vec, k)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search document index")
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.Position >= len(art.metadata) {
			continue
		}
		results = append(results, SearchResult{
			ChunkMeta: art.metadata[hit.Position],
			Distance:  hit.Distance,
		})
	}
	return results, nil
}

func newArtifacts() *artifacts {
	return &artifacts{
		index: vector.New(),
		cache: map[string]string{},
	}
}

// load reads the persisted artifacts. A set whose parts disagree fails with
// ErrIndexMismatch.
func (x *Indexer) load() (*artifacts, error) {
	art := newArtifacts()

	missing := 0
	f, err := os.Open(filepath.Join(x.indexDir, IndexFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		missing++
	case err != nil:
		return nil, goerr.Wrap(err, "failed to open document index")
	default:
		defer f.Close()
		if _, err := art.index.ReadFrom(f); err != nil {
			return nil, goerr.Wrap(err, "failed to load document index")
		}
	}

	if _, err := os.Stat(filepath.Join(x.indexDir, MetadataFile)); errors.Is(err, os.ErrNotExist) {
		missing++
	}
	if err := readJSON(filepath.Join(x.indexDir, MetadataFile), &art.metadata); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(x.indexDir, CacheFile), &art.cache); err != nil {
		return nil, err
	}
	if art.cache == nil {
		art.cache = map[string]string{}
	}

	if art.index.Len() != len(art.metadata) {
		return nil, goerr.Wrap(ErrIndexMismatch, "vector count differs from metadata",
			goerr.V("vectors", art.index.Len()),
			goerr.V("metadata", len(art.metadata)))
	}
	if missing > 0 && len(art.cache) > 0 {
		return nil, goerr.Wrap(ErrIndexMismatch, "cache refers to a missing index",
			goerr.V("cached", len(art.cache)))
	}

	return art, nil
}

// save stages every artifact in a temp file before renaming any of them.
func (x *Indexer) save(art *artifacts) error {
	staged := map[string]string{}
	defer func() {
		for _, tmp := range staged {
			_ = os.Remove(tmp)
		}
	}()

	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{IndexFile, func(w io.Writer) error { _, err := art.index.WriteTo(w); return err }},
		{MetadataFile, jsonWriter(art.metadata)},
		{CacheFile, jsonWriter(art.cache)},
	}

	for _, w := range writers {
		tmp, err := writeTemp(x.indexDir, w.name, w.write)
		if err != nil {
			return err
		}
		staged[w.name] = tmp
	}

	for _, w := range writers {
		dst := filepath.Join(x.indexDir, w.name)
		if err := os.Rename(staged[w.name], dst); err != nil {
			return goerr.Wrap(err, "failed to replace index artifact", goerr.V("path", dst))
		}
		delete(staged, w.name)
	}
	return nil
}

func writeTemp(dir, name string, write func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", goerr.Wrap(err, "failed to create temp artifact", goerr.V("name", name))
	}

	if err := write(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", goerr.Wrap(err, "failed to write artifact", goerr.V("name", name))
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", goerr.Wrap(err, "failed to close artifact", goerr.V("name", name))
	}
	return f.Name(), nil
}

func jsonWriter(v any) func(io.Writer) error {
	return func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return goerr.Wrap(err, "failed to read artifact", goerr.V("path", path))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return goerr.Wrap(err, "failed to parse artifact", goerr.V("path", path))
	}
	return nil
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", goerr.Wrap(err, "failed to open document", goerr.V("path", path))
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", goerr.Wrap(err, "failed to hash document", goerr.V("path", path))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
