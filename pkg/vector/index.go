// Package vector implements an append-only exact nearest-neighbor index
// using Euclidean distance.
package vector

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrEmptyVector       = errors.New("empty vector")
	ErrInvalidFormat     = errors.New("invalid index format")
)

const (
	fileMagic   = "SKVX"
	fileVersion = uint32(1)

	maxDim    = 1 << 16
	readBlock = 1 << 16
)

// Hit is a search result. Position is the insertion order of the vector.
type Hit struct {
	Position int
	Distance float32
}

// Index stores vectors in insertion order. The dimensionality is fixed by the
// first Add unless given to NewWithDim. Concurrent readers are safe with a
// single writer.
type Index struct {
	mu   sync.RWMutex
	dim  int
	data []float32
}

func New() *Index {
	return &Index{}
}

func NewWithDim(dim int) *Index {
	return &Index{dim: dim}
}

// Dim returns 0 until the dimensionality is known.
func (x *Index) Dim() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dim
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.len()
}

func (x *Index) len() int {
	if x.dim == 0 {
		return 0
	}
	return len(x.data) / x.dim
}

// Add appends vec and returns its position.
func (x *Index) Add(vec []float32) (int, error) {
	if len(vec) == 0 {
		return 0, goerr.Wrap(ErrEmptyVector, "cannot add vector")
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dim == 0 {
		x.dim = len(vec)
	}
	if len(vec) != x.dim {
		return 0, goerr.Wrap(ErrDimensionMismatch, "cannot add vector",
			goerr.V("expected", x.dim),
			goerr.V("actual", len(vec)))
	}

	pos := x.len()
	x.data = append(x.data, vec...)
	return pos, nil
}

// Vector returns a copy of the vector at pos.
func (x *Index) Vector(pos int) ([]float32, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if pos < 0 || pos >= x.len() {
		return nil, false
	}
	return slices.Clone(x.data[pos*x.dim : (pos+1)*x.dim]), true
}

// Search returns up to k hits ordered by ascending distance. Equal distances
// keep the lower position first.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	n := x.len()
	if n == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != x.dim {
		return nil, goerr.Wrap(ErrDimensionMismatch, "cannot search index",
			goerr.V("expected", x.dim),
			goerr.V("actual", len(query)))
	}

	hits := make([]Hit, n)
	for i := range n {
		hits[i] = Hit{Position: i, Distance: l2(query, x.data[i*x.dim:(i+1)*x.dim])}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Distance < hits[b].Distance
	})

	if k < n {
		hits = hits[:k]
	}
	return hits, nil
}

func l2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

// WriteTo serializes the index: magic, version, dim, count, then every value
// as little-endian float32.
func (x *Index) WriteTo(w io.Writer) (int64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	bw := bufio.NewWriter(w)
	cw := &countingWriter{w: bw}

	if _, err := cw.Write([]byte(fileMagic)); err != nil {
		return cw.n, goerr.Wrap(err, "failed to write index header")
	}
	header := []uint32{fileVersion, uint32(x.dim), uint32(x.len())}
	if err := binary.Write(cw, binary.LittleEndian, header); err != nil {
		return cw.n, goerr.Wrap(err, "failed to write index header")
	}
	if err := binary.Write(cw, binary.LittleEndian, x.data); err != nil {
		return cw.n, goerr.Wrap(err, "failed to write index vectors")
	}
	if err := bw.Flush(); err != nil {
		return cw.n, goerr.Wrap(err, "failed to flush index")
	}
	return cw.n, nil
}

// ReadFrom replaces the content of the index with the serialized data in r.
func (x *Index) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: bufio.NewReader(r)}

	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(cr, magic); err != nil {
		return cr.n, goerr.Wrap(ErrInvalidFormat, "failed to read index magic", goerr.V("cause", err.Error()))
	}
	if string(magic) != fileMagic {
		return cr.n, goerr.Wrap(ErrInvalidFormat, "unexpected index magic", goerr.V("magic", string(magic)))
	}

	header := make([]uint32, 3)
	if err := binary.Read(cr, binary.LittleEndian, header); err != nil {
		return cr.n, goerr.Wrap(ErrInvalidFormat, "failed to read index header", goerr.V("cause", err.Error()))
	}
	if header[0] != fileVersion {
		return cr.n, goerr.Wrap(ErrInvalidFormat, "unsupported index version", goerr.V("version", header[0]))
	}
	dim, count := int(header[1]), int(header[2])
	if dim == 0 && count != 0 {
		return cr.n, goerr.Wrap(ErrInvalidFormat, "vectors without dimensionality", goerr.V("count", count))
	}
	if dim > maxDim {
		return cr.n, goerr.Wrap(ErrInvalidFormat, "dimensionality out of range", goerr.V("dim", dim))
	}

	// allocation is bounded by the stream, not by the header count
	total := dim * count
	data := make([]float32, 0, min(total, readBlock))
	block := make([]float32, min(total, readBlock))
	for remaining := total; remaining > 0; {
		n := min(remaining, readBlock)
		if err := binary.Read(cr, binary.LittleEndian, block[:n]); err != nil {
			return cr.n, goerr.Wrap(ErrInvalidFormat, "failed to read index vectors",
				goerr.V("dim", dim),
				goerr.V("count", count),
				goerr.V("cause", err.Error()))
		}
		data = append(data, block[:n]...)
		remaining -= n
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.dim = dim
	x.data = data
	return cr.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
