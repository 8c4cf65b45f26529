package vector_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/seeker/pkg/vector"
)

func TestIndexDefersDimensionality(t *testing.T) {
	idx := vector.New()
	gt.Equal(t, idx.Dim(), 0)
	gt.Equal(t, idx.Len(), 0)

	pos, err := idx.Add([]float32{1, 0, 0})
	gt.NoError(t, err)
	gt.Equal(t, pos, 0)
	gt.Equal(t, idx.Dim(), 3)

	pos, err = idx.Add([]float32{0, 1, 0})
	gt.NoError(t, err)
	gt.Equal(t, pos, 1)
	gt.Equal(t, idx.Len(), 2)
}

func TestIndexDimensionMismatch(t *testing.T) {
	idx := vector.NewWithDim(2)

	_, err := idx.Add([]float32{1, 2, 3})
	gt.True(t, errors.Is(err, vector.ErrDimensionMismatch))
	gt.Equal(t, idx.Len(), 0)

	_, err = idx.Add(nil)
	gt.True(t, errors.Is(err, vector.ErrEmptyVector))

	_, err = idx.Add([]float32{1, 2})
	gt.NoError(t, err)

	_, err = idx.Search([]float32{1}, 1)
	gt.True(t, errors.Is(err, vector.ErrDimensionMismatch))
}

func TestIndexSearch(t *testing.T) {
	idx := vector.New()
	for _, v := range [][]float32{
		{0, 0},
		{3, 4},
		{1, 0},
		{0, 1},
		{10, 10},
	} {
		_, err := idx.Add(v)
		gt.NoError(t, err)
	}

	t.Run("ascending distance with insertion order ties", func(t *testing.T) {
		hits, err := idx.Search([]float32{0, 0}, 4)
		gt.NoError(t, err)
		gt.A(t, hits).Length(4)

		positions := []int{hits[0].Position, hits[1].Position, hits[2].Position, hits[3].Position}
		gt.Equal(t, positions, []int{0, 2, 3, 1})
		gt.Equal(t, hits[0].Distance, float32(0))
		gt.Equal(t, hits[1].Distance, float32(1))
		gt.Equal(t, hits[3].Distance, float32(5))
	})

	t.Run("k larger than the index", func(t *testing.T) {
		hits, err := idx.Search([]float32{10, 10}, 100)
		gt.NoError(t, err)
		gt.A(t, hits).Length(5)
		gt.Equal(t, hits[0].Position, 4)
	})

	t.Run("non-positive k", func(t *testing.T) {
		hits, err := idx.Search([]float32{0, 0}, 0)
		gt.NoError(t, err)
		gt.A(t, hits).Length(0)
	})
}

func TestIndexSearchEmpty(t *testing.T) {
	hits, err := vector.New().Search([]float32{1, 2, 3}, 5)
	gt.NoError(t, err)
	gt.A(t, hits).Length(0)
}

func TestIndexPersistence(t *testing.T) {
	idx := vector.New()
	for _, v := range [][]float32{{0.5, -1}, {2, 2}, {-3, 0.25}} {
		_, err := idx.Add(v)
		gt.NoError(t, err)
	}

	var buf bytes.Buffer
	n, err := idx.WriteTo(&buf)
	gt.NoError(t, err)
	gt.Equal(t, n, int64(buf.Len()))

	loaded := vector.New()
	_, err = loaded.ReadFrom(&buf)
	gt.NoError(t, err)
	gt.Equal(t, loaded.Dim(), 2)
	gt.Equal(t, loaded.Len(), 3)

	v, ok := loaded.Vector(2)
	gt.True(t, ok)
	gt.Equal(t, v, []float32{-3, 0.25})

	t.Run("empty index round trip", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := vector.New().WriteTo(&buf)
		gt.NoError(t, err)

		loaded := vector.New()
		_, err = loaded.ReadFrom(&buf)
		gt.NoError(t, err)
		gt.Equal(t, loaded.Len(), 0)
	})

	t.Run("corrupted data", func(t *testing.T) {
		_, err := vector.New().ReadFrom(bytes.NewReader([]byte("nope")))
		gt.True(t, errors.Is(err, vector.ErrInvalidFormat))

		var buf bytes.Buffer
		_, err = idx.WriteTo(&buf)
		gt.NoError(t, err)
		truncated := buf.Bytes()[:buf.Len()-3]
		_, err = vector.New().ReadFrom(bytes.NewReader(truncated))
		gt.True(t, errors.Is(err, vector.ErrInvalidFormat))
	})

	t.Run("header larger than data", func(t *testing.T) {
		header := func(dim, count uint32) []byte {
			var buf bytes.Buffer
			buf.WriteString("SKVX")
			gt.NoError(t, binary.Write(&buf, binary.LittleEndian, []uint32{1, dim, count}))
			buf.Write(make([]byte, 64))
			return buf.Bytes()
		}

		loaded := vector.New()
		_, err := loaded.ReadFrom(bytes.NewReader(header(768, 1<<31)))
		gt.True(t, errors.Is(err, vector.ErrInvalidFormat))
		gt.Equal(t, loaded.Len(), 0)

		_, err = vector.New().ReadFrom(bytes.NewReader(header(1<<30, 1)))
		gt.True(t, errors.Is(err, vector.ErrInvalidFormat))
	})
}
