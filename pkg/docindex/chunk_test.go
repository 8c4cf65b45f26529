package docindex_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/seeker/pkg/docindex"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(w, " ")
}

func TestChunk(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []string
	}{
		{
			name: "empty",
			text: "  \n\t ",
			size: 4, overlap: 1,
			want: nil,
		},
		{
			name: "shorter than one chunk",
			text: "a b c",
			size: 4, overlap: 1,
			want: []string{"a b c"},
		},
		{
			name: "overlap with trailing partial chunk",
			text: "a b c d e f g",
			size: 4, overlap: 1,
			want: []string{"a b c d", "d e f g", "g"},
		},
		{
			name: "whitespace is normalized",
			text: "a\n\nb\tc   d e",
			size: 3, overlap: 0,
			want: []string{"a b c", "d e"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gt.Equal(t, docindex.Chunk(tc.text, tc.size, tc.overlap), tc.want)
		})
	}
}

func TestChunkDefaults(t *testing.T) {
	chunks := docindex.Chunk(words(600), docindex.ChunkSize, docindex.ChunkOverlap)

	// windows start at 0, 216, 432
	gt.A(t, chunks).Length(3)
	gt.A(t, strings.Fields(chunks[0])).Length(256)
	gt.A(t, strings.Fields(chunks[2])).Length(168)
	gt.True(t, strings.HasPrefix(chunks[1], "w216 "))

	tail := strings.Fields(chunks[0])[216:]
	head := strings.Fields(chunks[1])[:40]
	gt.Equal(t, tail, head)
}
