package docindex

import "strings"

const (
	ChunkSize    = 256
	ChunkOverlap = 40
)

// Chunk splits text into windows of size words. Consecutive windows share
// overlap words and the trailing partial window is kept.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = ChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	words := strings.Fields(text)
	step := size - overlap

	var chunks []string
	for i := 0; i < len(words); i += step {
		end := min(i+size, len(words))
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks
}
