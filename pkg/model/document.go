package model

// ChunkMeta describes one persisted chunk. Entries are positionally aligned
// with the vectors of the persisted document index.
type ChunkMeta struct {
	Document string `json:"doc"`
	Chunk    string `json:"chunk"`
	ChunkID  string `json:"chunk_id"`
}
