package models

import "time"

type Document struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Filename   string    `json:"filename"`
	Embedder   string    `json:"embedder"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Chunk is a contiguous slice of a document's text and its embedding.
// UserID is denormalized from the owning document.
type Chunk struct {
	DocumentID string    `json:"document_id"`
	UserID     string    `json:"user_id"`
	ChunkIndex int       `json:"chunk_index"`
	ChunkText  string    `json:"chunk_text"`
	Embedding  []float32 `json:"-"`
}

type ScoredChunk struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	ChunkText  string  `json:"chunk_text"`
	Similarity float64 `json:"similarity"`
}

type IndexResult struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
}

type AccessToken struct {
	UserID     string    `json:"user_id"`
	Token      string    `json:"token"`
	Expiration time.Time `json:"expiration"`
}
