package api

import "time"

type AddDocumentRequest struct {
	Filename  string `json:"filename"`
	Text      string `json:"text"`
	ChunkSize *int   `json:"chunk_size,omitempty"`
}

type AddDocumentResponse struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
}

type DocumentResponseContent struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	ChunkCount int       `json:"chunk_count"`
	Embedder   string    `json:"embedder"`
	CreatedAt  time.Time `json:"created_at"`
}

type ListDocumentsResponse struct {
	Documents []DocumentResponseContent `json:"documents"`
}
