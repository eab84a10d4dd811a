package rag

import (
	"context"
	"fmt"

	"github.com/mrhollen/SalesAgent/internal/chunker"
	"github.com/mrhollen/SalesAgent/internal/models"
)

// Index chunks, embeds and stores text as a new document owned by userID.
// chunkSize <= 0 uses the service default. Chunks are embedded before the
// document row is written, so an embedding failure persists nothing; a
// failed chunk write removes the document again.
func (s *Service) Index(ctx context.Context, userID, filename, text string, chunkSize int) (models.IndexResult, error) {
	if userID == "" {
		return models.IndexResult{}, fmt.Errorf("%w: user ID is required", ErrInvalidInput)
	}
	if chunkSize <= 0 {
		chunkSize = s.chunkSize
	}

	pieces := chunker.Split(text, chunkSize)

	var embeddings [][]float32
	if len(pieces) > 0 {
		var err error
		embeddings, err = s.embedder.EmbedBatch(ctx, pieces)
		if err != nil {
			return models.IndexResult{}, fmt.Errorf("%w: %w", ErrEmbedding, err)
		}
		if len(embeddings) != len(pieces) {
			return models.IndexResult{}, fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbedding, len(pieces), len(embeddings))
		}
	}

	doc, err := s.store.CreateDocument(ctx, models.Document{
		UserID:   userID,
		Filename: filename,
		Embedder: s.embedder.ModelName(),
	})
	if err != nil {
		return models.IndexResult{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	chunks := make([]models.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = models.Chunk{
			DocumentID: doc.ID,
			UserID:     userID,
			ChunkIndex: i,
			ChunkText:  piece,
			Embedding:  embeddings[i],
		}
	}

	if err := s.store.InsertChunks(ctx, doc.ID, chunks); err != nil {
		// the caller's context may be what failed; cleanup gets its own
		if cleanupErr := s.store.DeleteDocument(context.WithoutCancel(ctx), userID, doc.ID); cleanupErr != nil {
			s.logger.Error("failed to remove orphaned document",
				"document_id", doc.ID, "user_id", userID, "error", cleanupErr)
		}
		return models.IndexResult{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s.logger.Info("indexed document",
		"document_id", doc.ID, "user_id", userID, "filename", filename, "chunks", len(chunks))

	return models.IndexResult{DocumentID: doc.ID, ChunkCount: len(chunks)}, nil
}
