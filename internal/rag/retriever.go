package rag

import (
	"context"
	"fmt"

	"github.com/mrhollen/SalesAgent/internal/models"
)

// Search returns up to limit of userID's chunks most similar to query,
// highest similarity first. limit <= 0 returns nothing without calling
// the embedder.
func (s *Service) Search(ctx context.Context, query, userID string, limit int) ([]models.ScoredChunk, error) {
	if limit <= 0 {
		return []models.ScoredChunk{}, nil
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", ErrInvalidInput)
	}

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	results, err := s.store.SearchChunks(ctx, userID, s.embedder.ModelName(), queryVector, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if len(results) > limit {
		results = results[:limit]
	}

	s.logger.Debug("searched chunks", "user_id", userID, "limit", limit, "results", len(results))

	return results, nil
}
