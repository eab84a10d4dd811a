package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/mrhollen/SalesAgent/internal/models"
)

const blockSeparator = "\n\n---\n\n"

// BuildContext retrieves up to maxChunks chunks for query and formats them.
// An empty string means nothing was found; callers choose their own fallback.
func (s *Service) BuildContext(ctx context.Context, query, userID string, maxChunks int) (string, error) {
	results, err := s.Search(ctx, query, userID, maxChunks)
	if err != nil {
		return "", err
	}
	return FormatContext(results), nil
}

// FormatContext renders one labeled block per result, in the given order,
// with the similarity rounded to three decimals.
func FormatContext(results []models.ScoredChunk) string {
	if len(results) == 0 {
		return ""
	}

	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[Chunk]\n%s (score=%.3f)", r.ChunkText, r.Similarity)
	}

	return strings.Join(blocks, blockSeparator)
}
