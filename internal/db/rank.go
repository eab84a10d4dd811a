package db

import (
	"fmt"
	"sort"

	"github.com/mrhollen/SalesAgent/internal/models"
	"github.com/mrhollen/SalesAgent/internal/vector"
)

// rankChunks scores chunks against query in process and keeps the top k.
// chunks must be in insertion order; equal scores keep that order.
func rankChunks(query []float32, chunks []models.Chunk, k int) ([]models.ScoredChunk, error) {
	results := make([]models.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		score, err := vector.Cosine(query, c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %s/%d: %v", ErrDimensionMismatch, c.DocumentID, c.ChunkIndex, err)
		}
		results = append(results, models.ScoredChunk{
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			ChunkText:  c.ChunkText,
			Similarity: score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
