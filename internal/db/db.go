package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrhollen/SalesAgent/internal/models"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrDimensionMismatch means an embedding does not match the store's
	// configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbedderMismatch means a query was embedded with a different model
	// than the user's indexed chunks.
	ErrEmbedderMismatch = errors.New("embedder mismatch")

	ErrInvalidChunk = errors.New("invalid chunk")
)

// Store persists documents and chunk embeddings partitioned by user.
// Implementations must be safe for concurrent use.
type Store interface {
	CreateDocument(ctx context.Context, doc models.Document) (models.Document, error)
	// InsertChunks writes all chunks of a document or none of them.
	InsertChunks(ctx context.Context, documentID string, chunks []models.Chunk) error
	DeleteDocument(ctx context.Context, userID, documentID string) error
	ListDocuments(ctx context.Context, userID string) ([]models.Document, error)
	// SearchChunks returns the k chunks owned by userID most similar to
	// query, by descending cosine similarity.
	SearchChunks(ctx context.Context, userID, embedder string, query []float32, k int) ([]models.ScoredChunk, error)
	GetAccessTokens(ctx context.Context) ([]models.AccessToken, error)
	AddAccessToken(ctx context.Context, token models.AccessToken) error
	Close() error
}

// Migrator is implemented by stores that manage their own schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Open connects to the store named by driver: "postgres", "sqlite" or "memory".
func Open(driver, dsn string, dimensions int) (Store, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", dimensions)
	}

	switch driver {
	case "postgres", "":
		return NewPostgresDB(dsn, dimensions)
	case "sqlite":
		return NewSQLiteDB(dsn, dimensions)
	case "memory":
		return NewMemoryDB(dimensions), nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", driver)
	}
}

// validateChunks checks the batch invariants shared by every store: one
// owner matching the document, contiguous indices from 0, and a fixed
// embedding dimension.
func validateChunks(doc models.Document, chunks []models.Chunk, dimensions int) error {
	for i, c := range chunks {
		if c.DocumentID != doc.ID {
			return fmt.Errorf("%w: chunk %d belongs to document %q", ErrInvalidChunk, i, c.DocumentID)
		}
		if c.UserID != doc.UserID {
			return fmt.Errorf("%w: chunk %d owner %q does not match document owner", ErrInvalidChunk, i, c.UserID)
		}
		if c.ChunkIndex != i {
			return fmt.Errorf("%w: chunk index %d at position %d", ErrInvalidChunk, c.ChunkIndex, i)
		}
		if len(c.Embedding) != dimensions {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(c.Embedding), dimensions)
		}
	}
	return nil
}
