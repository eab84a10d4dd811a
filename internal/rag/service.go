// Package rag indexes user documents and turns queries into ranked,
// formatted context for prompt grounding.
//
// Indexing (offline):
//
//	text -> chunker.Split -> Embedder.EmbedBatch -> Store.CreateDocument + Store.InsertChunks
//
// Retrieval (per query):
//
//	query -> Embedder.Embed -> Store.SearchChunks (scoped to user) -> FormatContext
//
// The embedder used at query time must be the one used at index time.
// Every document records Embedder.ModelName() and the stores refuse to
// rank a user's chunks against a query from a different model.
package rag

import (
	"errors"
	"log/slog"

	"github.com/mrhollen/SalesAgent/internal/chunker"
	"github.com/mrhollen/SalesAgent/internal/db"
	"github.com/mrhollen/SalesAgent/internal/llm"
)

var (
	// ErrEmbedding means the embedder was unreachable or returned an error.
	ErrEmbedding = errors.New("embedding failure")

	// ErrStorage means the document store failed, including dimension and
	// embedder mismatches.
	ErrStorage = errors.New("storage failure")

	// ErrInvalidInput is returned for missing user IDs and similar caller errors.
	ErrInvalidInput = errors.New("invalid input")
)

type Service struct {
	store     db.Store
	embedder  llm.Embedder
	chunkSize int
	logger    *slog.Logger
}

type Option func(*Service)

// WithChunkSize sets the default chunk size used when Index is called with 0.
func WithChunkSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(store db.Store, embedder llm.Embedder, opts ...Option) *Service {
	s := &Service{
		store:     store,
		embedder:  embedder,
		chunkSize: chunker.DefaultChunkSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
