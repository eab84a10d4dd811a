package db

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mrhollen/SalesAgent/internal/models"
)

// MemoryDB keeps everything in process. Used for tests and throwaway runs.
type MemoryDB struct {
	mu         sync.RWMutex
	dimensions int
	documents  []models.Document
	chunks     []models.Chunk
	tokens     map[string]models.AccessToken
}

func NewMemoryDB(dimensions int) *MemoryDB {
	return &MemoryDB{
		dimensions: dimensions,
		tokens:     make(map[string]models.AccessToken),
	}
}

func (m *MemoryDB) CreateDocument(_ context.Context, doc models.Document) (models.Document, error) {
	if doc.UserID == "" {
		return models.Document{}, errors.New("user ID cannot be empty")
	}

	doc.ID = uuid.NewString()
	doc.ChunkCount = 0
	doc.CreatedAt = time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = append(m.documents, doc)

	return doc, nil
}

func (m *MemoryDB) InsertChunks(_ context.Context, documentID string, chunks []models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.documentIndex(documentID)
	if i < 0 {
		return fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	if err := validateChunks(m.documents[i], chunks, m.dimensions); err != nil {
		return err
	}
	for _, c := range m.chunks {
		if c.DocumentID == documentID {
			return fmt.Errorf("%w: document %s already has chunks", ErrInvalidChunk, documentID)
		}
	}

	for _, c := range chunks {
		c.Embedding = slices.Clone(c.Embedding)
		m.chunks = append(m.chunks, c)
	}
	m.documents[i].ChunkCount = len(chunks)

	return nil
}

func (m *MemoryDB) DeleteDocument(_ context.Context, userID, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.documentIndex(documentID)
	if i < 0 || m.documents[i].UserID != userID {
		return fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}

	m.documents = slices.Delete(m.documents, i, i+1)
	m.chunks = slices.DeleteFunc(m.chunks, func(c models.Chunk) bool {
		return c.DocumentID == documentID
	})

	return nil
}

func (m *MemoryDB) ListDocuments(_ context.Context, userID string) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	documents := []models.Document{}
	for _, d := range m.documents {
		if d.UserID == userID {
			documents = append(documents, d)
		}
	}
	return documents, nil
}

func (m *MemoryDB) SearchChunks(_ context.Context, userID, embedder string, query []float32, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return []models.ScoredChunk{}, nil
	}
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d", ErrDimensionMismatch, len(query), m.dimensions)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.documents {
		if d.UserID == userID && d.ChunkCount > 0 && d.Embedder != embedder {
			return nil, fmt.Errorf("%w: chunks indexed with %q, query embedded with %q", ErrEmbedderMismatch, d.Embedder, embedder)
		}
	}

	var scoped []models.Chunk
	for _, c := range m.chunks {
		if c.UserID == userID {
			scoped = append(scoped, c)
		}
	}

	return rankChunks(query, scoped, k)
}

func (m *MemoryDB) GetAccessTokens(_ context.Context) ([]models.AccessToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	var tokens []models.AccessToken
	for _, t := range m.tokens {
		if t.Expiration.After(now) {
			tokens = append(tokens, t)
		}
	}
	return tokens, nil
}

func (m *MemoryDB) AddAccessToken(_ context.Context, token models.AccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.Token] = token
	return nil
}

func (m *MemoryDB) Close() error { return nil }

func (m *MemoryDB) documentIndex(id string) int {
	return slices.IndexFunc(m.documents, func(d models.Document) bool { return d.ID == id })
}
