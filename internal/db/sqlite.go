package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mrhollen/SalesAgent/internal/models"
	"github.com/mrhollen/SalesAgent/internal/vector"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    filename    TEXT NOT NULL,
    embedder    TEXT NOT NULL,
    chunk_count INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_user_id ON documents (user_id);

CREATE TABLE IF NOT EXISTS document_chunks (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    document_id TEXT NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
    user_id     TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    chunk_text  TEXT NOT NULL,
    embedding   BLOB NOT NULL,
    UNIQUE (document_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_document_chunks_user_id ON document_chunks (user_id);

CREATE TABLE IF NOT EXISTS access_tokens (
    token      TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    expiration INTEGER NOT NULL
);
`

// SQLiteDB is a single-file store for local runs. Similarity is computed
// in process over the user's chunks.
type SQLiteDB struct {
	conn       *sql.DB
	dimensions int
}

func NewSQLiteDB(path string, dimensions int) (*SQLiteDB, error) {
	if path == "" {
		return nil, errors.New("sqlite path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer keeps chunk batches serialized
	conn.SetMaxOpenConns(1)

	s := &SQLiteDB{conn: conn, dimensions: dimensions}
	if err := s.Migrate(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteDB) Migrate(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *SQLiteDB) CreateDocument(ctx context.Context, doc models.Document) (models.Document, error) {
	if doc.UserID == "" {
		return models.Document{}, errors.New("user ID cannot be empty")
	}

	doc.ID = uuid.NewString()
	doc.ChunkCount = 0
	doc.CreatedAt = time.Now().UTC()

	query := `INSERT INTO documents (id, user_id, filename, embedder, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.conn.ExecContext(ctx, query, doc.ID, doc.UserID, doc.Filename, doc.Embedder, doc.CreatedAt.UnixNano()); err != nil {
		return models.Document{}, fmt.Errorf("failed to insert document: %w", err)
	}

	return doc, nil
}

func (s *SQLiteDB) InsertChunks(ctx context.Context, documentID string, chunks []models.Chunk) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	doc := models.Document{ID: documentID}
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM documents WHERE id = ?`, documentID).Scan(&doc.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("document %s: %w", documentID, ErrNotFound)
		}
		return fmt.Errorf("failed to load document: %w", err)
	}

	if err := validateChunks(doc, chunks, s.dimensions); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_chunks (document_id, user_id, chunk_index, chunk_text, embedding)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.DocumentID, c.UserID, c.ChunkIndex, c.ChunkText, vector.Encode(c.Embedding)); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.ChunkIndex, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE documents SET chunk_count = ? WHERE id = ?`, len(chunks), documentID); err != nil {
		return fmt.Errorf("failed to update chunk count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}

	return nil
}

func (s *SQLiteDB) DeleteDocument(ctx context.Context, userID, documentID string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM documents WHERE id = ? AND user_id = ?`, documentID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}

	return nil
}

func (s *SQLiteDB) ListDocuments(ctx context.Context, userID string) ([]models.Document, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, user_id, filename, embedder, chunk_count, created_at
		FROM documents
		WHERE user_id = ?
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	documents := []models.Document{}
	for rows.Next() {
		var doc models.Document
		var created int64
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Filename, &doc.Embedder, &doc.ChunkCount, &created); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.CreatedAt = time.Unix(0, created).UTC()
		documents = append(documents, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating through documents: %w", err)
	}

	return documents, nil
}

func (s *SQLiteDB) SearchChunks(ctx context.Context, userID, embedder string, queryVector []float32, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return []models.ScoredChunk{}, nil
	}
	if len(queryVector) != s.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d", ErrDimensionMismatch, len(queryVector), s.dimensions)
	}

	var other string
	err := s.conn.QueryRowContext(ctx, `
		SELECT embedder FROM documents
		WHERE user_id = ? AND embedder <> ? AND chunk_count > 0
		LIMIT 1
	`, userID, embedder).Scan(&other)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: chunks indexed with %q, query embedded with %q", ErrEmbedderMismatch, other, embedder)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to check embedder: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT document_id, chunk_index, chunk_text, embedding
		FROM document_chunks
		WHERE user_id = ?
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		var blob []byte
		if err := rows.Scan(&c.DocumentID, &c.ChunkIndex, &c.ChunkText, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if c.Embedding, err = vector.Decode(blob); err != nil {
			return nil, fmt.Errorf("%w: chunk %s/%d: %v", ErrDimensionMismatch, c.DocumentID, c.ChunkIndex, err)
		}
		chunks = append(chunks, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating through chunks: %w", err)
	}

	return rankChunks(queryVector, chunks, k)
}

func (s *SQLiteDB) GetAccessTokens(ctx context.Context) ([]models.AccessToken, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT user_id, token, expiration FROM access_tokens WHERE expiration > ?
	`, time.Now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var accessTokens []models.AccessToken
	for rows.Next() {
		var token models.AccessToken
		var expiration int64
		if err := rows.Scan(&token.UserID, &token.Token, &expiration); err != nil {
			return nil, fmt.Errorf("failed to scan access token: %w", err)
		}
		token.Expiration = time.Unix(0, expiration).UTC()
		accessTokens = append(accessTokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating through access tokens: %w", err)
	}

	return accessTokens, nil
}

func (s *SQLiteDB) AddAccessToken(ctx context.Context, token models.AccessToken) error {
	query := `
		INSERT INTO access_tokens (token, user_id, expiration) VALUES (?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET user_id = excluded.user_id, expiration = excluded.expiration
	`
	if _, err := s.conn.ExecContext(ctx, query, token.Token, token.UserID, token.Expiration.UnixNano()); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}

func (s *SQLiteDB) Close() error {
	return s.conn.Close()
}
