// postgres.go
package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mrhollen/SalesAgent/internal/models"
	"github.com/pgvector/pgvector-go"
)

//go:embed schema_postgres.sql
var postgresSchema string

type PostgresDB struct {
	db         *sql.DB
	dimensions int
}

func NewPostgresDB(connString string, dimensions int) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("unable to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return &PostgresDB{db: db, dimensions: dimensions}, nil
}

// Migrate creates the pgvector extension and tables if they are missing.
func (pg *PostgresDB) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	schema := strings.ReplaceAll(postgresSchema, "{{dimensions}}", strconv.Itoa(pg.dimensions))
	if _, err := pg.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	return nil
}

func (pg *PostgresDB) CreateDocument(ctx context.Context, doc models.Document) (models.Document, error) {
	if doc.UserID == "" {
		return models.Document{}, errors.New("user ID cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	doc.ID = uuid.NewString()
	doc.ChunkCount = 0

	query := `
		INSERT INTO documents (id, user_id, filename, embedder)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := pg.db.QueryRowContext(ctx, query, doc.ID, doc.UserID, doc.Filename, doc.Embedder).Scan(&doc.CreatedAt)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to insert document: %w", err)
	}

	return doc, nil
}

func (pg *PostgresDB) InsertChunks(ctx context.Context, documentID string, chunks []models.Chunk) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := pg.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	doc := models.Document{ID: documentID}
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM documents WHERE id = $1 FOR UPDATE`, documentID).Scan(&doc.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("document %s: %w", documentID, ErrNotFound)
		}
		return fmt.Errorf("failed to load document: %w", err)
	}

	if err := validateChunks(doc, chunks, pg.dimensions); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("document_chunks",
		"document_id", "user_id", "chunk_index", "chunk_text", "embedding"))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.DocumentID, c.UserID, c.ChunkIndex, c.ChunkText, pgvector.NewVector(c.Embedding)); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to copy chunk %d: %w", c.ChunkIndex, err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to flush chunks: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE documents SET chunk_count = $2 WHERE id = $1`, documentID, len(chunks)); err != nil {
		return fmt.Errorf("failed to update chunk count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}

	return nil
}

func (pg *PostgresDB) DeleteDocument(ctx context.Context, userID, documentID string) error {
	if _, err := uuid.Parse(documentID); err != nil {
		return fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := pg.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1 AND user_id = $2`, documentID, userID)
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

func (pg *PostgresDB) ListDocuments(ctx context.Context, userID string) ([]models.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT id, user_id, filename, embedder, chunk_count, created_at
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at, id
	`

	rows, err := pg.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	documents := []models.Document{}
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Filename, &doc.Embedder, &doc.ChunkCount, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		documents = append(documents, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating through documents: %w", err)
	}

	return documents, nil
}

// SearchChunks ranks by pgvector cosine distance (<=>) on the server.
// Ties fall back to insertion order.
func (pg *PostgresDB) SearchChunks(ctx context.Context, userID, embedder string, queryVector []float32, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return []models.ScoredChunk{}, nil
	}
	if len(queryVector) != pg.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d", ErrDimensionMismatch, len(queryVector), pg.dimensions)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var other string
	err := pg.db.QueryRowContext(ctx, `
		SELECT embedder FROM documents
		WHERE user_id = $1 AND embedder <> $2 AND chunk_count > 0
		LIMIT 1
	`, userID, embedder).Scan(&other)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: chunks indexed with %q, query embedded with %q", ErrEmbedderMismatch, other, embedder)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to check embedder: %w", err)
	}

	vec := pgvector.NewVector(queryVector)

	query := `
		SELECT document_id, chunk_index, chunk_text, 1 - (embedding <=> $2) AS similarity
		FROM document_chunks
		WHERE user_id = $1
		ORDER BY embedding <=> $2, id
		LIMIT $3
	`

	rows, err := pg.db.QueryContext(ctx, query, userID, vec, k)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search query: %w", err)
	}
	defer rows.Close()

	results := make([]models.ScoredChunk, 0, min(k, 64))
	for rows.Next() {
		var sc models.ScoredChunk
		if err := rows.Scan(&sc.DocumentID, &sc.ChunkIndex, &sc.ChunkText, &sc.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		results = append(results, sc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating through chunks: %w", err)
	}

	return results, nil
}

func (pg *PostgresDB) GetAccessTokens(ctx context.Context) ([]models.AccessToken, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT user_id, token, expiration
		FROM access_tokens
		WHERE expiration > NOW();
	`

	rows, err := pg.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var accessTokens []models.AccessToken
	for rows.Next() {
		var accessToken models.AccessToken
		if err := rows.Scan(&accessToken.UserID, &accessToken.Token, &accessToken.Expiration); err != nil {
			return nil, fmt.Errorf("failed to scan access token: %w", err)
		}

		accessTokens = append(accessTokens, accessToken)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating through access tokens: %w", err)
	}

	return accessTokens, nil
}

func (pg *PostgresDB) AddAccessToken(ctx context.Context, token models.AccessToken) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO access_tokens (token, user_id, expiration)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    expiration = EXCLUDED.expiration
	`

	if _, err := pg.db.ExecContext(ctx, query, token.Token, token.UserID, token.Expiration); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}

	return nil
}

func (pg *PostgresDB) Close() error {
	return pg.db.Close()
}
