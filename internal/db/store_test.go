package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrhollen/SalesAgent/internal/models"
)

const (
	testDims     = 3
	testEmbedder = "test-model/3"
)

func storeBackends(t *testing.T) map[string]func(t *testing.T) Store {
	backends := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryDB(testDims)
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteDB(filepath.Join(t.TempDir(), "agent.db"), testDims)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}

	if dsn := os.Getenv("TEST_DB_CONNECTION_STRING"); dsn != "" {
		backends["postgres"] = func(t *testing.T) Store {
			pg, err := NewPostgresDB(dsn, testDims)
			require.NoError(t, err)
			require.NoError(t, pg.Migrate(context.Background()))
			_, err = pg.db.Exec(`TRUNCATE documents, document_chunks, access_tokens`)
			require.NoError(t, err)
			t.Cleanup(func() { pg.Close() })
			return pg
		}
	}

	return backends
}

func seedDocument(t *testing.T, s Store, userID, embedder string, vecs ...[]float32) models.Document {
	t.Helper()
	ctx := context.Background()

	doc, err := s.CreateDocument(ctx, models.Document{UserID: userID, Filename: "doc.txt", Embedder: embedder})
	require.NoError(t, err)

	chunks := make([]models.Chunk, len(vecs))
	for i, v := range vecs {
		chunks[i] = models.Chunk{
			DocumentID: doc.ID,
			UserID:     userID,
			ChunkIndex: i,
			ChunkText:  userID + "-chunk-" + string(rune('a'+i)),
			Embedding:  v,
		}
	}
	require.NoError(t, s.InsertChunks(ctx, doc.ID, chunks))

	doc.ChunkCount = len(vecs)
	return doc
}

func TestStores(t *testing.T) {
	for name, newStore := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("search ranks by similarity", func(t *testing.T) {
				s := newStore(t)
				seedDocument(t, s, "u1", testEmbedder,
					[]float32{0, 1, 0},
					[]float32{1, 0, 0},
					[]float32{1, 1, 0},
				)

				results, err := s.SearchChunks(context.Background(), "u1", testEmbedder, []float32{1, 0, 0}, 10)
				require.NoError(t, err)
				require.Len(t, results, 3)

				assert.Equal(t, "u1-chunk-b", results[0].ChunkText)
				assert.Equal(t, "u1-chunk-c", results[1].ChunkText)
				assert.Equal(t, "u1-chunk-a", results[2].ChunkText)
				assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
				for i := 1; i < len(results); i++ {
					assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
				}
			})

			t.Run("search respects limit", func(t *testing.T) {
				s := newStore(t)
				seedDocument(t, s, "u1", testEmbedder,
					[]float32{1, 0, 0}, []float32{0, 1, 0}, []float32{0, 0, 1},
				)

				results, err := s.SearchChunks(context.Background(), "u1", testEmbedder, []float32{1, 0, 0}, 2)
				require.NoError(t, err)
				assert.Len(t, results, 2)

				results, err = s.SearchChunks(context.Background(), "u1", testEmbedder, []float32{1, 0, 0}, 0)
				require.NoError(t, err)
				assert.Empty(t, results)
			})

			t.Run("search is scoped to user", func(t *testing.T) {
				s := newStore(t)
				seedDocument(t, s, "u1", testEmbedder, []float32{1, 0, 0}, []float32{0, 1, 0})
				seedDocument(t, s, "u2", testEmbedder, []float32{1, 0, 0}, []float32{1, 0.1, 0})

				for _, user := range []string{"u1", "u2"} {
					results, err := s.SearchChunks(context.Background(), user, testEmbedder, []float32{1, 0, 0}, 10)
					require.NoError(t, err)
					require.Len(t, results, 2)
					for _, r := range results {
						assert.Contains(t, r.ChunkText, user+"-chunk-")
					}
				}
			})

			t.Run("unknown user yields nothing", func(t *testing.T) {
				s := newStore(t)
				seedDocument(t, s, "u1", testEmbedder, []float32{1, 0, 0})

				results, err := s.SearchChunks(context.Background(), "nobody", testEmbedder, []float32{1, 0, 0}, 5)
				require.NoError(t, err)
				assert.Empty(t, results)
			})

			t.Run("empty document is listed but not searchable", func(t *testing.T) {
				s := newStore(t)
				doc := seedDocument(t, s, "u1", testEmbedder)

				docs, err := s.ListDocuments(context.Background(), "u1")
				require.NoError(t, err)
				require.Len(t, docs, 1)
				assert.Equal(t, doc.ID, docs[0].ID)
				assert.Equal(t, 0, docs[0].ChunkCount)

				results, err := s.SearchChunks(context.Background(), "u1", testEmbedder, []float32{1, 0, 0}, 5)
				require.NoError(t, err)
				assert.Empty(t, results)
			})

			t.Run("rejects wrong dimension", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				doc, err := s.CreateDocument(ctx, models.Document{UserID: "u1", Filename: "f", Embedder: testEmbedder})
				require.NoError(t, err)

				err = s.InsertChunks(ctx, doc.ID, []models.Chunk{
					{DocumentID: doc.ID, UserID: "u1", ChunkIndex: 0, ChunkText: "x", Embedding: []float32{1, 0}},
				})
				assert.ErrorIs(t, err, ErrDimensionMismatch)

				_, err = s.SearchChunks(ctx, "u1", testEmbedder, []float32{1, 0}, 5)
				assert.ErrorIs(t, err, ErrDimensionMismatch)
			})

			t.Run("rejects foreign owner and gaps", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				doc, err := s.CreateDocument(ctx, models.Document{UserID: "u1", Filename: "f", Embedder: testEmbedder})
				require.NoError(t, err)

				err = s.InsertChunks(ctx, doc.ID, []models.Chunk{
					{DocumentID: doc.ID, UserID: "u2", ChunkIndex: 0, ChunkText: "x", Embedding: []float32{1, 0, 0}},
				})
				assert.ErrorIs(t, err, ErrInvalidChunk)

				err = s.InsertChunks(ctx, doc.ID, []models.Chunk{
					{DocumentID: doc.ID, UserID: "u1", ChunkIndex: 1, ChunkText: "x", Embedding: []float32{1, 0, 0}},
				})
				assert.ErrorIs(t, err, ErrInvalidChunk)
			})

			t.Run("batch is all or nothing", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				doc, err := s.CreateDocument(ctx, models.Document{UserID: "u1", Filename: "f", Embedder: testEmbedder})
				require.NoError(t, err)

				err = s.InsertChunks(ctx, doc.ID, []models.Chunk{
					{DocumentID: doc.ID, UserID: "u1", ChunkIndex: 0, ChunkText: "ok", Embedding: []float32{1, 0, 0}},
					{DocumentID: doc.ID, UserID: "u1", ChunkIndex: 1, ChunkText: "bad", Embedding: []float32{1}},
				})
				require.Error(t, err)

				results, err := s.SearchChunks(ctx, "u1", testEmbedder, []float32{1, 0, 0}, 5)
				require.NoError(t, err)
				assert.Empty(t, results)
			})

			t.Run("insert into missing document", func(t *testing.T) {
				s := newStore(t)
				err := s.InsertChunks(context.Background(), "00000000-0000-0000-0000-000000000000", nil)
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("embedder mismatch is detected", func(t *testing.T) {
				s := newStore(t)
				seedDocument(t, s, "u1", "old-model/3", []float32{1, 0, 0})

				_, err := s.SearchChunks(context.Background(), "u1", testEmbedder, []float32{1, 0, 0}, 5)
				assert.ErrorIs(t, err, ErrEmbedderMismatch)

				// other users are unaffected
				seedDocument(t, s, "u2", testEmbedder, []float32{1, 0, 0})
				results, err := s.SearchChunks(context.Background(), "u2", testEmbedder, []float32{1, 0, 0}, 5)
				require.NoError(t, err)
				assert.Len(t, results, 1)
			})

			t.Run("delete removes chunks", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				doc := seedDocument(t, s, "u1", testEmbedder, []float32{1, 0, 0})

				assert.ErrorIs(t, s.DeleteDocument(ctx, "u2", doc.ID), ErrNotFound)
				require.NoError(t, s.DeleteDocument(ctx, "u1", doc.ID))

				results, err := s.SearchChunks(ctx, "u1", testEmbedder, []float32{1, 0, 0}, 5)
				require.NoError(t, err)
				assert.Empty(t, results)

				assert.ErrorIs(t, s.DeleteDocument(ctx, "u1", doc.ID), ErrNotFound)
			})

			t.Run("access tokens", func(t *testing.T) {
				s := newStore(t)
				ctx := context.Background()
				require.NoError(t, s.AddAccessToken(ctx, models.AccessToken{UserID: "u1", Token: "live", Expiration: time.Now().Add(time.Hour)}))
				require.NoError(t, s.AddAccessToken(ctx, models.AccessToken{UserID: "u2", Token: "dead", Expiration: time.Now().Add(-time.Hour)}))

				tokens, err := s.GetAccessTokens(ctx)
				require.NoError(t, err)
				require.Len(t, tokens, 1)
				assert.Equal(t, "live", tokens[0].Token)
				assert.Equal(t, "u1", tokens[0].UserID)
			})
		})
	}
}

func TestOpen(t *testing.T) {
	s, err := Open("memory", "", 3)
	require.NoError(t, err)
	assert.IsType(t, &MemoryDB{}, s)

	_, err = Open("memory", "", 0)
	assert.Error(t, err)

	_, err = Open("oracle", "", 3)
	assert.Error(t, err)
}
