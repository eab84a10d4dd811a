package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	api "github.com/mrhollen/SalesAgent/internal/api/documents"
	"github.com/mrhollen/SalesAgent/internal/db"
	"github.com/mrhollen/SalesAgent/internal/rag"
)

type DocumentHandler struct {
	Service *rag.Service
	DB      db.Store
	Logger  *slog.Logger
}

func (h *DocumentHandler) AddDocument(userID string, w http.ResponseWriter, r *http.Request) {
	var req api.AddDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "Filename cannot be empty")
		return
	}

	chunkSize := 0
	if req.ChunkSize != nil {
		if *req.ChunkSize <= 0 {
			writeError(w, http.StatusBadRequest, "chunk_size must be positive")
			return
		}
		chunkSize = *req.ChunkSize
	}

	res, err := h.Service.Index(r.Context(), userID, req.Filename, req.Text, chunkSize)
	if err != nil {
		writeServiceError(loggerOr(h.Logger), w, "Failed to add document", err)
		return
	}

	writeJSON(w, http.StatusCreated, api.AddDocumentResponse{
		DocumentID: res.DocumentID,
		ChunkCount: res.ChunkCount,
	})
}

func (h *DocumentHandler) ListDocuments(userID string, w http.ResponseWriter, r *http.Request) {
	docs, err := h.DB.ListDocuments(r.Context(), userID)
	if err != nil {
		writeServiceError(loggerOr(h.Logger), w, "Failed to list documents", err)
		return
	}

	response := api.ListDocumentsResponse{
		Documents: make([]api.DocumentResponseContent, 0, len(docs)),
	}
	for _, doc := range docs {
		response.Documents = append(response.Documents, api.DocumentResponseContent{
			DocumentID: doc.ID,
			Filename:   doc.Filename,
			ChunkCount: doc.ChunkCount,
			Embedder:   doc.Embedder,
			CreatedAt:  doc.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *DocumentHandler) DeleteDocument(userID string, w http.ResponseWriter, r *http.Request) {
	if err := h.DB.DeleteDocument(r.Context(), userID, r.PathValue("id")); err != nil {
		writeServiceError(loggerOr(h.Logger), w, "Failed to delete document", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
