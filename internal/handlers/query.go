package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	api "github.com/mrhollen/SalesAgent/internal/api/query"
	"github.com/mrhollen/SalesAgent/internal/rag"
)

type QueryHandler struct {
	Service   *rag.Service
	Limit     int
	MaxChunks int
	Logger    *slog.Logger
}

func (h *QueryHandler) SimpleQuery(userID string, w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	queryString := query.Get("query")
	limit := query.Get("limit")

	limitNum := h.Limit

	if queryString == "" {
		writeError(w, http.StatusBadRequest, "No query")
		return
	}
	if limit != "" {
		var err error
		limitNum, err = strconv.Atoi(limit)
		if err != nil || limitNum < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
	}

	results, err := h.Service.Search(r.Context(), queryString, userID, limitNum)
	if err != nil {
		writeServiceError(loggerOr(h.Logger), w, "Failed to search documents", err)
		return
	}

	response := api.SimpleQueryResponse{
		Results: make([]api.SimpleQueryResponseContent, 0, len(results)),
	}

	for _, res := range results {
		response.Results = append(
			response.Results,
			api.SimpleQueryResponseContent{
				DocumentID: res.DocumentID,
				ChunkIndex: res.ChunkIndex,
				Text:       res.ChunkText,
				Similarity: res.Similarity,
			},
		)
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *QueryHandler) Context(userID string, w http.ResponseWriter, r *http.Request) {
	var req api.ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "Query cannot be empty")
		return
	}

	maxChunks := h.MaxChunks
	if req.MaxChunks != nil {
		maxChunks = *req.MaxChunks
	}

	text, err := h.Service.BuildContext(r.Context(), req.Query, userID, maxChunks)
	if err != nil {
		writeServiceError(loggerOr(h.Logger), w, "Failed to build context", err)
		return
	}

	writeJSON(w, http.StatusOK, api.ContextResponse{Context: text})
}
