package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mrhollen/SalesAgent/internal/auth"
	"github.com/mrhollen/SalesAgent/internal/db"
	"github.com/mrhollen/SalesAgent/internal/parsing"
	"github.com/mrhollen/SalesAgent/internal/rag"
	"github.com/mrhollen/SalesAgent/internal/session"
)

// Authorizer resolves the caller of a request to a user ID.
type Authorizer interface {
	CheckRequest(r *http.Request) (string, error)
}

// AuthorizedHandlerFunc is an http.HandlerFunc that also receives the
// authenticated user.
type AuthorizedHandlerFunc func(userID string, w http.ResponseWriter, r *http.Request)

type Handlers struct {
	Documents *DocumentHandler
	Upload    *UploadHandler
	Query     *QueryHandler
	Sessions  *SessionHandler
}

// NewMux registers every route behind bearer token authorization.
func NewMux(authorizer Authorizer, h Handlers, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}

	authorized := func(fn AuthorizedHandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			userID, err := authorizer.CheckRequest(r)
			if err != nil {
				if !isAuthError(err) {
					logger.Error("failed to check access token", "error", err)
				}
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			fn(userID, w, r.WithContext(auth.WithUserID(r.Context(), userID)))
		}
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /documents", authorized(h.Documents.AddDocument))
	mux.HandleFunc("GET /documents", authorized(h.Documents.ListDocuments))
	mux.HandleFunc("DELETE /documents/{id}", authorized(h.Documents.DeleteDocument))
	mux.HandleFunc("POST /upload", authorized(h.Upload.UploadFile))
	mux.HandleFunc("GET /query", authorized(h.Query.SimpleQuery))
	mux.HandleFunc("POST /context", authorized(h.Query.Context))
	mux.HandleFunc("POST /sessions", authorized(h.Sessions.Start))
	mux.HandleFunc("POST /sessions/{id}/turns", authorized(h.Sessions.Turn))
	mux.HandleFunc("DELETE /sessions/{id}", authorized(h.Sessions.End))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

func isAuthError(err error) bool {
	return errors.Is(err, auth.ErrUnauthorized) ||
		errors.Is(err, auth.ErrMissingToken) ||
		errors.Is(err, auth.ErrMalformed)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrInvalidInput), errors.Is(err, parsing.ErrUnsupportedType):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound), errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrEmptyContext):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, session.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, rag.ErrEmbedding):
		return http.StatusBadGateway
	case errors.Is(err, db.ErrEmbedderMismatch), errors.Is(err, db.ErrDimensionMismatch):
		return http.StatusInternalServerError
	case errors.Is(err, rag.ErrStorage):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs server-side failures and writes the mapped status.
func writeServiceError(logger *slog.Logger, w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, "error", err, "status", status)
		writeError(w, status, msg)
		return
	}
	logger.Debug(msg, "error", err, "status", status)
	writeError(w, status, err.Error())
}

func loggerOr(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
