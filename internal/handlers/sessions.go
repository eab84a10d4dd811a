package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	api "github.com/mrhollen/SalesAgent/internal/api/sessions"
	"github.com/mrhollen/SalesAgent/internal/session"
)

type SessionHandler struct {
	Sessions *session.Manager
	Logger   *slog.Logger
}

func (h *SessionHandler) Start(userID string, w http.ResponseWriter, r *http.Request) {
	var req api.StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	s, err := h.Sessions.Start(r.Context(), session.Profile{
		UserID:      userID,
		Name:        req.Name,
		AgentName:   req.AgentName,
		CompanyName: req.CompanyName,
		Script:      req.Script,
	})
	if err != nil {
		writeServiceError(loggerOr(h.Logger), w, "Failed to start session", err)
		return
	}

	writeJSON(w, http.StatusCreated, api.StartSessionResponse{
		SessionID:    s.ID(),
		Instructions: s.SystemInstructions(),
		Opening:      s.OpeningInstructions(),
	})
}

// owned returns the session only if it belongs to userID; other users'
// sessions are reported as missing.
func (h *SessionHandler) owned(userID, id string) (*session.Session, error) {
	s, err := h.Sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if s.Profile().UserID != userID {
		return nil, session.ErrNotFound
	}
	return s, nil
}

func (h *SessionHandler) Turn(userID string, w http.ResponseWriter, r *http.Request) {
	var req api.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if req.Utterance == "" {
		writeError(w, http.StatusBadRequest, "Utterance cannot be empty")
		return
	}

	s, err := h.owned(userID, r.PathValue("id"))
	if err != nil {
		writeServiceError(loggerOr(h.Logger), w, "Failed to find session", err)
		return
	}

	res, err := s.Turn(r.Context(), req.Utterance)
	if err != nil {
		writeServiceError(loggerOr(h.Logger), w, "Failed to process turn", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *SessionHandler) End(userID string, w http.ResponseWriter, r *http.Request) {
	s, err := h.owned(userID, r.PathValue("id"))
	if err != nil {
		writeServiceError(loggerOr(h.Logger), w, "Failed to find session", err)
		return
	}

	if err := h.Sessions.End(s.ID()); err != nil {
		writeServiceError(loggerOr(h.Logger), w, "Failed to end session", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
