package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ttygate/ttygate/internal/database"
	"github.com/ttygate/ttygate/internal/tmux"
)

type createSessionRequest struct {
	Name string `json:"name"`
}

// ListSessions handles GET /api/v1/sessions.
func ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := Sessions.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []tmux.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// CreateSession handles POST /api/v1/sessions.
func CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sess, err := Sessions.Create(r.Context(), req.Name)
	if err != nil {
		var conflict *tmux.ConflictError
		if errors.As(err, &conflict) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	database.RecordAudit(database.AuditSessionCreate, sess.Name, clientIP(r))
	writeJSON(w, http.StatusCreated, sess)
}

// GetSession handles GET /api/v1/sessions/{id}.
func GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := Sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Session '%s' not found", id))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// DeleteSession handles DELETE /api/v1/sessions/{id}.
func DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := Sessions.Kill(r.Context(), id); err != nil {
		var nf *tmux.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	database.RecordAudit(database.AuditSessionKill, id, clientIP(r))
	w.WriteHeader(http.StatusNoContent)
}

// AttachSession handles POST /api/v1/sessions/{id}/attach. It returns the
// WebSocket URL the client should connect to.
func AttachSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := Sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Session '%s' not found", id))
		return
	}

	host := r.Host
	if host == "" {
		host = "localhost"
	}
	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"session_id":    id,
		"websocket_url": fmt.Sprintf("%s://%s/ws/terminal/%s", scheme, host, id),
	})
}
