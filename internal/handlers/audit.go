package handlers

import (
	"net/http"
	"strconv"

	"github.com/ttygate/ttygate/internal/database"
)

// GetAuditEvents handles GET /api/v1/audit. Query parameter `limit` caps
// the number of entries (default 100, max 1000).
func GetAuditEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	events, err := database.ListAudit(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load audit events")
		return
	}
	if events == nil {
		events = []database.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  len(events),
	})
}
