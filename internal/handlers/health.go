package handlers

import (
	"net/http"

	"github.com/ttygate/ttygate/internal/database"
)

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbStatus = "connected"
			}
		}
	}

	tmuxAvailable := Sessions != nil && Sessions.ServerAvailable(r.Context())

	status := "ok"
	if dbStatus != "connected" {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         status,
		"tmux_available": tmuxAvailable,
		"database":       dbStatus,
		"version":        Version,
	})
}
