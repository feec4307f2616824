package handlers

import (
	"encoding/json"
	"log"
	"net/http"
)

// writeJSON marshals before touching the response so an encoding failure
// can still produce a clean 500 instead of a half-written body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("respond: marshal %T: %v", v, err)
		http.Error(w, `{"detail":"Internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

// writeError emits the {"detail": ...} error envelope used across the API.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
