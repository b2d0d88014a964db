package handler

import (
	"net/http"
	"time"
)

// HandleHealth is the liveness probe. It never touches the store, so it
// keeps answering while the database is down.
//
// HTTP: GET /health
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Server is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleNotFound answers unknown routes with the standard envelope.
func HandleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, Response{Message: "Not found - " + r.URL.Path})
}
