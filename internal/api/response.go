package api

import (
	"encoding/json"
	"net/http"
)

type envelope map[string]any

func (s *APIServer) respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *APIServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respond(w, status, envelope{"success": false, "message": message})
}
