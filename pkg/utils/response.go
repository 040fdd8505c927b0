package utils

import (
	"encoding/json"
	"net/http"
)

// RespondJSON writes payload as a JSON body with status.
func RespondJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// RespondError writes {"error": message}.
func RespondError(w http.ResponseWriter, status int, message string) error {
	return RespondJSON(w, status, map[string]string{"error": message})
}
