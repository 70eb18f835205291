// Package httpx holds small response helpers shared by the HTTP
// handlers.
package httpx

import (
	"encoding/json"
	"log"
	"net/http"
)

// RespondJSON writes data as a JSON response with the given status.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondError writes err as a JSON error reply with the given status.
func RespondError(w http.ResponseWriter, status int, err error) {
	RespondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: err.Error(),
	})
}

// RespondErrorString is RespondError for a plain message.
func RespondErrorString(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
