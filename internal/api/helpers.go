package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/pcorbett/issuedeck/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, errorResponse{Error: message})
}

// decodeJSON decodes a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

// handleStoreError maps store sentinel errors onto HTTP statuses.
// Unexpected errors are logged and surfaced as a bare 500.
func handleStoreError(w http.ResponseWriter, operation string, err error) {
	switch {
	case errors.Is(err, store.ErrValidation):
		sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrForbidden):
		sendError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrNotFound):
		sendError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		sendError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("%s failed: %v", operation, err)
		sendError(w, http.StatusInternalServerError, "internal error")
	}
}
