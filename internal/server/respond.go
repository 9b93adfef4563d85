package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"genqueue/internal/queue"
)

func writeAPIJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeAPIError maps the queue sentinels onto HTTP status codes. The
// body is always the {error} envelope.
func writeAPIError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, queue.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, queue.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, queue.ErrConflict):
		code = http.StatusConflict
	case errors.Is(err, queue.ErrInvalidTransition), errors.Is(err, queue.ErrInvalidState):
		code = http.StatusUnprocessableEntity
	}
	writeAPIJSON(w, code, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeAPIJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}
