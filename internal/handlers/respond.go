// Package handlers exposes the matchmaking core over HTTP and
// websockets. Handlers stay thin: decode, call the core, encode. All
// domain decisions live behind the called components.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/knightwatch/arena/internal/arena"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeError maps the domain error taxonomy onto HTTP statuses. Fatal
// and transient failures hide their detail from the client.
func writeError(w http.ResponseWriter, log *logrus.Logger, err error) {
	code := arena.CodeOf(err)
	var body errorBody
	body.Error.Code = string(code)
	body.Error.Message = err.Error()

	status := http.StatusInternalServerError
	switch code {
	case arena.NotFound:
		status = http.StatusNotFound
	case arena.InvalidState, arena.Conflict:
		status = http.StatusConflict
	case arena.Unauthorized:
		status = http.StatusForbidden
	case arena.ValidationRejected:
		status = http.StatusBadRequest
	case arena.TransientFailure:
		status = http.StatusServiceUnavailable
		body.Error.Message = "temporarily unavailable, retry shortly"
	case arena.Fatal:
		log.WithError(err).Error("invariant violation surfaced to handler")
		body.Error.Message = "internal error"
	}
	writeJSON(w, status, body)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return false
	}
	return true
}
