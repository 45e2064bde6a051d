// Package respond writes JSON bodies and the shared error envelope.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/wastetrack/wastetrack/internal/apperr"
)

// JSON writes data with the given status
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error writes err using the error envelope. Internal errors are reduced to
// a generic message; callers log the cause.
func Error(w http.ResponseWriter, err error) {
	e := apperr.From(err)

	body := map[string]any{
		"code":    e.Code,
		"message": e.Message,
	}
	if e.Field != "" {
		body["field"] = e.Field
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	if reqID := w.Header().Get("X-Request-ID"); reqID != "" {
		body["request_id"] = reqID
	}

	JSON(w, e.HTTPStatus(), map[string]any{"error": body})
}
