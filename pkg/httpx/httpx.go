package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// Error codes shared by every handler so clients can switch on them.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeBadJSON         = "BAD_JSON"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeDB              = "DB_ERROR"
	CodeUpstream        = "UPSTREAM_ERROR"
	CodeIdempotencyKey  = "IDEMPOTENCY_KEY_REUSED"
)

func NewRequestID() string { return "req_" + uuid.NewString() }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	resp := map[string]any{
		"request_id": NewRequestID(),
		"error": map[string]any{
			"code": code, "message": message, "details": details,
		},
	}
	WriteJSON(w, status, resp)
}

func WriteValidationError(w http.ResponseWriter, message string, fields ...string) {
	var details any
	if len(fields) > 0 {
		details = map[string]any{"fields": fields}
	}
	WriteError(w, http.StatusBadRequest, CodeValidation, message, details)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message, nil)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message, nil)
}

// WriteStorageError hides driver detail from the caller; the handler logs it.
func WriteStorageError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, CodeDB, "storage failure", nil)
}
