package httpapi

import (
	"encoding/json"
	"net/http"
)

// ErrorEnvelope standardizes JSON error responses across the API surface.
type ErrorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	return WriteJSON(w, status, &ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

// RequestMeta builds the standard meta block attached to error envelopes.
func RequestMeta(r *http.Request) map[string]string {
	if r == nil || r.URL == nil {
		return nil
	}
	meta := map[string]string{
		"path": r.URL.Path,
	}
	if id := r.Header.Get("X-Request-Id"); id != "" {
		meta["request_id"] = id
	}
	return meta
}
