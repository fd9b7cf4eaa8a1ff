package api

import (
	"encoding/json"
	"net/http"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

// envelope is the uniform {success,data,error} response shape (spec §6.3).
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *apiErr `json:"error,omitempty"`
}

type apiErr struct {
	Kind    model.ErrorKind `json:"kind"`
	Message string          `json:"message"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

// writeError maps an error onto an HTTP status using the kind table from
// spec §7, and renders the uniform error envelope.
func writeError(w http.ResponseWriter, err error) {
	kind, ok := model.KindOf(err)
	if !ok {
		kind = model.ErrComponentFailed
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(kind))
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &apiErr{Kind: kind, Message: err.Error()}})
}

// statusFor maps a conceptual error kind to an HTTP status code (spec §7).
func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.ErrConfigParse, model.ErrConfigValidate:
		return http.StatusBadRequest
	case model.ErrNotFound:
		return http.StatusNotFound
	case model.ErrAlreadyExists:
		return http.StatusConflict
	case model.ErrHasDependents:
		return http.StatusConflict
	case model.ErrReadOnly:
		return http.StatusForbidden
	case model.ErrComponentFailed:
		return http.StatusInternalServerError
	case model.ErrBootstrapOverflow:
		return http.StatusServiceUnavailable
	case model.ErrTransientIO:
		return http.StatusBadGateway
	case model.ErrPanic:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
