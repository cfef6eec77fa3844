package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/starford/vaultkeep/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Kind  string `json:"kind,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusOf maps an error kind to its HTTP status.
func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindPathTraversal:
		return http.StatusForbidden
	case apperr.KindInvalidPath, apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperr.KindParse:
		return http.StatusUnprocessableEntity
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindConcurrency:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err with the status of its kind. Internal failures are
// logged and their details withheld from the client.
func writeError(w http.ResponseWriter, op string, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	if status == http.StatusInternalServerError {
		slog.Error("api: "+op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errResponse{Error: "internal error", Kind: string(kind)})
		return
	}
	writeJSON(w, status, errResponse{Error: err.Error(), Kind: string(kind)})
}
