// Package api is the thin REST port: request/response DTOs, RFC 7807
// problem details, and net/http handlers that call straight into the
// calculator, twin store, override store, and system registry — no
// router library, just plain net/http handlers.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/sentrygrid/twinctl/internal/twinerr"
)

// Problem is an RFC 7807 problem-details body.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Problem{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// writeErr maps a twinerr.Kind to the matching HTTP status and emits it as
// a problem-details body.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case twinerr.IsNotFound(err):
		writeProblem(w, http.StatusNotFound, "not found", err.Error())
	case twinerr.IsConflict(err):
		writeProblem(w, http.StatusConflict, "version conflict", err.Error())
	case twinerr.IsSafetyBlock(err):
		writeProblem(w, http.StatusUnprocessableEntity, "refused by safety rule", err.Error())
	case twinerr.IsValidation(err):
		writeProblem(w, http.StatusBadRequest, "validation failed", err.Error())
	case twinerr.IsInfraDown(err):
		writeProblem(w, http.StatusServiceUnavailable, "infrastructure unavailable", err.Error())
	default:
		writeProblem(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
