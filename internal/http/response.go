package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"budgetbook/internal/core"
	applog "budgetbook/internal/log"
	"budgetbook/internal/services"
	"budgetbook/internal/store"
	"budgetbook/internal/view"
)

var errUnauthorized = store.ErrUnauthorized

type apiError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type frameResponse struct {
	Success  bool   `json:"success"`
	Currency string `json:"currency,omitempty"`
	view.Frame
	// Stale is set when a newer month load superseded this request.
	Stale bool `json:"stale,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeFrame(w http.ResponseWriter, f view.Frame, stale bool) {
	writeJSON(w, http.StatusOK, frameResponse{Success: true, Currency: s.currency, Frame: f, Stale: stale})
}

// validation errors are the caller's fault and map to 422.
var validationErrors = []error{
	core.ErrInvalidDay, core.ErrInvalidMonth, core.ErrInvalidYear, core.ErrInvalidDate,
	core.ErrInvalidAmount, core.ErrInvalidType, core.ErrInvalidFilter, core.ErrEmptyCategory,
	core.ErrNotesTooLong, core.ErrCategoryTooLong, view.ErrInvalidMode, services.ErrEmptyBatch,
	errBadRequest,
}

func isValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeError maps err to a status and a stable error code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, apiError{Error: "UNAUTHORIZED"})
	case isValidation(err):
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Error: "VALIDATION", Message: err.Error()})
	case errors.Is(err, store.ErrNotSupported):
		writeJSON(w, http.StatusNotImplemented, apiError{Error: "NOT_SUPPORTED", Message: err.Error()})
	default:
		applog.LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, r.Method+" "+r.URL.Path, nil)
		writeJSON(w, http.StatusBadGateway, apiError{Error: "UPSTREAM", Message: "the data store is unavailable"})
	}
}
