package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"langexam/internal/services"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps domain errors onto the HTTP surface. Anything not
// in the table is an internal error and the caller's message is used.
func respondServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrInsufficientFunds):
		respondError(w, http.StatusPaymentRequired, "insufficient credits")
	case errors.Is(err, services.ErrContentUnavailable):
		respondError(w, http.StatusServiceUnavailable, "no exam content available")
	case errors.Is(err, services.ErrInvalidExamType):
		respondError(w, http.StatusBadRequest, "invalid exam type")
	case errors.Is(err, services.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "exam session not found")
	case errors.Is(err, services.ErrEntryNotFound):
		respondError(w, http.StatusNotFound, "ledger entry not found")
	case errors.Is(err, services.ErrForbidden):
		respondError(w, http.StatusForbidden, "not your resource")
	case errors.Is(err, services.ErrAlreadySubmitted):
		respondError(w, http.StatusConflict, "exam already submitted")
	case errors.Is(err, services.ErrInvalidState):
		respondError(w, http.StatusConflict, "invalid state for operation")
	case errors.Is(err, services.ErrAlreadyRefunded):
		respondError(w, http.StatusConflict, "already refunded")
	case errors.Is(err, services.ErrUnknownPack):
		respondError(w, http.StatusBadRequest, "unknown credit pack")
	case errors.Is(err, services.ErrMalformedEvent):
		respondError(w, http.StatusBadRequest, "malformed payment event")
	case errors.Is(err, services.ErrExternalService):
		respondError(w, http.StatusBadGateway, "payment provider unavailable")
	default:
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

func parseInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func paginate(r *http.Request) (limit, offset int) {
	query := r.URL.Query()
	limit = parseInt(query.Get("limit"), 50)
	page := parseInt(query.Get("page"), 1)
	return limit, (page - 1) * limit
}
