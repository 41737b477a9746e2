package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/velotrips/velo/internal/auth"
	"github.com/velotrips/velo/internal/calculator"
	"github.com/velotrips/velo/internal/ledger"
	"github.com/velotrips/velo/internal/service"
	"github.com/velotrips/velo/internal/storage"
)

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body", service.ErrInvalidInput)
	}
	return nil
}

// respondError maps domain errors onto HTTP status codes. Unknown errors are
// logged and returned as an opaque 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, ledger.ErrValidation),
		errors.Is(err, ledger.ErrInsufficientDebt),
		errors.Is(err, calculator.ErrInvalidSplit),
		errors.Is(err, auth.ErrWeakPassword):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrMissingToken):
		status = http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		status = http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, auth.ErrEmailExists):
		status = http.StatusConflict
	default:
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

// errForbidden marks requests from users who are not members of the trip they
// are operating on.
var errForbidden = errors.New("not a member of this trip")

func urlID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", service.ErrInvalidInput, name)
	}
	return id, nil
}
