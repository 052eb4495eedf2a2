package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/galerija/internal/ledger"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// ledgerStatus maps a ledger rejection to an HTTP status code. Unknown
// errors map to 500.
func ledgerStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrItemUnavailable),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrOverflow):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidPrice),
		errors.Is(err, ledger.ErrIncorrectPayment),
		errors.Is(err, ledger.ErrRoyaltyRequired),
		errors.Is(err, ledger.ErrNoItems):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ledgerError writes the response for an error returned by the ledger.
// Rejections carry their message; anything else is logged and hidden.
func ledgerError(w http.ResponseWriter, op string, err error) {
	status := ledgerStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", "error", err)
		jsonError(w, status, "internal error")
		return
	}
	jsonError(w, status, err.Error())
}

// pathID parses an integer path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}
