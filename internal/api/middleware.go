package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/doai-fleet/farmctl/internal/fleet"
)

// writeJSON marshals v as the response body with code, mirroring
// original_source's uniform JSON envelope.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits spec.md §7's uniform error shape: {"detail": string}.
func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

// respondErr maps a Store/service error to the status code spec.md §7
// assigns it: 404 on not-found, 400 on validation, 500 otherwise with
// the internal detail withheld from the caller.
func respondErr(w http.ResponseWriter, log func(string, error), err error) {
	switch {
	case errors.Is(err, fleet.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case isValidationErr(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log("internal error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// isValidationErr distinguishes fleetsvc's wrapped validator errors
// from unexpected lower-layer failures; both fleetsvc.ValidateHost and
// ValidateDevice prefix their errors with "invalid ".
func isValidationErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return len(msg) >= 8 && msg[:8] == "invalid "
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryBool(r *http.Request, key string) bool {
	v := r.URL.Query().Get(key)
	return v == "1" || v == "true"
}
