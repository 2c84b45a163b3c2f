package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/stagelinehq/stageline/pkg/schema"
)

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}

// writeSchemaError maps a taxonomy error to an HTTP status and writes it.
func writeSchemaError(w http.ResponseWriter, err error) {
	var serr *schema.Error
	if errors.As(err, &serr) {
		writeJSON(w, errorStatus(serr.Code), serr)
		return
	}
	writeError(w, http.StatusInternalServerError, schema.ErrCodeExecution, err.Error())
}

// errorStatus maps taxonomy codes to HTTP statuses. Stage-level failures
// never reach here; they travel inside a 200 report.
func errorStatus(code string) int {
	switch code {
	case schema.ErrCodeInvalidInput, schema.ErrCodeMalformedWorkflow, schema.ErrCodeUnknownStage,
		schema.ErrCodeDuplicateStage, schema.ErrCodeDuplicateOutputKey:
		return http.StatusBadRequest
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case schema.ErrCodeUpstreamUnavailable:
		return http.StatusBadGateway
	case schema.ErrCodeUpstreamRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// queryInt extracts an integer query param with a default value.
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
