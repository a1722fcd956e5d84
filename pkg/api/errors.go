package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cuemby/skynet-control/pkg/queue"
	"github.com/cuemby/skynet-control/pkg/registry"
)

// apiError pairs an HTTP status with a machine-readable code and a
// human-readable message, matching the error taxonomy every handler
// classifies failures into: validation, auth, rate-limit, not-found,
// no-gateway, and gateway-error.
type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (e *apiError) Error() string { return e.Message }

func newAPIError(status int, code, message string) *apiError {
	return &apiError{Status: status, Code: code, Message: message}
}

var (
	errMissingAPIKey = newAPIError(http.StatusUnauthorized, "unauthorized", "missing or invalid API key")
	errRateLimited   = newAPIError(http.StatusTooManyRequests, "rate_limited", "too many requests")
	errBadRequest    = newAPIError(http.StatusBadRequest, "invalid_request", "malformed request body")
)

// classifyError maps a domain error returned by pkg/queue or pkg/registry
// onto the HTTP status the external interface promises for it.
func classifyError(err error) *apiError {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, queue.ErrValidation),
		errors.Is(err, queue.ErrDuplicateID),
		errors.Is(err, queue.ErrSelfDependency),
		errors.Is(err, queue.ErrMissingDependency),
		errors.Is(err, queue.ErrCycle):
		return newAPIError(http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, queue.ErrInvalidTransition):
		// State-machine violations are a "did not apply" outcome, reported
		// as a plain bad request rather than a conflict.
		return newAPIError(http.StatusBadRequest, "invalid_transition", err.Error())
	case errors.Is(err, queue.ErrFileOwned):
		return newAPIError(http.StatusConflict, "file_owned", err.Error())
	case errors.Is(err, registry.ErrNoGateway):
		return newAPIError(http.StatusServiceUnavailable, "no_gateway", err.Error())
	default:
		return newAPIError(http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err *apiError) {
	writeJSON(w, err.Status, err)
}
