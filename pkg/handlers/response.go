// Package handlers contains the HTTP surface of forge-engine.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/forgelab-io/forge-engine/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// statusFor maps service errors to an HTTP status and stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrAppBusy):
		return http.StatusConflict, "app_busy"
	case errors.Is(err, apperrors.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, apperrors.ErrDeployKeyExhausted):
		return http.StatusServiceUnavailable, "deploy_key_exhausted"
	case errors.Is(err, apperrors.ErrInvalidIdentifier):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, apperrors.ErrAccessDenied):
		return http.StatusForbidden, "access_denied"
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// ServiceError writes the JSON error response for a service-layer failure.
func ServiceError(w http.ResponseWriter, err error) error {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		// Internal details stay in the logs.
		message = "internal server error"
	}
	return ErrorResponse(w, status, code, message)
}
