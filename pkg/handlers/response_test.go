package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/forgelab-io/forge-engine/pkg/apperrors"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", apperrors.ErrNotFound, http.StatusNotFound, "not_found"},
		{"wrapped not found", fmt.Errorf("app 7: %w", apperrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{"conflict", apperrors.ErrConflict, http.StatusConflict, "conflict"},
		{"app busy", apperrors.ErrAppBusy, http.StatusConflict, "app_busy"},
		{"invalid transition", apperrors.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{"deploy key exhausted", apperrors.ErrDeployKeyExhausted, http.StatusServiceUnavailable, "deploy_key_exhausted"},
		{"invalid identifier", apperrors.ErrInvalidIdentifier, http.StatusBadRequest, "invalid_input"},
		{"access denied", apperrors.ErrAccessDenied, http.StatusForbidden, "access_denied"},
		{"forbidden", apperrors.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"unauthorized", apperrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := statusFor(tt.err)
			if status != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, status)
			}
			if code != tt.wantCode {
				t.Errorf("expected code %q, got %q", tt.wantCode, code)
			}
		})
	}
}

func TestServiceError_HidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()

	if err := ServiceError(rec, errors.New("pq: relation apps does not exist")); err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["message"] != "internal server error" {
		t.Errorf("expected generic message, got %q", body["message"])
	}
}

func TestServiceError_PassesDomainMessage(t *testing.T) {
	rec := httptest.NewRecorder()

	err := fmt.Errorf("app 7: %w", apperrors.ErrAppBusy)
	if encErr := ServiceError(rec, err); encErr != nil {
		t.Fatalf("unexpected encode error: %v", encErr)
	}

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}

	var body map[string]string
	if decErr := json.NewDecoder(rec.Body).Decode(&body); decErr != nil {
		t.Fatalf("failed to decode response: %v", decErr)
	}
	if body["error"] != "app_busy" {
		t.Errorf("expected code 'app_busy', got %q", body["error"])
	}
}
