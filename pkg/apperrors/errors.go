package apperrors

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidIdentifier  = errors.New("invalid identifier")
	ErrAccessDenied       = errors.New("access denied")
	ErrInvalidTransition  = errors.New("invalid lifecycle transition")
	ErrAppBusy            = errors.New("app has an active session")
	ErrDeployKeyExhausted = errors.New("deploy key allocation exhausted")
	ErrInvalidRole        = errors.New("invalid role")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
)
