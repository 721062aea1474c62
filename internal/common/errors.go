// Package common defines shared constants and sentinel errors used across
// the ZapPro server packages. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("insufficient permissions")
	ErrorValidation   = errors.New("validation error")

	// Auth errors. Every token rejection matches ErrInvalidToken regardless
	// of the concrete reason.
	ErrInvalidToken = errors.New("invalid token")

	// Configuration errors.
	ErrInvalidKeyMaterial = errors.New("invalid key material")
)
