package auth

import "errors"

var (
	// ErrTokenInvalid is returned for tokens that fail signature, expiry or
	// claim checks.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrForbidden is returned when a valid token lacks a permission.
	ErrForbidden = errors.New("insufficient permissions")

	// ErrSecretRequired is returned when signing without a secret.
	ErrSecretRequired = errors.New("jwt secret is required")
)
