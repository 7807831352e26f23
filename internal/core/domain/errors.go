package domain

import "errors"

// Error kinds shared by every layer. Callers wrap them with context and match with errors.Is.
var (
	ErrInvalidTenant       = errors.New("invalid tenant")
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrForbidden           = errors.New("forbidden")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrRefreshTokenRevoked = errors.New("refresh token revoked")
	ErrSessionExpired      = errors.New("session expired")
)
