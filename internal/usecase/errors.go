package usecase

import (
	"fmt"

	"github.com/arklim/tenant-access/internal/core/domain"
)

// Use case errors wrap a domain kind so the transport layer can map them with errors.Is.
var (
	ErrInvalidCredentials      = fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	ErrEmailNotVerified        = fmt.Errorf("email not verified: %w", domain.ErrUnauthorized)
	ErrInactiveAccount         = fmt.Errorf("account is not active: %w", domain.ErrUnauthorized)
	ErrInvalidToken            = fmt.Errorf("invalid token: %w", domain.ErrUnauthorized)
	ErrExpiredToken            = fmt.Errorf("token expired: %w", domain.ErrUnauthorized)
	ErrInvalidVerificationCode = fmt.Errorf("invalid verification code: %w", domain.ErrUnauthorized)

	// ErrNoActiveRole is returned when a user holds no assigned, active role in the tenant.
	ErrNoActiveRole     = fmt.Errorf("no active role: %w", domain.ErrForbidden)
	ErrPermissionDenied = fmt.Errorf("insufficient permissions: %w", domain.ErrForbidden)
	// ErrImmutableEntity guards PUBLIC catalog entries against tenant-scoped edits.
	ErrImmutableEntity = fmt.Errorf("entity is shared and immutable: %w", domain.ErrForbidden)

	ErrLastRole            = fmt.Errorf("user must keep at least one role: %w", domain.ErrConflict)
	ErrRoleAlreadyAssigned = fmt.Errorf("role already assigned: %w", domain.ErrConflict)

	ErrDefaultRoleMissing = fmt.Errorf("tenant has no default role: %w", domain.ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("user not found: %w", domain.ErrNotFound)
	ErrRoleNotFound       = fmt.Errorf("role not found: %w", domain.ErrNotFound)
)

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, fmt.Sprintf(format, args...))
}
