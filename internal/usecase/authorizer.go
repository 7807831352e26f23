package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/core/port"
	"github.com/arklim/tenant-access/internal/repository"
)

// Authorizer answers request-time permission checks from the cached matrix.
type Authorizer struct {
	roles  port.RoleRepository
	cache  port.PermissionCache
	logger *zap.Logger
}

// NewAuthorizer constructs an Authorizer.
func NewAuthorizer(roles port.RoleRepository, cache port.PermissionCache, logger *zap.Logger) *Authorizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authorizer{roles: roles, cache: cache, logger: logger}
}

// Authorize returns nil when principal may perform actionCode on modulePath.
func (a *Authorizer) Authorize(ctx context.Context, principal domain.Principal, modulePath, actionCode string) error {
	matrix, err := a.Matrix(ctx, principal)
	if err != nil {
		return err
	}
	if !matrix.Allowed(modulePath, actionCode) {
		a.logger.Debug("permission denied",
			zap.String("user_id", principal.UserID),
			zap.String("tenant", principal.Tenant.String()),
			zap.String("module", modulePath),
			zap.String("action", actionCode),
		)
		return fmt.Errorf("%s on %s: %w", actionCode, modulePath, ErrPermissionDenied)
	}
	return nil
}

// Matrix returns the cached matrix of principal. The live role gate runs first so a user
// stripped of every active role is refused even while a matrix is still cached.
func (a *Authorizer) Matrix(ctx context.Context, principal domain.Principal) (domain.PermissionMatrix, error) {
	if err := principal.Tenant.Validate(); err != nil {
		return nil, err
	}
	if principal.UserID == "" {
		return nil, fmt.Errorf("principal without subject: %w", domain.ErrUnauthorized)
	}

	count, err := a.roles.CountActiveForUser(ctx, principal.Tenant, principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("count active roles: %w", err)
	}
	if count == 0 {
		return nil, ErrNoActiveRole
	}

	matrix, err := a.cache.Get(ctx, principal.Tenant, principal.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("permission matrix not cached: %w", domain.ErrSessionExpired)
		}
		return nil, fmt.Errorf("load cached permissions: %w", err)
	}
	return matrix, nil
}
