package usecase

import (
	"context"
	"fmt"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/core/port"
)

// PermissionResolver builds the effective permission matrix of a user within a tenant.
type PermissionResolver struct {
	catalog port.CatalogRepository
	roles   port.RoleRepository
}

// NewPermissionResolver constructs a PermissionResolver.
func NewPermissionResolver(catalog port.CatalogRepository, roles port.RoleRepository) *PermissionResolver {
	return &PermissionResolver{catalog: catalog, roles: roles}
}

// Resolve returns every visible module and applicable action, marking the ones granted
// through the user's active roles. A user without grants gets an all-false matrix.
func (r *PermissionResolver) Resolve(ctx context.Context, userID string, tenant domain.Tenant) (domain.PermissionMatrix, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, invalidInput("user id is required")
	}

	modules, err := r.catalog.ListVisibleModules(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("list visible modules: %w", err)
	}

	applicable, err := r.catalog.ListApplicable(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("list applicable permissions: %w", err)
	}

	granted, err := r.roles.ListGrantedPermissions(ctx, tenant, userID)
	if err != nil {
		return nil, fmt.Errorf("list granted permissions: %w", err)
	}

	return domain.BuildPermissionMatrix(modules, applicable, granted), nil
}
