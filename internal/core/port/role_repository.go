package port

import (
	"context"

	"github.com/arklim/tenant-access/internal/core/domain"
)

// RoleRepository manages roles, user assignments and role grants within a tenant.
type RoleRepository interface {
	Create(ctx context.Context, tenant domain.Tenant, role domain.Role) error
	GetByID(ctx context.Context, tenant domain.Tenant, id string) (*domain.Role, error)
	GetDefault(ctx context.Context, tenant domain.Tenant) (*domain.Role, error)
	ClearDefault(ctx context.Context, tenant domain.Tenant) error
	SetDefault(ctx context.Context, tenant domain.Tenant, id string) error
	SetActive(ctx context.Context, tenant domain.Tenant, id string, active bool) error

	// ListByUser returns every role assigned to the user, active or not.
	ListByUser(ctx context.Context, tenant domain.Tenant, userID string) ([]domain.Role, error)
	// CountActiveForUser counts assigned roles whose is_active flag is set.
	CountActiveForUser(ctx context.Context, tenant domain.Tenant, userID string) (int, error)
	AssignToUser(ctx context.Context, tenant domain.Tenant, userID, roleID string) error
	// RemoveFromUser deletes the assignment only while the user holds more than one role.
	// It returns repository.ErrNotFound when nothing was deleted.
	RemoveFromUser(ctx context.Context, tenant domain.Tenant, userID, roleID string) error

	GrantPermissions(ctx context.Context, tenant domain.Tenant, roleID string, permissionIDs []string) (int, error)
	RevokePermissions(ctx context.Context, tenant domain.Tenant, roleID string, permissionIDs []string) (int, error)
	// ListGrantedPermissions returns visible (module, action) pairs the user holds through active roles.
	ListGrantedPermissions(ctx context.Context, tenant domain.Tenant, userID string) ([]domain.GrantedPermission, error)
}
