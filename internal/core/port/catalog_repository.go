package port

import (
	"context"

	"github.com/arklim/tenant-access/internal/core/domain"
)

// CatalogRepository stores modules, actions and their applicability edges.
type CatalogRepository interface {
	CreateModule(ctx context.Context, module domain.Module) error
	CreateAction(ctx context.Context, action domain.Action) error
	CreatePermission(ctx context.Context, permission domain.Permission) error
	GetModule(ctx context.Context, id string) (*domain.Module, error)
	GetAction(ctx context.Context, id string) (*domain.Action, error)
	UpdateAction(ctx context.Context, action domain.Action) error
	DeleteAction(ctx context.Context, id string) error

	ListVisibleModules(ctx context.Context, tenant domain.Tenant) ([]domain.Module, error)
	ListApplicable(ctx context.Context, tenant domain.Tenant) ([]domain.ApplicablePermission, error)
	// FilterVisiblePermissions returns the subset of ids whose module and action are visible to tenant.
	FilterVisiblePermissions(ctx context.Context, tenant domain.Tenant, ids []string) ([]string, error)
}
