package port

import (
	"context"

	"github.com/arklim/tenant-access/internal/core/domain"
)

// UserRepository exposes persistence behavior for users. Every call is scoped to one tenant.
type UserRepository interface {
	Create(ctx context.Context, tenant domain.Tenant, user domain.User) error
	GetByID(ctx context.Context, tenant domain.Tenant, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, tenant domain.Tenant, email string) (*domain.User, error)
	MarkEmailVerified(ctx context.Context, tenant domain.Tenant, id string) error
	SetActive(ctx context.Context, tenant domain.Tenant, id string, active bool) error
	UpdatePasswordHash(ctx context.Context, tenant domain.Tenant, id, hash string) error
}
