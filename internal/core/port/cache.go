package port

import (
	"context"
	"time"

	"github.com/arklim/tenant-access/internal/core/domain"
)

// PermissionCache holds resolved matrices keyed by (tenant, user id).
// Get returns repository.ErrNotFound on a miss.
type PermissionCache interface {
	Set(ctx context.Context, tenant domain.Tenant, userID string, matrix domain.PermissionMatrix, ttl time.Duration) error
	Get(ctx context.Context, tenant domain.Tenant, userID string) (domain.PermissionMatrix, error)
	Delete(ctx context.Context, tenant domain.Tenant, userID string) error
}
