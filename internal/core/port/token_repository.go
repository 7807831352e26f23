package port

import (
	"context"
	"time"

	"github.com/arklim/tenant-access/internal/core/domain"
)

// TokenRepository persists refresh token digests.
type TokenRepository interface {
	Create(ctx context.Context, tenant domain.Tenant, token domain.RefreshToken) error
	// ListActiveByUser returns the newest non-revoked, unexpired rows for the user.
	ListActiveByUser(ctx context.Context, tenant domain.Tenant, userID string, at time.Time, limit int) ([]domain.RefreshToken, error)
	// Revoke flips the revoked flag only if it is still false. A lost race returns repository.ErrNotFound.
	Revoke(ctx context.Context, tenant domain.Tenant, id string) error
	RevokeAllForUser(ctx context.Context, tenant domain.Tenant, userID string) (int, error)
}
