package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/core/port"
	"github.com/arklim/tenant-access/internal/repository"
)

// TokenRepository implements port.TokenRepository using per-tenant refresh_tokens tables.
type TokenRepository struct {
	exec       pgExecutor
	partitions Partitions
	builder    squirrel.StatementBuilderType
}

// NewTokenRepository constructs a new token repository.
func NewTokenRepository(exec pgExecutor, partitions Partitions) *TokenRepository {
	return &TokenRepository{exec: exec, partitions: partitions, builder: newBuilder()}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *TokenRepository) WithTx(tx pgx.Tx) *TokenRepository {
	if tx == nil {
		return r
	}
	return &TokenRepository{exec: tx, partitions: r.partitions, builder: r.builder}
}

// Create inserts a refresh token digest.
func (r *TokenRepository) Create(ctx context.Context, tenant domain.Tenant, token domain.RefreshToken) error {
	table, err := r.partitions.Table(tenant, "refresh_tokens")
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert(table).
		Columns("id", "user_id", "token_hash", "revoked", "expires_at", "created_at", "updated_at").
		Values(token.ID, token.UserID, token.TokenHash, token.Revoked, token.ExpiresAt, token.CreatedAt, token.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert refresh token: %w", repository.MapWriteError(err))
	}
	return nil
}

// ListActiveByUser returns the newest active rows for the user, bounded by limit.
func (r *TokenRepository) ListActiveByUser(ctx context.Context, tenant domain.Tenant, userID string, at time.Time, limit int) ([]domain.RefreshToken, error) {
	table, err := r.partitions.Table(tenant, "refresh_tokens")
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	stmt, args, err := r.builder.Select("id", "user_id", "token_hash", "revoked", "expires_at", "created_at", "updated_at").
		From(table).
		Where(squirrel.Eq{"user_id": userID, "revoked": false}).
		Where(squirrel.Gt{"expires_at": at.UTC()}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list refresh tokens sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query refresh tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]domain.RefreshToken, 0)
	for rows.Next() {
		token := domain.RefreshToken{Tenant: tenant}
		if err := rows.Scan(
			&token.ID,
			&token.UserID,
			&token.TokenHash,
			&token.Revoked,
			&token.ExpiresAt,
			&token.CreatedAt,
			&token.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan refresh token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh tokens: %w", err)
	}

	return tokens, nil
}

// Revoke marks a single refresh token as revoked if nobody else did first.
func (r *TokenRepository) Revoke(ctx context.Context, tenant domain.Tenant, id string) error {
	table, err := r.partitions.Table(tenant, "refresh_tokens")
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Update(table).
		Set("revoked", true).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id, "revoked": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke refresh token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// RevokeAllForUser revokes all active refresh tokens for a user.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, tenant domain.Tenant, userID string) (int, error) {
	table, err := r.partitions.Table(tenant, "refresh_tokens")
	if err != nil {
		return 0, err
	}

	stmt, args, err := r.builder.Update(table).
		Set("revoked", true).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"user_id": userID, "revoked": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke refresh tokens sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

var _ port.TokenRepository = (*TokenRepository)(nil)
