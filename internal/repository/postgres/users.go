package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/core/port"
	"github.com/arklim/tenant-access/internal/repository"
)

var userColumns = []string{
	"id",
	"email",
	"document_number",
	"full_name",
	"password_hash",
	"is_active",
	"email_verified",
	"verification_code",
	"created_at",
	"updated_at",
}

// UserRepository implements port.UserRepository over per-tenant users tables.
type UserRepository struct {
	exec       pgExecutor
	partitions Partitions
	builder    squirrel.StatementBuilderType
}

// NewUserRepository constructs a user repository backed by any pgExecutor.
func NewUserRepository(exec pgExecutor, partitions Partitions) *UserRepository {
	return &UserRepository{exec: exec, partitions: partitions, builder: newBuilder()}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{exec: tx, partitions: r.partitions, builder: r.builder}
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, tenant domain.Tenant, user domain.User) error {
	table, err := r.partitions.Table(tenant, "users")
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert(table).
		Columns(userColumns...).
		Values(
			user.ID,
			user.Email,
			user.DocumentNumber,
			user.FullName,
			user.PasswordHash,
			user.IsActive,
			user.EmailVerified,
			optionalString(user.VerificationCode),
			user.CreatedAt,
			user.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert user: %w", repository.MapWriteError(err))
	}

	return nil
}

// GetByID retrieves a user by id.
func (r *UserRepository) GetByID(ctx context.Context, tenant domain.Tenant, id string) (*domain.User, error) {
	return r.getOne(ctx, tenant, squirrel.Eq{"id": id})
}

// GetByEmail retrieves a user by email. Emails are stored lower-cased.
func (r *UserRepository) GetByEmail(ctx context.Context, tenant domain.Tenant, email string) (*domain.User, error) {
	return r.getOne(ctx, tenant, squirrel.Eq{"email": email})
}

func (r *UserRepository) getOne(ctx context.Context, tenant domain.Tenant, where squirrel.Eq) (*domain.User, error) {
	table, err := r.partitions.Table(tenant, "users")
	if err != nil {
		return nil, err
	}

	stmt, args, err := r.builder.Select(userColumns...).
		From(table).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	var (
		user domain.User
		code sql.NullString
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&user.ID,
		&user.Email,
		&user.DocumentNumber,
		&user.FullName,
		&user.PasswordHash,
		&user.IsActive,
		&user.EmailVerified,
		&code,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.Tenant = tenant
	user.VerificationCode = nullableStringPtr(code)
	return &user, nil
}

// MarkEmailVerified flags the email as verified and clears the one-time code.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, tenant domain.Tenant, id string) error {
	table, err := r.partitions.Table(tenant, "users")
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Update(table).
		Set("email_verified", true).
		Set("verification_code", nil).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build verify email sql: %w", err)
	}

	return r.execAffecting(ctx, "verify email", stmt, args)
}

// SetActive toggles the account's active flag.
func (r *UserRepository) SetActive(ctx context.Context, tenant domain.Tenant, id string, active bool) error {
	table, err := r.partitions.Table(tenant, "users")
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Update(table).
		Set("is_active", active).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set user active sql: %w", err)
	}

	return r.execAffecting(ctx, "set user active", stmt, args)
}

// UpdatePasswordHash replaces the stored digest.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, tenant domain.Tenant, id, hash string) error {
	table, err := r.partitions.Table(tenant, "users")
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Update(table).
		Set("password_hash", hash).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	return r.execAffecting(ctx, "update password hash", stmt, args)
}

func (r *UserRepository) execAffecting(ctx context.Context, op, stmt string, args []any) error {
	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ port.UserRepository = (*UserRepository)(nil)
