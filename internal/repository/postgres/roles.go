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

// RoleRepository implements role, assignment and grant persistence for every tenant.
type RoleRepository struct {
	exec       pgExecutor
	partitions Partitions
	builder    squirrel.StatementBuilderType
}

// NewRoleRepository constructs a PostgreSQL-backed role repository.
func NewRoleRepository(exec pgExecutor, partitions Partitions) *RoleRepository {
	return &RoleRepository{exec: exec, partitions: partitions, builder: newBuilder()}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *RoleRepository) WithTx(tx pgx.Tx) *RoleRepository {
	if tx == nil {
		return r
	}
	return &RoleRepository{exec: tx, partitions: r.partitions, builder: r.builder}
}

// Create inserts a new role.
func (r *RoleRepository) Create(ctx context.Context, tenant domain.Tenant, role domain.Role) error {
	table, err := r.partitions.Table(tenant, "roles")
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert(table).
		Columns("id", "name", "description", "is_active", "is_default", "created_at", "updated_at").
		Values(role.ID, role.Name, optionalString(role.Description), role.IsActive, role.IsDefault, role.CreatedAt, role.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert role: %w", repository.MapWriteError(err))
	}

	return nil
}

// GetByID retrieves a role by its ID.
func (r *RoleRepository) GetByID(ctx context.Context, tenant domain.Tenant, id string) (*domain.Role, error) {
	return r.getOne(ctx, tenant, squirrel.Eq{"id": id})
}

// GetDefault retrieves the tenant's default role.
func (r *RoleRepository) GetDefault(ctx context.Context, tenant domain.Tenant) (*domain.Role, error) {
	return r.getOne(ctx, tenant, squirrel.Eq{"is_default": true})
}

func (r *RoleRepository) getOne(ctx context.Context, tenant domain.Tenant, where squirrel.Eq) (*domain.Role, error) {
	table, err := r.partitions.Table(tenant, "roles")
	if err != nil {
		return nil, err
	}

	stmt, args, err := r.builder.Select("id", "name", "description", "is_active", "is_default", "created_at", "updated_at").
		From(table).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role sql: %w", err)
	}

	role, err := scanRole(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}
	return &role, nil
}

// ClearDefault unsets the default flag on every role of the tenant.
func (r *RoleRepository) ClearDefault(ctx context.Context, tenant domain.Tenant) error {
	table, err := r.partitions.Table(tenant, "roles")
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Update(table).
		Set("is_default", false).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"is_default": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear default role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("clear default role: %w", err)
	}
	return nil
}

// SetDefault marks the role as the tenant default. Callers clear the previous default first.
func (r *RoleRepository) SetDefault(ctx context.Context, tenant domain.Tenant, id string) error {
	return r.updateFlag(ctx, tenant, id, "is_default", true)
}

// SetActive toggles the role's active flag.
func (r *RoleRepository) SetActive(ctx context.Context, tenant domain.Tenant, id string, active bool) error {
	return r.updateFlag(ctx, tenant, id, "is_active", active)
}

func (r *RoleRepository) updateFlag(ctx context.Context, tenant domain.Tenant, id, column string, value bool) error {
	table, err := r.partitions.Table(tenant, "roles")
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Update(table).
		Set(column, value).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update role %s sql: %w", column, err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update role %s: %w", column, repository.MapWriteError(err))
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByUser returns every role assigned to the user.
func (r *RoleRepository) ListByUser(ctx context.Context, tenant domain.Tenant, userID string) ([]domain.Role, error) {
	roles, err := r.partitions.Table(tenant, "roles")
	if err != nil {
		return nil, err
	}
	userRoles, _ := r.partitions.Table(tenant, "user_roles")

	stmt, args, err := r.builder.Select("r.id", "r.name", "r.description", "r.is_active", "r.is_default", "r.created_at", "r.updated_at").
		From(roles + " r").
		Join(userRoles + " ur ON ur.role_id = r.id").
		Where(squirrel.Eq{"ur.user_id": userID}).
		OrderBy("r.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list user roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query user roles: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user role: %w", err)
		}
		result = append(result, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user roles: %w", err)
	}

	return result, nil
}

// CountActiveForUser counts the user's assigned roles that are active.
func (r *RoleRepository) CountActiveForUser(ctx context.Context, tenant domain.Tenant, userID string) (int, error) {
	roles, err := r.partitions.Table(tenant, "roles")
	if err != nil {
		return 0, err
	}
	userRoles, _ := r.partitions.Table(tenant, "user_roles")

	stmt, args, err := r.builder.Select("count(*)").
		From(userRoles + " ur").
		Join(roles + " r ON r.id = ur.role_id").
		Where(squirrel.Eq{"ur.user_id": userID, "r.is_active": true}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count active roles sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active roles: %w", err)
	}
	return count, nil
}

// AssignToUser links the role to the user. A duplicate assignment is a conflict.
func (r *RoleRepository) AssignToUser(ctx context.Context, tenant domain.Tenant, userID, roleID string) error {
	table, err := r.partitions.Table(tenant, "user_roles")
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert(table).
		Columns("user_id", "role_id", "assigned_at").
		Values(userID, roleID, time.Now().UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build assign role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("assign role: %w", repository.MapWriteError(err))
	}
	return nil
}

// RemoveFromUser locks the user row, then deletes the assignment only if another role remains.
func (r *RoleRepository) RemoveFromUser(ctx context.Context, tenant domain.Tenant, userID, roleID string) error {
	users, err := r.partitions.Table(tenant, "users")
	if err != nil {
		return err
	}
	userRoles, _ := r.partitions.Table(tenant, "user_roles")

	lockStmt, lockArgs, err := r.builder.Select("id").
		From(users).
		Where(squirrel.Eq{"id": userID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return fmt.Errorf("build lock user sql: %w", err)
	}

	var locked string
	if err := r.exec.QueryRow(ctx, lockStmt, lockArgs...).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("lock user: %w", err)
	}

	stmt, args, err := r.builder.Delete(userRoles).
		Where(squirrel.Eq{"user_id": userID, "role_id": roleID}).
		Where(squirrel.Expr("(SELECT count(*) FROM "+userRoles+" WHERE user_id = ?) > 1", userID)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build remove role sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("remove role: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GrantPermissions links the permissions to the role and returns the number of rows written.
func (r *RoleRepository) GrantPermissions(ctx context.Context, tenant domain.Tenant, roleID string, permissionIDs []string) (int, error) {
	if len(permissionIDs) == 0 {
		return 0, nil
	}
	table, err := r.partitions.Table(tenant, "role_permissions")
	if err != nil {
		return 0, err
	}

	query := r.builder.Insert(table).Columns("role_id", "permission_id", "allowed")
	for _, permissionID := range permissionIDs {
		query = query.Values(roleID, permissionID, true)
	}

	stmt, args, err := query.
		Suffix("ON CONFLICT (role_id, permission_id) DO UPDATE SET allowed = EXCLUDED.allowed").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build grant role permissions sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("grant role permissions: %w", repository.MapWriteError(err))
	}
	return int(ct.RowsAffected()), nil
}

// RevokePermissions removes the permissions from the role and returns the number of rows deleted.
func (r *RoleRepository) RevokePermissions(ctx context.Context, tenant domain.Tenant, roleID string, permissionIDs []string) (int, error) {
	if len(permissionIDs) == 0 {
		return 0, nil
	}
	table, err := r.partitions.Table(tenant, "role_permissions")
	if err != nil {
		return 0, err
	}

	stmt, args, err := r.builder.Delete(table).
		Where(squirrel.Eq{"role_id": roleID}).
		Where(squirrel.Eq{"permission_id": permissionIDs}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke role permissions sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke role permissions: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

// ListGrantedPermissions walks user -> active role -> allowed grant -> visible module/action.
func (r *RoleRepository) ListGrantedPermissions(ctx context.Context, tenant domain.Tenant, userID string) ([]domain.GrantedPermission, error) {
	roles, err := r.partitions.Table(tenant, "roles")
	if err != nil {
		return nil, err
	}
	userRoles, _ := r.partitions.Table(tenant, "user_roles")
	rolePermissions, _ := r.partitions.Table(tenant, "role_permissions")
	visible := tenant.VisibleTags()

	stmt, args, err := r.builder.Select("DISTINCT m.path", "a.code").
		From(userRoles + " ur").
		Join(roles + " r ON r.id = ur.role_id AND r.is_active = true").
		Join(rolePermissions + " rp ON rp.role_id = r.id AND rp.allowed = true").
		Join(catalogTable("permissions") + " p ON p.id = rp.permission_id").
		Join(catalogTable("modules") + " m ON m.id = p.module_id").
		Join(catalogTable("actions") + " a ON a.id = p.action_id").
		Where(squirrel.Eq{"ur.user_id": userID}).
		Where(squirrel.Eq{"m.system": visible}).
		Where(squirrel.Eq{"a.system": visible}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build granted permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query granted permissions: %w", err)
	}
	defer rows.Close()

	granted := make([]domain.GrantedPermission, 0)
	for rows.Next() {
		var g domain.GrantedPermission
		if err := rows.Scan(&g.ModulePath, &g.ActionCode); err != nil {
			return nil, fmt.Errorf("scan granted permission: %w", err)
		}
		granted = append(granted, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate granted permissions: %w", err)
	}

	return granted, nil
}

func scanRole(row pgx.Row) (domain.Role, error) {
	var (
		role        domain.Role
		description sql.NullString
	)
	if err := row.Scan(
		&role.ID,
		&role.Name,
		&description,
		&role.IsActive,
		&role.IsDefault,
		&role.CreatedAt,
		&role.UpdatedAt,
	); err != nil {
		return domain.Role{}, err
	}
	role.Description = nullableStringPtr(description)
	return role, nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
