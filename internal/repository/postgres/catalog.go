package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/core/port"
	"github.com/arklim/tenant-access/internal/repository"
)

// CatalogRepository implements port.CatalogRepository over the shared access schema.
type CatalogRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewCatalogRepository constructs a catalog repository.
func NewCatalogRepository(exec pgExecutor) *CatalogRepository {
	return &CatalogRepository{exec: exec, builder: newBuilder()}
}

// CreateModule inserts a module.
func (r *CatalogRepository) CreateModule(ctx context.Context, module domain.Module) error {
	stmt, args, err := r.builder.Insert(catalogTable("modules")).
		Columns("id", "name", "path", "system", "description", "created_at").
		Values(module.ID, module.Name, module.Path, string(module.System), optionalString(module.Description), module.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert module sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert module: %w", repository.MapWriteError(err))
	}
	return nil
}

// CreateAction inserts an action.
func (r *CatalogRepository) CreateAction(ctx context.Context, action domain.Action) error {
	stmt, args, err := r.builder.Insert(catalogTable("actions")).
		Columns("id", "code", "name", "system", "created_at").
		Values(action.ID, action.Code, action.Name, string(action.System), action.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert action sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert action: %w", repository.MapWriteError(err))
	}
	return nil
}

// CreatePermission inserts a (module, action) applicability edge.
func (r *CatalogRepository) CreatePermission(ctx context.Context, permission domain.Permission) error {
	stmt, args, err := r.builder.Insert(catalogTable("permissions")).
		Columns("id", "module_id", "action_id", "created_at").
		Values(permission.ID, permission.ModuleID, permission.ActionID, permission.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert permission sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert permission: %w", repository.MapWriteError(err))
	}
	return nil
}

// GetModule retrieves a module by id.
func (r *CatalogRepository) GetModule(ctx context.Context, id string) (*domain.Module, error) {
	stmt, args, err := r.builder.Select("id", "name", "path", "system", "description", "created_at").
		From(catalogTable("modules")).
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select module sql: %w", err)
	}

	module, err := scanModule(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan module: %w", err)
	}
	return &module, nil
}

// GetAction retrieves an action by id.
func (r *CatalogRepository) GetAction(ctx context.Context, id string) (*domain.Action, error) {
	stmt, args, err := r.builder.Select("id", "code", "name", "system", "created_at").
		From(catalogTable("actions")).
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select action sql: %w", err)
	}

	var (
		action domain.Action
		system string
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&action.ID, &action.Code, &action.Name, &system, &action.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan action: %w", err)
	}
	action.System = domain.Tenant(system)
	return &action, nil
}

// UpdateAction rewrites an action's code and name.
func (r *CatalogRepository) UpdateAction(ctx context.Context, action domain.Action) error {
	stmt, args, err := r.builder.Update(catalogTable("actions")).
		Set("code", action.Code).
		Set("name", action.Name).
		Where(squirrel.Eq{"id": action.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update action sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update action: %w", repository.MapWriteError(err))
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteAction removes an action; its permissions and grants cascade.
func (r *CatalogRepository) DeleteAction(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete(catalogTable("actions")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete action sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete action: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListVisibleModules returns modules tagged with tenant or PUBLIC.
func (r *CatalogRepository) ListVisibleModules(ctx context.Context, tenant domain.Tenant) ([]domain.Module, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}

	stmt, args, err := r.builder.Select("id", "name", "path", "system", "description", "created_at").
		From(catalogTable("modules")).
		Where(squirrel.Eq{"system": tenant.VisibleTags()}).
		OrderBy("path ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list modules sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query modules: %w", err)
	}
	defer rows.Close()

	modules := make([]domain.Module, 0)
	for rows.Next() {
		module, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		modules = append(modules, module)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate modules: %w", err)
	}
	return modules, nil
}

// ListApplicable returns edges whose module and action are both visible to tenant.
func (r *CatalogRepository) ListApplicable(ctx context.Context, tenant domain.Tenant) ([]domain.ApplicablePermission, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	visible := tenant.VisibleTags()

	stmt, args, err := r.builder.Select("p.id", "m.path", "m.name", "a.code", "a.name").
		From(catalogTable("permissions") + " p").
		Join(catalogTable("modules") + " m ON m.id = p.module_id").
		Join(catalogTable("actions") + " a ON a.id = p.action_id").
		Where(squirrel.Eq{"m.system": visible}).
		Where(squirrel.Eq{"a.system": visible}).
		OrderBy("m.path ASC", "a.code ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build applicable permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query applicable permissions: %w", err)
	}
	defer rows.Close()

	edges := make([]domain.ApplicablePermission, 0)
	for rows.Next() {
		var edge domain.ApplicablePermission
		if err := rows.Scan(&edge.PermissionID, &edge.ModulePath, &edge.ModuleName, &edge.ActionCode, &edge.ActionName); err != nil {
			return nil, fmt.Errorf("scan applicable permission: %w", err)
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applicable permissions: %w", err)
	}
	return edges, nil
}

// FilterVisiblePermissions keeps only the ids visible to tenant.
func (r *CatalogRepository) FilterVisiblePermissions(ctx context.Context, tenant domain.Tenant, ids []string) ([]string, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	visible := tenant.VisibleTags()

	stmt, args, err := r.builder.Select("p.id").
		From(catalogTable("permissions") + " p").
		Join(catalogTable("modules") + " m ON m.id = p.module_id").
		Join(catalogTable("actions") + " a ON a.id = p.action_id").
		Where(squirrel.Eq{"p.id": ids}).
		Where(squirrel.Eq{"m.system": visible}).
		Where(squirrel.Eq{"a.system": visible}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build filter permissions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query visible permissions: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan visible permission: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visible permissions: %w", err)
	}
	return out, nil
}

func scanModule(row pgx.Row) (domain.Module, error) {
	var (
		module      domain.Module
		system      string
		description sql.NullString
	)
	if err := row.Scan(&module.ID, &module.Name, &module.Path, &system, &description, &module.CreatedAt); err != nil {
		return domain.Module{}, err
	}
	module.System = domain.Tenant(system)
	module.Description = nullableStringPtr(description)
	return module, nil
}

var _ port.CatalogRepository = (*CatalogRepository)(nil)
