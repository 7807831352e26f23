package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/repository"
)

func TestRoleRepository_RemoveFromUserKeepsLastRole(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRoleRepository(mock, DefaultPartitions())

	mock.ExpectQuery(`SELECT id FROM spd\.users WHERE id = \$1 FOR UPDATE`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("user-1"))
	mock.ExpectExec(`DELETE FROM spd\.user_roles WHERE role_id = \$1 AND user_id = \$2 AND \(SELECT count\(\*\) FROM spd\.user_roles WHERE user_id = \$3\) > 1`).
		WithArgs("role-1", "user-1", "user-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := repo.RemoveFromUser(context.Background(), domain.TenantSPD, "user-1", "role-1")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleRepository_RemoveFromUser(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRoleRepository(mock, DefaultPartitions())

	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("user-1"))
	mock.ExpectExec(`DELETE FROM spd\.user_roles`).
		WithArgs("role-1", "user-1", "user-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	if err := repo.RemoveFromUser(context.Background(), domain.TenantSPD, "user-1", "role-1"); err != nil {
		t.Fatalf("RemoveFromUser returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleRepository_CountActiveForUser(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRoleRepository(mock, DefaultPartitions())

	mock.ExpectQuery(`SELECT count\(\*\) FROM spd\.user_roles ur JOIN spd\.roles r ON r\.id = ur\.role_id WHERE r\.is_active = \$1 AND ur\.user_id = \$2`).
		WithArgs(true, "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	count, err := repo.CountActiveForUser(context.Background(), domain.TenantSPD, "user-1")
	if err != nil {
		t.Fatalf("CountActiveForUser returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 active roles, got %d", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleRepository_ListGrantedPermissionsFiltersVisibility(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRoleRepository(mock, DefaultPartitions())

	rows := pgxmock.NewRows([]string{"path", "code"}).
		AddRow("/users", "READ").
		AddRow("/dashboard", "READ")

	mock.ExpectQuery(`SELECT DISTINCT m\.path, a\.code FROM spd\.user_roles ur .* WHERE ur\.user_id = \$1 AND m\.system IN \(\$2,\$3\) AND a\.system IN \(\$4,\$5\)`).
		WithArgs("user-1", "SPD", "PUBLIC", "SPD", "PUBLIC").
		WillReturnRows(rows)

	granted, err := repo.ListGrantedPermissions(context.Background(), domain.TenantSPD, "user-1")
	if err != nil {
		t.Fatalf("ListGrantedPermissions returned error: %v", err)
	}
	if len(granted) != 2 || granted[0].ModulePath != "/users" || granted[0].ActionCode != "READ" {
		t.Fatalf("unexpected grants: %+v", granted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleRepository_GetDefaultNotFound(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRoleRepository(mock, DefaultPartitions())

	mock.ExpectQuery(`SELECT .* FROM sis\.roles WHERE is_default = \$1 LIMIT 1`).
		WithArgs(true).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description", "is_active", "is_default", "created_at", "updated_at"}))

	if _, err := repo.GetDefault(context.Background(), domain.TenantSIS); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleRepository_ListByUser(t *testing.T) {
	mock := newMockPool(t)
	repo := NewRoleRepository(mock, DefaultPartitions())

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"id", "name", "description", "is_active", "is_default", "created_at", "updated_at"}).
		AddRow("role-1", "admin", "Administrators", true, false, now, now).
		AddRow("role-2", "viewer", nil, false, true, now, now)

	mock.ExpectQuery(`FROM spd\.roles r JOIN spd\.user_roles ur ON ur\.role_id = r\.id WHERE ur\.user_id = \$1`).
		WithArgs("user-1").
		WillReturnRows(rows)

	roles, err := repo.ListByUser(context.Background(), domain.TenantSPD, "user-1")
	if err != nil {
		t.Fatalf("ListByUser returned error: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("expected 2 roles, got %d", len(roles))
	}
	if roles[0].Description == nil || *roles[0].Description != "Administrators" {
		t.Fatalf("expected description populated")
	}
	if roles[1].Description != nil || roles[1].IsActive {
		t.Fatalf("unexpected second role: %+v", roles[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
