package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arklim/tenant-access/internal/core/domain"
)

// CatalogSchema holds modules, actions and permissions shared by every tenant.
const CatalogSchema = "access"

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var schemaPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Partitions maps each login tenant to the schema holding its tables.
type Partitions struct {
	schemas map[domain.Tenant]string
}

// DefaultPartitions returns the lower-cased tenant name as schema for every login tenant.
func DefaultPartitions() Partitions {
	schemas := make(map[domain.Tenant]string)
	for _, tenant := range domain.LoginTenants() {
		schemas[tenant] = strings.ToLower(string(tenant))
	}
	return Partitions{schemas: schemas}
}

// NewPartitions validates that every login tenant has a well-formed schema.
func NewPartitions(schemas map[domain.Tenant]string) (Partitions, error) {
	out := make(map[domain.Tenant]string, len(schemas))
	for _, tenant := range domain.LoginTenants() {
		schema := strings.TrimSpace(schemas[tenant])
		if schema == "" {
			return Partitions{}, fmt.Errorf("postgres: no schema configured for tenant %s", tenant)
		}
		if !schemaPattern.MatchString(schema) || schema == CatalogSchema {
			return Partitions{}, fmt.Errorf("postgres: invalid schema %q for tenant %s", schema, tenant)
		}
		out[tenant] = schema
	}
	return Partitions{schemas: out}, nil
}

// Table returns the qualified table name for tenant.
func (p Partitions) Table(tenant domain.Tenant, name string) (string, error) {
	if err := tenant.Validate(); err != nil {
		return "", err
	}
	schema, ok := p.schemas[tenant]
	if !ok {
		return "", fmt.Errorf("%w: no partition for %s", domain.ErrInvalidTenant, tenant)
	}
	return schema + "." + name, nil
}

func catalogTable(name string) string {
	return CatalogSchema + "." + name
}

func newBuilder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func optionalString(value *string) any {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}

func nullableStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func nullableTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}
