package database

import (
	"context"
	"fmt"
	"sort"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/tenant-access/internal/infra/config"
)

// NewPostgresPool opens the shared pool. Tables are always schema-qualified, so no search_path is set.
func NewPostgresPool(ctx context.Context, cfg config.PostgresSettings, log *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pgx pool config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.Info("connected to postgres",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.Int32("max_conns", poolConfig.MaxConns),
	)

	return pool, nil
}

type schemaQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// EnsureSchemas fails when any tenant schema or the shared access schema is missing,
// which means migrations have not been applied yet.
func EnsureSchemas(ctx context.Context, db schemaQuerier, schemas ...string) error {
	want := make(map[string]struct{}, len(schemas))
	for _, schema := range schemas {
		want[schema] = struct{}{}
	}
	names := make([]string, 0, len(want))
	for schema := range want {
		names = append(names, schema)
	}
	sort.Strings(names)

	stmt, args, err := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("schema_name").
		From("information_schema.schemata").
		Where(squirrel.Eq{"schema_name": names}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build schema lookup: %w", err)
	}

	rows, err := db.Query(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("lookup schemas: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("scan schemas: %w", err)
	}
	for _, schema := range found {
		delete(want, schema)
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for schema := range want {
			missing = append(missing, schema)
		}
		sort.Strings(missing)
		return fmt.Errorf("schemas %v missing, run accessctl migrate up", missing)
	}
	return nil
}
