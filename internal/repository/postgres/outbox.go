package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/core/port"
	"github.com/arklim/tenant-access/internal/repository"
)

// OutboxRepository stores event envelopes in per-tenant outbox_messages tables.
type OutboxRepository struct {
	exec       pgExecutor
	partitions Partitions
	builder    squirrel.StatementBuilderType
}

// NewOutboxRepository constructs an outbox repository.
func NewOutboxRepository(exec pgExecutor, partitions Partitions) *OutboxRepository {
	return &OutboxRepository{exec: exec, partitions: partitions, builder: newBuilder()}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *OutboxRepository) WithTx(tx pgx.Tx) *OutboxRepository {
	if tx == nil {
		return r
	}
	return &OutboxRepository{exec: tx, partitions: r.partitions, builder: r.builder}
}

// Append inserts a pending envelope.
func (r *OutboxRepository) Append(ctx context.Context, tenant domain.Tenant, message domain.OutboxMessage) error {
	table, err := r.partitions.Table(tenant, "outbox_messages")
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Insert(table).
		Columns("id", "event_name", "payload", "occurred_at", "attempts").
		Values(message.ID, message.EventName, message.Payload, message.OccurredAt.UTC(), 0).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert outbox sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert outbox message: %w", repository.MapWriteError(err))
	}
	return nil
}

// ListPending returns unprocessed envelopes ordered by occurrence.
func (r *OutboxRepository) ListPending(ctx context.Context, tenant domain.Tenant, limit int) ([]domain.OutboxMessage, error) {
	table, err := r.partitions.Table(tenant, "outbox_messages")
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	stmt, args, err := r.builder.Select("id", "event_name", "payload", "occurred_at", "processed_at", "attempts", "last_error").
		From(table).
		Where(squirrel.Eq{"processed_at": nil}).
		OrderBy("occurred_at ASC", "id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list pending outbox sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox: %w", err)
	}
	defer rows.Close()

	messages := make([]domain.OutboxMessage, 0)
	for rows.Next() {
		var (
			msg         = domain.OutboxMessage{Tenant: tenant}
			processedAt sql.NullTime
			lastError   sql.NullString
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.EventName,
			&msg.Payload,
			&msg.OccurredAt,
			&processedAt,
			&msg.Attempts,
			&lastError,
		); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		msg.ProcessedAt = nullableTimePtr(processedAt)
		msg.LastError = nullableStringPtr(lastError)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox messages: %w", err)
	}

	return messages, nil
}

// MarkProcessed stamps processed_at on a still-pending envelope.
func (r *OutboxRepository) MarkProcessed(ctx context.Context, tenant domain.Tenant, id string, at time.Time) error {
	table, err := r.partitions.Table(tenant, "outbox_messages")
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Update(table).
		Set("processed_at", at.UTC()).
		Where(squirrel.Eq{"id": id, "processed_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark outbox processed sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("mark outbox processed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkFailed increments attempts and records the delivery error.
func (r *OutboxRepository) MarkFailed(ctx context.Context, tenant domain.Tenant, id string, reason string) error {
	table, err := r.partitions.Table(tenant, "outbox_messages")
	if err != nil {
		return err
	}

	stmt, args, err := r.builder.Update(table).
		Set("attempts", squirrel.Expr("attempts + 1")).
		Set("last_error", reason).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark outbox failed sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var (
	_ port.OutboxWriter     = (*OutboxRepository)(nil)
	_ port.OutboxRepository = (*OutboxRepository)(nil)
)
