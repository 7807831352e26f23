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

func TestOutboxRepository_Append(t *testing.T) {
	mock := newMockPool(t)
	repo := NewOutboxRepository(mock, DefaultPartitions())

	occurredAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := domain.OutboxMessage{
		ID:         "01J0000000000000000000000A",
		EventName:  domain.EventUserCreated,
		Payload:    []byte(`{"id":"01J0000000000000000000000A"}`),
		OccurredAt: occurredAt,
	}

	mock.ExpectExec(`INSERT INTO spd\.outbox_messages \(id,event_name,payload,occurred_at,attempts\)`).
		WithArgs(msg.ID, msg.EventName, msg.Payload, occurredAt, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Append(context.Background(), domain.TenantSPD, msg); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOutboxRepository_ListPending(t *testing.T) {
	mock := newMockPool(t)
	repo := NewOutboxRepository(mock, DefaultPartitions())

	occurredAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	lastError := "broker unavailable"
	rows := pgxmock.NewRows([]string{"id", "event_name", "payload", "occurred_at", "processed_at", "attempts", "last_error"}).
		AddRow("m-1", domain.EventRoleCreated, []byte(`{}`), occurredAt, nil, 2, lastError).
		AddRow("m-2", domain.EventUserCreated, []byte(`{}`), occurredAt, nil, 0, nil)

	mock.ExpectQuery(`SELECT .* FROM sis\.outbox_messages WHERE processed_at IS NULL ORDER BY occurred_at ASC, id ASC LIMIT 50`).
		WillReturnRows(rows)

	messages, err := repo.ListPending(context.Background(), domain.TenantSIS, 50)
	if err != nil {
		t.Fatalf("ListPending returned error: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Attempts != 2 || messages[0].LastError == nil || *messages[0].LastError != lastError {
		t.Fatalf("unexpected retry bookkeeping: %+v", messages[0])
	}
	if messages[1].LastError != nil {
		t.Fatalf("expected nil last error, got %v", *messages[1].LastError)
	}
	if !messages[1].Pending() || messages[1].Tenant != domain.TenantSIS {
		t.Fatalf("expected pending SIS message, got %+v", messages[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOutboxRepository_MarkFailedIncrementsAttempts(t *testing.T) {
	mock := newMockPool(t)
	repo := NewOutboxRepository(mock, DefaultPartitions())

	mock.ExpectExec(`UPDATE spd\.outbox_messages SET attempts = attempts \+ 1, last_error = \$1 WHERE id = \$2`).
		WithArgs("timeout", "m-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.MarkFailed(context.Background(), domain.TenantSPD, "m-1", "timeout"); err != nil {
		t.Fatalf("MarkFailed returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOutboxRepository_MarkProcessedOnlyPending(t *testing.T) {
	mock := newMockPool(t)
	repo := NewOutboxRepository(mock, DefaultPartitions())

	at := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE spd\.outbox_messages SET processed_at = \$1 WHERE id = \$2 AND processed_at IS NULL`).
		WithArgs(at, "m-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.MarkProcessed(context.Background(), domain.TenantSPD, "m-1", at)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
