package port

import (
	"context"
	"time"

	"github.com/arklim/tenant-access/internal/core/domain"
)

// OutboxWriter appends envelopes inside the caller's unit of work.
type OutboxWriter interface {
	Append(ctx context.Context, tenant domain.Tenant, message domain.OutboxMessage) error
}

// OutboxRepository is the publisher's view of a tenant's outbox table.
type OutboxRepository interface {
	ListPending(ctx context.Context, tenant domain.Tenant, limit int) ([]domain.OutboxMessage, error)
	MarkProcessed(ctx context.Context, tenant domain.Tenant, id string, at time.Time) error
	MarkFailed(ctx context.Context, tenant domain.Tenant, id string, reason string) error
}

// OutboxChannel delivers an envelope to downstream consumers.
type OutboxChannel interface {
	Publish(ctx context.Context, message domain.OutboxMessage) error
}

// OutboxMetrics records publisher outcomes.
type OutboxMetrics interface {
	Delivered(tenant domain.Tenant)
	Failed(tenant domain.Tenant)
	ObserveSweep(duration time.Duration)
}

// AuditSink records security-relevant mutations.
type AuditSink interface {
	Record(ctx context.Context, entry domain.AuditEntry) error
}
