package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/core/port"
	"github.com/arklim/tenant-access/internal/infra/ids"
)

// EnvelopeVersion is stamped on every envelope written to the outbox.
const EnvelopeVersion = "1"

// EventOutbox writes event envelopes through the caller's unit of work.
type EventOutbox struct {
	service     string
	environment string
	now         func() time.Time
}

// NewEventOutbox constructs an EventOutbox that tags envelopes with service and environment.
func NewEventOutbox(service, environment string) *EventOutbox {
	return &EventOutbox{service: service, environment: environment, now: time.Now}
}

// WithClock overrides the time source.
func (o *EventOutbox) WithClock(now func() time.Time) *EventOutbox {
	if now != nil {
		o.now = now
	}
	return o
}

// Enqueue serialises payload into an envelope and appends it with writer. It returns the envelope id.
func (o *EventOutbox) Enqueue(ctx context.Context, writer port.OutboxWriter, tenant domain.Tenant, eventName string, payload any, correlationID string) (string, error) {
	if err := tenant.Validate(); err != nil {
		return "", err
	}
	eventName = strings.TrimSpace(eventName)
	if eventName == "" {
		return "", invalidInput("event name is required")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", eventName, err)
	}

	now := o.now().UTC()
	id := ids.NewAt(now)

	metadata := map[string]string{
		"service":     o.service,
		"environment": o.environment,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	envelope, err := json.Marshal(domain.EventEnvelope{
		ID:            id,
		EventName:     eventName,
		Tenant:        tenant.String(),
		CorrelationID: correlationID,
		OccurredAt:    now,
		Version:       EnvelopeVersion,
		Payload:       body,
		Metadata:      metadata,
	})
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	if err := writer.Append(ctx, tenant, domain.OutboxMessage{
		ID:         id,
		Tenant:     tenant,
		EventName:  eventName,
		Payload:    envelope,
		OccurredAt: now,
	}); err != nil {
		return "", fmt.Errorf("append %s: %w", eventName, err)
	}
	return id, nil
}
