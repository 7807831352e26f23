package domain

import (
	"encoding/json"
	"time"
)

// Event names recorded in the outbox.
const (
	EventUserCreated            = "user.created"
	EventUserEmailVerified      = "user.email_verified"
	EventUserDeactivated        = "user.deactivated"
	EventUserRoleAssigned       = "user.role.assigned"
	EventUserRoleRemoved        = "user.role.removed"
	EventRoleCreated            = "role.created"
	EventRoleDefaultChanged     = "role.default.changed"
	EventRoleStatusChanged      = "role.status.changed"
	EventRolePermissionsChanged = "role.permissions.changed"
)

// OutboxMessage is a durable event envelope waiting for delivery.
type OutboxMessage struct {
	ID          string
	Tenant      Tenant
	EventName   string
	Payload     []byte
	OccurredAt  time.Time
	ProcessedAt *time.Time
	Attempts    int
	LastError   *string
}

// Pending reports whether the message still awaits delivery.
func (m OutboxMessage) Pending() bool {
	return m.ProcessedAt == nil
}

// EventEnvelope is the JSON document stored in OutboxMessage.Payload and delivered to consumers.
type EventEnvelope struct {
	ID            string            `json:"id"`
	EventName     string            `json:"event_name"`
	Tenant        string            `json:"tenant"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Version       string            `json:"version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// AuditEntry records a security-relevant mutation.
type AuditEntry struct {
	Action     string
	EntityType string
	EntityID   string
	Tenant     Tenant
	ActorID    string
	Success    bool
	Details    map[string]any
	At         time.Time
}
