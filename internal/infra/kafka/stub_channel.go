package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/core/port"
)

// StubChannel logs envelopes instead of sending them to Kafka. Useful for development environments.
type StubChannel struct {
	logger *zap.Logger
}

// NewStubChannel constructs a development-friendly outbox channel.
func NewStubChannel(logger *zap.Logger) *StubChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubChannel{logger: logger}
}

func (c *StubChannel) Publish(_ context.Context, message domain.OutboxMessage) error {
	c.logger.Info("Stub outbox message published",
		zap.String("id", message.ID),
		zap.String("tenant", message.Tenant.String()),
		zap.String("event_name", message.EventName),
		zap.Time("occurred_at", message.OccurredAt),
		zap.ByteString("payload", message.Payload),
	)
	return nil
}

var _ port.OutboxChannel = (*StubChannel)(nil)
