package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/core/port"
	"github.com/arklim/tenant-access/internal/infra/logger"
)

// ZapSink writes audit entries as structured log lines on a dedicated named logger.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink constructs an audit sink. A nil logger discards entries.
func NewZapSink(log *zap.Logger) *ZapSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapSink{logger: log.Named("audit")}
}

func (s *ZapSink) Record(ctx context.Context, entry domain.AuditEntry) error {
	fields := []zap.Field{
		zap.String("action", entry.Action),
		zap.String("entity_type", entry.EntityType),
		zap.String("entity_id", entry.EntityID),
		zap.String("tenant", entry.Tenant.String()),
		zap.String("actor_id", entry.ActorID),
		zap.Bool("success", entry.Success),
		zap.Time("at", entry.At),
	}
	if id := logger.RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if len(entry.Details) > 0 {
		fields = append(fields, zap.Any("details", entry.Details))
	}

	if entry.Success {
		s.logger.Info("audit", fields...)
	} else {
		s.logger.Warn("audit", fields...)
	}
	return nil
}

var _ port.AuditSink = (*ZapSink)(nil)
