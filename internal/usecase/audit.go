package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/core/port"
)

// auditRecorder forwards entries to the sink and only logs failures.
type auditRecorder struct {
	sink   port.AuditSink
	logger *zap.Logger
	now    func() time.Time
}

func newAuditRecorder(sink port.AuditSink, logger *zap.Logger) auditRecorder {
	return auditRecorder{sink: sink, logger: logger, now: time.Now}
}

func (a auditRecorder) record(ctx context.Context, entry domain.AuditEntry) {
	if a.sink == nil {
		return
	}
	if entry.At.IsZero() {
		entry.At = a.now().UTC()
	}
	if err := a.sink.Record(ctx, entry); err != nil {
		a.logger.Warn("audit record failed",
			zap.String("action", entry.Action),
			zap.String("entity_id", entry.EntityID),
			zap.Error(err),
		)
	}
}
