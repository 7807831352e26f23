package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/core/port"
)

const defaultOutboxBatchSize = 100

// SweepResult counts the outcomes of one publisher pass.
type SweepResult struct {
	Delivered int
	Failed    int
}

// OutboxPublisher drains pending envelopes of every login tenant into a channel.
// Failed deliveries stay pending and are retried on the next sweep.
type OutboxPublisher struct {
	repo      port.OutboxRepository
	channel   port.OutboxChannel
	metrics   port.OutboxMetrics
	tenants   []domain.Tenant
	batchSize int
	logger    *zap.Logger
	now       func() time.Time
}

// NewOutboxPublisher constructs an OutboxPublisher. A nil metrics recorder disables metrics.
func NewOutboxPublisher(repo port.OutboxRepository, channel port.OutboxChannel, metrics port.OutboxMetrics, batchSize int, logger *zap.Logger) *OutboxPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopOutboxMetrics{}
	}
	if batchSize <= 0 {
		batchSize = defaultOutboxBatchSize
	}
	return &OutboxPublisher{
		repo:      repo,
		channel:   channel,
		metrics:   metrics,
		tenants:   domain.LoginTenants(),
		batchSize: batchSize,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the time source used for processed_at stamps.
func (p *OutboxPublisher) WithClock(now func() time.Time) *OutboxPublisher {
	if now != nil {
		p.now = now
	}
	return p
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
func (p *OutboxPublisher) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("outbox publisher started", zap.Duration("interval", interval), zap.Int("batch_size", p.batchSize))
	for {
		p.SweepOnce(ctx)

		select {
		case <-ctx.Done():
			p.logger.Info("outbox publisher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce visits the tenants sequentially. A failing tenant or envelope never stops the pass.
func (p *OutboxPublisher) SweepOnce(ctx context.Context) SweepResult {
	started := p.now()
	var result SweepResult

	for _, tenant := range p.tenants {
		if ctx.Err() != nil {
			break
		}
		delivered, failed := p.sweepTenant(ctx, tenant)
		result.Delivered += delivered
		result.Failed += failed
	}

	p.metrics.ObserveSweep(p.now().Sub(started))
	if result.Delivered > 0 || result.Failed > 0 {
		p.logger.Info("outbox sweep finished",
			zap.Int("delivered", result.Delivered),
			zap.Int("failed", result.Failed),
		)
	}
	return result
}

func (p *OutboxPublisher) sweepTenant(ctx context.Context, tenant domain.Tenant) (delivered, failed int) {
	log := p.logger.With(zap.String("tenant", tenant.String()))

	messages, err := p.repo.ListPending(ctx, tenant, p.batchSize)
	if err != nil {
		log.Error("list pending outbox messages failed", zap.Error(err))
		return 0, 0
	}

	for _, message := range messages {
		if message.Tenant == "" {
			message.Tenant = tenant
		}

		if err := p.channel.Publish(ctx, message); err != nil {
			failed++
			p.metrics.Failed(tenant)
			log.Warn("outbox delivery failed",
				zap.String("message_id", message.ID),
				zap.String("event", message.EventName),
				zap.Int("attempts", message.Attempts+1),
				zap.Error(err),
			)
			if markErr := p.repo.MarkFailed(ctx, tenant, message.ID, err.Error()); markErr != nil {
				log.Error("record outbox failure", zap.String("message_id", message.ID), zap.Error(markErr))
			}
			continue
		}

		delivered++
		p.metrics.Delivered(tenant)
		if err := p.repo.MarkProcessed(ctx, tenant, message.ID, p.now().UTC()); err != nil {
			// delivered but still pending: the next sweep publishes it again
			log.Error("mark outbox message processed", zap.String("message_id", message.ID), zap.Error(err))
		}
	}
	return delivered, failed
}

type noopOutboxMetrics struct{}

func (noopOutboxMetrics) Delivered(domain.Tenant) {}

func (noopOutboxMetrics) Failed(domain.Tenant) {}

func (noopOutboxMetrics) ObserveSweep(time.Duration) {}
