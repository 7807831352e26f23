package telemetry

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/core/port"
)

// OutboxMetrics counts relay outcomes per tenant and times each sweep.
type OutboxMetrics struct {
	delivered *prometheus.CounterVec
	failed    *prometheus.CounterVec
	sweeps    prometheus.Histogram
}

// NewOutboxMetrics registers the relay collectors with reg, reusing collectors already registered.
func NewOutboxMetrics(reg prometheus.Registerer) (*OutboxMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	delivered, err := registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "access",
		Subsystem: "outbox",
		Name:      "delivered_total",
		Help:      "Outbox messages handed to the channel and marked processed.",
	}, []string{"tenant"}))
	if err != nil {
		return nil, err
	}

	failed, err := registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "access",
		Subsystem: "outbox",
		Name:      "failed_total",
		Help:      "Outbox delivery attempts that failed and were left pending.",
	}, []string{"tenant"}))
	if err != nil {
		return nil, err
	}

	sweeps, err := registerCollector(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "access",
		Subsystem: "outbox",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of a full sweep across every tenant.",
		Buckets:   prometheus.DefBuckets,
	}))
	if err != nil {
		return nil, err
	}

	return &OutboxMetrics{delivered: delivered, failed: failed, sweeps: sweeps}, nil
}

func (m *OutboxMetrics) Delivered(tenant domain.Tenant) {
	m.delivered.WithLabelValues(tenant.String()).Inc()
}

func (m *OutboxMetrics) Failed(tenant domain.Tenant) {
	m.failed.WithLabelValues(tenant.String()).Inc()
}

func (m *OutboxMetrics) ObserveSweep(duration time.Duration) {
	m.sweeps.Observe(duration.Seconds())
}

func registerCollector[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
			return collector, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return collector, fmt.Errorf("register collector: %w", err)
	}
	return collector, nil
}

var _ port.OutboxMetrics = (*OutboxMetrics)(nil)
