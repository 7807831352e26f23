package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/arklim/tenant-access/internal/infra/config"
)

// Provider represents a telemetry provider handle.
type Provider struct {
	tracer *TracerProvider
}

// Attach configures tracing when an OTLP endpoint is set. Metrics use the default Prometheus registry.
func Attach(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	if strings.TrimSpace(cfg.Telemetry.OTLPEndpoint) == "" {
		log.Info("otlp endpoint not configured, tracing disabled")
		return &Provider{}, nil
	}

	tp, err := NewTracerProvider(ctx, cfg.App.Env, cfg.Telemetry, log)
	if err != nil {
		return nil, err
	}
	return &Provider{tracer: tp}, nil
}

// Shutdown flushes pending spans, if tracing is enabled.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tracer == nil {
		return nil
	}
	return p.tracer.Shutdown(ctx)
}
