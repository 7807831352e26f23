package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingOptions customises the server span middleware.
type TracingOptions struct {
	Service        string
	TracerProvider trace.TracerProvider
	Propagators    propagation.TextMapPropagator
	// SkipPaths are served without a span (probes and scrapes).
	SkipPaths []string
}

// Tracing starts a server span per request. It must run before EnrichContext so the trace id is shared.
func Tracing(opts TracingOptions) gin.HandlerFunc {
	service := opts.Service
	if service == "" {
		service = "tenant-access"
	}

	options := make([]otelgin.Option, 0, 3)
	if opts.TracerProvider != nil {
		options = append(options, otelgin.WithTracerProvider(opts.TracerProvider))
	}
	if opts.Propagators != nil {
		options = append(options, otelgin.WithPropagators(opts.Propagators))
	}
	if len(opts.SkipPaths) > 0 {
		skip := make(map[string]struct{}, len(opts.SkipPaths))
		for _, p := range opts.SkipPaths {
			skip[p] = struct{}{}
		}
		options = append(options, otelgin.WithFilter(func(r *http.Request) bool {
			_, skipped := skip[r.URL.Path]
			return !skipped
		}))
	}

	return otelgin.Middleware(service, options...)
}
