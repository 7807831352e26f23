package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/infra/logger"
)

const (
	// TraceIDHeader is the HTTP header name for trace ID
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the gin context key for trace ID
	TraceIDKey = "trace_id"

	requestMetaKey = "request_meta"
)

// RequestMeta holds request-scoped client information.
type RequestMeta struct {
	TraceID   string
	IP        string
	UserAgent string
}

// EnrichContext assigns a trace id to every request. An active OpenTelemetry span wins over the
// inbound header so log lines and spans share one id.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := ""
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		if traceID == "" {
			traceID = c.GetHeader(TraceIDHeader)
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)
		c.Set(requestMetaKey, &RequestMeta{
			TraceID:   traceID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})

		c.Next()
	}
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}

// GetRequestMeta returns the client metadata captured by EnrichContext.
func GetRequestMeta(c *gin.Context) *RequestMeta {
	if meta, ok := c.Get(requestMetaKey); ok {
		if m, ok := meta.(*RequestMeta); ok {
			return m
		}
	}
	return &RequestMeta{}
}

// ActorFromContext describes the caller of a mutation. Anonymous callers get an empty UserID.
// The request id doubles as the correlation id written to outbox envelopes.
func ActorFromContext(c *gin.Context) domain.Actor {
	actor := domain.Actor{CorrelationID: logger.RequestIDFromContext(c.Request.Context())}
	if principal, ok := PrincipalFromContext(c); ok {
		actor.UserID = principal.UserID
	}
	if actor.CorrelationID == "" {
		actor.CorrelationID = GetTraceID(c)
	}
	return actor
}
