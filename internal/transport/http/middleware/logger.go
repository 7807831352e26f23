package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appLogger "github.com/arklim/tenant-access/internal/infra/logger"
)

// Logger emits one access log line per request with correlation identifiers and masked PII.
func Logger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		meta := GetRequestMeta(c)
		fields := []zap.Field{
			zap.String("trace_id", GetTraceID(c)),
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", appLogger.MaskIP(meta.IP)),
		}
		fields = append(fields, appLogger.ContextFields(c.Request.Context())...)

		if principal, ok := PrincipalFromContext(c); ok {
			fields = append(fields, zap.String("user_id", principal.UserID))
		}

		if meta.UserAgent != "" {
			fields = append(fields, zap.String("user_agent", meta.UserAgent))
		}

		switch {
		case len(c.Errors) > 0:
			log.Error("request failed", append(fields, zap.String("errors", c.Errors.String()))...)
		case c.Writer.Status() >= 500:
			log.Warn("request completed with server error", fields...)
		default:
			log.Info("request completed", fields...)
		}
	}
}
