package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/infra/logger"
	"github.com/arklim/tenant-access/internal/usecase"
)

const principalKey = "principal"

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// TokenVerifier turns a bearer access token into the caller principal.
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, raw string) (domain.Principal, error)
}

// PermissionChecker answers whether a principal may perform an action on a module.
type PermissionChecker interface {
	Authorize(ctx context.Context, principal domain.Principal, modulePath, actionCode string) error
}

// RequireAuth validates the Authorization header and stores the principal for later handlers.
// The tenant is also copied onto the request context so service logs carry it.
func RequireAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, msg := bearerToken(c.GetHeader("Authorization"))
		if msg != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, msg))
			return
		}

		principal, err := verifier.VerifyAccessToken(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrExpiredToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "access token expired"))
			case errors.Is(err, domain.ErrUnauthorized):
				c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "invalid access token"))
			default:
				_ = c.Error(err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse(c, "authentication failed"))
			}
			return
		}

		c.Set(principalKey, principal)
		ctx := context.WithValue(c.Request.Context(), logger.TenantKey{}, principal.Tenant.String())
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func bearerToken(header string) (string, string) {
	if header == "" {
		return "", "missing authorization header"
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "invalid authorization format: expected 'Bearer <token>'"
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", "missing access token"
	}
	return token, ""
}

// RequirePermission gates a route on one (module, action) cell of the caller's matrix.
// It must be mounted after RequireAuth.
func RequirePermission(checker PermissionChecker, metrics *HTTPMetrics, modulePath, actionCode string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "authentication required"))
			return
		}

		err := checker.Authorize(c.Request.Context(), principal, modulePath, actionCode)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, usecase.ErrNoActiveRole):
			metrics.observeDenied(principal.Tenant.String(), modulePath)
			c.AbortWithStatusJSON(http.StatusForbidden, newErrorResponse(c, "no active role"))
		case errors.Is(err, domain.ErrForbidden):
			metrics.observeDenied(principal.Tenant.String(), modulePath)
			c.AbortWithStatusJSON(http.StatusForbidden, newErrorResponse(c, "insufficient permissions"))
		case errors.Is(err, domain.ErrSessionExpired):
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "session expired, refresh required"))
		case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrInvalidTenant):
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "authentication required"))
		default:
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse(c, "authorization check failed"))
		}
	}
}

// PrincipalFromContext returns the principal stored by RequireAuth.
func PrincipalFromContext(c *gin.Context) (domain.Principal, bool) {
	val, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	principal, ok := val.(domain.Principal)
	return principal, ok
}
