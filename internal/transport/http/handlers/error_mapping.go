package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/tenant-access/internal/core/domain"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// domainCases translate the shared error kinds. Handlers list narrower cases first.
var domainCases = []ErrorCase{
	{Err: domain.ErrInvalidTenant, Status: http.StatusBadRequest, Message: "unknown tenant"},
	{Err: domain.ErrInvalidInput, Status: http.StatusBadRequest, Message: "invalid request"},
	{Err: domain.ErrRefreshTokenRevoked, Status: http.StatusUnauthorized, Message: "refresh token revoked"},
	{Err: domain.ErrSessionExpired, Status: http.StatusUnauthorized, Message: "session expired, refresh required"},
	{Err: domain.ErrUnauthorized, Status: http.StatusUnauthorized, Message: "unauthorized"},
	{Err: domain.ErrForbidden, Status: http.StatusForbidden, Message: "forbidden"},
	{Err: domain.ErrNotFound, Status: http.StatusNotFound, Message: "not found"},
	{Err: domain.ErrConflict, Status: http.StatusConflict, Message: "conflict"},
}

// RespondWithMappedError resolves err against cases, then the shared domain kinds, and falls
// back to a generic response. Unmapped errors are attached to the gin context for the access log.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, group := range [][]ErrorCase{cases, domainCases} {
		for _, cs := range group {
			if cs.Err == nil || !errors.Is(err, cs.Err) {
				continue
			}
			msg := cs.Message
			// validation details are safe to echo back
			if cs.Err == domain.ErrInvalidInput {
				msg = err.Error()
			}
			c.JSON(cs.Status, NewErrorResponse(c, msg))
			return
		}
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}
