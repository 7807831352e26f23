package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/transport/http/middleware"
	"github.com/arklim/tenant-access/internal/usecase"
)

// AccountAdmin is the account lifecycle slice of usecase.AuthService.
type AccountAdmin interface {
	DeactivateUser(ctx context.Context, tenant domain.Tenant, actor domain.Actor, userID string) error
}

// UserHandler administers users of the caller's tenant.
type UserHandler struct {
	accounts AccountAdmin
	roles    RoleAdmin
}

func NewUserHandler(accounts AccountAdmin, roles RoleAdmin) *UserHandler {
	return &UserHandler{accounts: accounts, roles: roles}
}

var userCases = []ErrorCase{
	{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
	{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
	{Err: usecase.ErrLastRole, Status: http.StatusConflict, Message: "user must keep at least one role"},
	{Err: usecase.ErrRoleAlreadyAssigned, Status: http.StatusConflict, Message: "role already assigned"},
}

// ListRoles returns every role assigned to the user, active or not.
func (h *UserHandler) ListRoles(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	roles, err := h.roles.ListUserRoles(c.Request.Context(), principal.Tenant, c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, userCases, http.StatusInternalServerError, "failed to list user roles")
		return
	}

	payload := make([]RolePayload, 0, len(roles))
	for _, role := range roles {
		payload = append(payload, newRolePayload(role))
	}
	c.JSON(http.StatusOK, RoleListResponse{Roles: payload})
}

// AssignRole gives the user one more role.
func (h *UserHandler) AssignRole(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req RoleAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role assignment payload"))
		return
	}

	err := h.roles.AssignRole(c.Request.Context(), principal.Tenant, middleware.ActorFromContext(c), c.Param("id"), req.RoleID)
	if err != nil {
		RespondWithMappedError(c, err, userCases, http.StatusInternalServerError, "failed to assign role")
		return
	}

	c.Status(http.StatusNoContent)
}

// RemoveRole takes a role away, refusing to remove the user's last one.
func (h *UserHandler) RemoveRole(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	err := h.roles.RemoveRole(c.Request.Context(), principal.Tenant, middleware.ActorFromContext(c), c.Param("id"), c.Param("roleId"))
	if err != nil {
		RespondWithMappedError(c, err, userCases, http.StatusInternalServerError, "failed to remove role")
		return
	}

	c.Status(http.StatusNoContent)
}

// Deactivate disables the account and ends its sessions.
func (h *UserHandler) Deactivate(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	userID := c.Param("id")
	if userID == principal.UserID {
		c.JSON(http.StatusConflict, NewErrorResponse(c, "cannot deactivate your own account"))
		return
	}

	if err := h.accounts.DeactivateUser(c.Request.Context(), principal.Tenant, middleware.ActorFromContext(c), userID); err != nil {
		RespondWithMappedError(c, err, userCases, http.StatusInternalServerError, "failed to deactivate user")
		return
	}

	c.Status(http.StatusNoContent)
}
