package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/transport/http/middleware"
	"github.com/arklim/tenant-access/internal/usecase"
)

// RoleAdmin is the slice of usecase.RoleService the role endpoints call.
type RoleAdmin interface {
	CreateRole(ctx context.Context, tenant domain.Tenant, actor domain.Actor, input usecase.CreateRoleInput) (*domain.Role, error)
	SetDefaultRole(ctx context.Context, tenant domain.Tenant, actor domain.Actor, roleID string) error
	SetRoleActive(ctx context.Context, tenant domain.Tenant, actor domain.Actor, roleID string, active bool) error
	GrantPermissions(ctx context.Context, tenant domain.Tenant, actor domain.Actor, roleID string, permissionIDs []string) (int, error)
	RevokePermissions(ctx context.Context, tenant domain.Tenant, actor domain.Actor, roleID string, permissionIDs []string) (int, error)
	AssignRole(ctx context.Context, tenant domain.Tenant, actor domain.Actor, userID, roleID string) error
	RemoveRole(ctx context.Context, tenant domain.Tenant, actor domain.Actor, userID, roleID string) error
	ListUserRoles(ctx context.Context, tenant domain.Tenant, userID string) ([]domain.Role, error)
}

// RoleHandler manages roles of the caller's tenant. Every route runs behind RequireAuth.
type RoleHandler struct {
	roles RoleAdmin
}

func NewRoleHandler(roles RoleAdmin) *RoleHandler {
	return &RoleHandler{roles: roles}
}

var roleCases = []ErrorCase{
	{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
	{Err: domain.ErrNotFound, Status: http.StatusNotFound, Message: "permission not found in tenant catalog"},
	{Err: domain.ErrConflict, Status: http.StatusConflict, Message: "role conflicts with an existing role or the default role"},
}

// CreateRole adds a role, optionally as the new default, with initial grants.
func (h *RoleHandler) CreateRole(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req RoleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role payload"))
		return
	}

	role, err := h.roles.CreateRole(c.Request.Context(), principal.Tenant, middleware.ActorFromContext(c), usecase.CreateRoleInput{
		Name:          req.Name,
		Description:   req.Description,
		IsDefault:     req.IsDefault,
		PermissionIDs: req.PermissionIDs,
	})
	if err != nil {
		RespondWithMappedError(c, err, roleCases, http.StatusInternalServerError, "failed to create role")
		return
	}

	c.JSON(http.StatusCreated, newRolePayload(*role))
}

// SetDefault makes the role the one assigned at registration.
func (h *RoleHandler) SetDefault(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	err := h.roles.SetDefaultRole(c.Request.Context(), principal.Tenant, middleware.ActorFromContext(c), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, roleCases, http.StatusInternalServerError, "failed to change default role")
		return
	}

	c.Status(http.StatusNoContent)
}

// SetActive enables or disables a role.
func (h *RoleHandler) SetActive(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req RoleActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role status payload"))
		return
	}

	err := h.roles.SetRoleActive(c.Request.Context(), principal.Tenant, middleware.ActorFromContext(c), c.Param("id"), *req.Active)
	if err != nil {
		RespondWithMappedError(c, err, roleCases, http.StatusInternalServerError, "failed to change role status")
		return
	}

	c.Status(http.StatusNoContent)
}

// GrantPermissions adds catalog permissions to the role.
func (h *RoleHandler) GrantPermissions(c *gin.Context) {
	h.changePermissions(c, h.roles.GrantPermissions)
}

// RevokePermissions removes catalog permissions from the role.
func (h *RoleHandler) RevokePermissions(c *gin.Context) {
	h.changePermissions(c, h.roles.RevokePermissions)
}

type permissionChange func(ctx context.Context, tenant domain.Tenant, actor domain.Actor, roleID string, permissionIDs []string) (int, error)

func (h *RoleHandler) changePermissions(c *gin.Context, change permissionChange) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PermissionIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid permission payload"))
		return
	}

	roleID := c.Param("id")
	affected, err := change(c.Request.Context(), principal.Tenant, middleware.ActorFromContext(c), roleID, req.PermissionIDs)
	if err != nil {
		RespondWithMappedError(c, err, roleCases, http.StatusInternalServerError, "failed to change role permissions")
		return
	}

	c.JSON(http.StatusOK, PermissionChangeResponse{RoleID: roleID, Affected: affected})
}
