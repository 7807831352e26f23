package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/transport/http/middleware"
	"github.com/arklim/tenant-access/internal/usecase"
)

// CatalogAdmin is the slice of usecase.CatalogService the catalog endpoints call.
type CatalogAdmin interface {
	ListModules(ctx context.Context, tenant domain.Tenant) ([]domain.Module, error)
	CreateModule(ctx context.Context, tag domain.Tenant, actor domain.Actor, input usecase.CreateModuleInput) (*domain.Module, error)
	CreateAction(ctx context.Context, tag domain.Tenant, actor domain.Actor, input usecase.ActionInput) (*domain.Action, error)
	LinkPermission(ctx context.Context, tag domain.Tenant, actor domain.Actor, moduleID, actionID string) (*domain.Permission, error)
	UpdateAction(ctx context.Context, tenant domain.Tenant, actor domain.Actor, actionID string, input usecase.ActionInput) (*domain.Action, error)
	DeleteAction(ctx context.Context, tenant domain.Tenant, actor domain.Actor, actionID string) error
}

// CatalogHandler edits the catalog entries owned by the caller's tenant.
// Shared PUBLIC entries are provisioned with accessctl only.
type CatalogHandler struct {
	catalog CatalogAdmin
}

func NewCatalogHandler(catalog CatalogAdmin) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

var catalogCases = []ErrorCase{
	{Err: usecase.ErrImmutableEntity, Status: http.StatusForbidden, Message: "shared catalog entries cannot be changed"},
	{Err: domain.ErrConflict, Status: http.StatusConflict, Message: "catalog entry already exists"},
}

// ListModules returns the modules visible to the caller's tenant, PUBLIC ones included.
func (h *CatalogHandler) ListModules(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	modules, err := h.catalog.ListModules(c.Request.Context(), principal.Tenant)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to list modules")
		return
	}

	payload := make([]ModulePayload, 0, len(modules))
	for _, module := range modules {
		payload = append(payload, newModulePayload(module))
	}
	c.JSON(http.StatusOK, ModuleListResponse{Modules: payload})
}

func (h *CatalogHandler) CreateModule(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ModuleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid module payload"))
		return
	}

	module, err := h.catalog.CreateModule(c.Request.Context(), principal.Tenant, middleware.ActorFromContext(c), usecase.CreateModuleInput{
		Name:        req.Name,
		Path:        req.Path,
		Description: req.Description,
	})
	if err != nil {
		RespondWithMappedError(c, err, catalogCases, http.StatusInternalServerError, "failed to create module")
		return
	}

	c.JSON(http.StatusCreated, newModulePayload(*module))
}

func (h *CatalogHandler) CreateAction(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid action payload"))
		return
	}

	action, err := h.catalog.CreateAction(c.Request.Context(), principal.Tenant, middleware.ActorFromContext(c),
		usecase.ActionInput{Code: req.Code, Name: req.Name})
	if err != nil {
		RespondWithMappedError(c, err, catalogCases, http.StatusInternalServerError, "failed to create action")
		return
	}

	c.JSON(http.StatusCreated, newActionPayload(*action))
}

func (h *CatalogHandler) UpdateAction(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid action payload"))
		return
	}

	action, err := h.catalog.UpdateAction(c.Request.Context(), principal.Tenant, middleware.ActorFromContext(c), c.Param("id"),
		usecase.ActionInput{Code: req.Code, Name: req.Name})
	if err != nil {
		RespondWithMappedError(c, err, catalogCases, http.StatusInternalServerError, "failed to update action")
		return
	}

	c.JSON(http.StatusOK, newActionPayload(*action))
}

func (h *CatalogHandler) DeleteAction(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.catalog.DeleteAction(c.Request.Context(), principal.Tenant, middleware.ActorFromContext(c), c.Param("id")); err != nil {
		RespondWithMappedError(c, err, catalogCases, http.StatusInternalServerError, "failed to delete action")
		return
	}

	c.Status(http.StatusNoContent)
}

// LinkPermission declares that an action applies to a module. Both must be visible to the tenant.
func (h *CatalogHandler) LinkPermission(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req LinkPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid permission payload"))
		return
	}

	permission, err := h.catalog.LinkPermission(c.Request.Context(), principal.Tenant, middleware.ActorFromContext(c), req.ModuleID, req.ActionID)
	if err != nil {
		RespondWithMappedError(c, err, catalogCases, http.StatusInternalServerError, "failed to link permission")
		return
	}

	c.JSON(http.StatusCreated, PermissionPayload{ID: permission.ID, ModuleID: permission.ModuleID, ActionID: permission.ActionID})
}
