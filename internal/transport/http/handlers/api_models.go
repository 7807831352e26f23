package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/transport/http/middleware"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: middleware.GetTraceID(c),
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// RegisterRequest defines the account registration payload.
type RegisterRequest struct {
	Tenant         string `json:"tenant" binding:"required"`
	Email          string `json:"email" binding:"required"`
	DocumentNumber string `json:"document_number" binding:"required"`
	FullName       string `json:"full_name" binding:"required"`
	Password       string `json:"password" binding:"required"`
}

// VerifyEmailRequest confirms the code sent after registration.
type VerifyEmailRequest struct {
	Tenant string `json:"tenant" binding:"required"`
	Email  string `json:"email" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Tenant   string `json:"tenant" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest carries the refresh token to rotate.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest optionally names the refresh token to revoke. Without one every session ends.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AuthorizeRequest asks whether the caller may perform action on module.
type AuthorizeRequest struct {
	Module string `json:"module" binding:"required"`
	Action string `json:"action" binding:"required"`
}

// AuthorizeResponse answers an AuthorizeRequest.
type AuthorizeResponse struct {
	Allowed bool `json:"allowed"`
}

// UserPayload is the public view of a user.
type UserPayload struct {
	ID             string    `json:"id"`
	Tenant         string    `json:"tenant"`
	Email          string    `json:"email"`
	DocumentNumber string    `json:"document_number"`
	FullName       string    `json:"full_name"`
	IsActive       bool      `json:"is_active"`
	EmailVerified  bool      `json:"email_verified"`
	CreatedAt      time.Time `json:"created_at"`
}

// PrincipalPayload describes the authenticated caller.
type PrincipalPayload struct {
	UserID    string   `json:"user_id"`
	Name      string   `json:"name,omitempty"`
	Tenant    string   `json:"tenant"`
	Roles     []string `json:"roles"`
	SessionID string   `json:"session_id,omitempty"`
}

// PermissionsResponse wraps the caller's matrix.
type PermissionsResponse struct {
	Tenant      string                  `json:"tenant"`
	Permissions domain.PermissionMatrix `json:"permissions"`
}

// RoleCreateRequest defines the payload for creating a role.
type RoleCreateRequest struct {
	Name          string   `json:"name" binding:"required"`
	Description   *string  `json:"description,omitempty"`
	IsDefault     bool     `json:"is_default"`
	PermissionIDs []string `json:"permission_ids"`
}

// RoleActiveRequest toggles a role.
type RoleActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// PermissionIDsRequest lists catalog permission ids to grant or revoke.
type PermissionIDsRequest struct {
	PermissionIDs []string `json:"permission_ids" binding:"required,min=1"`
}

// PermissionChangeResponse reports how many grants changed.
type PermissionChangeResponse struct {
	RoleID   string `json:"role_id"`
	Affected int    `json:"affected"`
}

// RolePayload summarizes a role entity.
type RolePayload struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoleListResponse wraps multiple roles.
type RoleListResponse struct {
	Roles []RolePayload `json:"roles"`
}

// RoleAssignmentRequest assigns a role to a user.
type RoleAssignmentRequest struct {
	RoleID string `json:"role_id" binding:"required"`
}

// ModuleCreateRequest registers a module owned by the caller's tenant.
type ModuleCreateRequest struct {
	Name        string  `json:"name" binding:"required"`
	Path        string  `json:"path" binding:"required"`
	Description *string `json:"description,omitempty"`
}

// ModulePayload is the public view of a module.
type ModulePayload struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	System      string    `json:"system"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ModuleListResponse wraps the visible modules.
type ModuleListResponse struct {
	Modules []ModulePayload `json:"modules"`
}

// ActionRequest creates or renames an action.
type ActionRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name" binding:"required"`
}

// ActionPayload is the public view of an action.
type ActionPayload struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	System    string    `json:"system"`
	CreatedAt time.Time `json:"created_at"`
}

// LinkPermissionRequest declares that an action applies to a module.
type LinkPermissionRequest struct {
	ModuleID string `json:"module_id" binding:"required"`
	ActionID string `json:"action_id" binding:"required"`
}

// PermissionPayload is an applicability edge.
type PermissionPayload struct {
	ID       string `json:"id"`
	ModuleID string `json:"module_id"`
	ActionID string `json:"action_id"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newUserPayload(user domain.User) UserPayload {
	return UserPayload{
		ID:             user.ID,
		Tenant:         user.Tenant.String(),
		Email:          user.Email,
		DocumentNumber: user.DocumentNumber,
		FullName:       user.FullName,
		IsActive:       user.IsActive,
		EmailVerified:  user.EmailVerified,
		CreatedAt:      user.CreatedAt,
	}
}

func newRolePayload(role domain.Role) RolePayload {
	return RolePayload{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		IsActive:    role.IsActive,
		IsDefault:   role.IsDefault,
		CreatedAt:   role.CreatedAt,
	}
}

func newModulePayload(module domain.Module) ModulePayload {
	return ModulePayload{
		ID:          module.ID,
		Name:        module.Name,
		Path:        module.Path,
		System:      module.System.String(),
		Description: module.Description,
		CreatedAt:   module.CreatedAt,
	}
}

func newActionPayload(action domain.Action) ActionPayload {
	return ActionPayload{
		ID:        action.ID,
		Code:      action.Code,
		Name:      action.Name,
		System:    action.System.String(),
		CreatedAt: action.CreatedAt,
	}
}
