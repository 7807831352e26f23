package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/transport/http/middleware"
	"github.com/arklim/tenant-access/internal/usecase"
)

// CredentialFlows is the slice of usecase.AuthService the auth endpoints call.
type CredentialFlows interface {
	Register(ctx context.Context, tenant domain.Tenant, actor domain.Actor, input usecase.RegisterInput) (*domain.User, error)
	VerifyEmail(ctx context.Context, tenant domain.Tenant, actor domain.Actor, email, code string) error
	Login(ctx context.Context, tenant domain.Tenant, email, password string) (*usecase.TokenPair, error)
	Refresh(ctx context.Context, rawRefresh string) (*usecase.TokenPair, error)
	Logout(ctx context.Context, principal domain.Principal, rawRefresh string) error
}

// PermissionReader exposes the cached matrix and single-cell checks.
type PermissionReader interface {
	Matrix(ctx context.Context, principal domain.Principal) (domain.PermissionMatrix, error)
	Authorize(ctx context.Context, principal domain.Principal, modulePath, actionCode string) error
}

// AuthHandler serves registration, login, token rotation and the caller's own permissions.
type AuthHandler struct {
	auth  CredentialFlows
	perms PermissionReader
}

func NewAuthHandler(auth CredentialFlows, perms PermissionReader) *AuthHandler {
	return &AuthHandler{auth: auth, perms: perms}
}

var loginCases = []ErrorCase{
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
	{Err: usecase.ErrEmailNotVerified, Status: http.StatusUnauthorized, Message: "email not verified"},
	{Err: usecase.ErrInactiveAccount, Status: http.StatusUnauthorized, Message: "account is not active"},
	{Err: usecase.ErrNoActiveRole, Status: http.StatusForbidden, Message: "no active role in tenant"},
}

// Register creates an unverified account holding the tenant's default role.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	tenant, err := domain.ParseTenant(req.Tenant)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown tenant"))
		return
	}

	user, err := h.auth.Register(c.Request.Context(), tenant, middleware.ActorFromContext(c), usecase.RegisterInput{
		Email:          req.Email,
		DocumentNumber: req.DocumentNumber,
		FullName:       req.FullName,
		Password:       req.Password,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrDefaultRoleMissing, Status: http.StatusServiceUnavailable, Message: "tenant has no default role configured"},
			{Err: domain.ErrConflict, Status: http.StatusConflict, Message: "email or document number already registered"},
		}, http.StatusInternalServerError, "failed to register user")
		return
	}

	c.JSON(http.StatusCreated, newUserPayload(*user))
}

// VerifyEmail confirms the verification code sent at registration.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	tenant, err := domain.ParseTenant(req.Tenant)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown tenant"))
		return
	}

	if err := h.auth.VerifyEmail(c.Request.Context(), tenant, middleware.ActorFromContext(c), req.Email, req.Code); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidVerificationCode, Status: http.StatusBadRequest, Message: "invalid verification code"},
		}, http.StatusInternalServerError, "failed to verify email")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "email verified"})
}

// Login authenticates against one tenant and returns a token pair plus the permission matrix.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	tenant, err := domain.ParseTenant(req.Tenant)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown tenant"))
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), tenant, req.Email, req.Password)
	if err != nil {
		RespondWithMappedError(c, err, loginCases, http.StatusInternalServerError, "failed to login")
		return
	}

	c.JSON(http.StatusOK, pair)
}

// Refresh rotates a refresh token. Reusing a rotated token fails with 401.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid refresh payload"))
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RespondWithMappedError(c, err, append([]ErrorCase{
			{Err: usecase.ErrExpiredToken, Status: http.StatusUnauthorized, Message: "refresh token expired"},
			{Err: usecase.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "invalid refresh token"},
		}, loginCases...), http.StatusInternalServerError, "failed to refresh session")
		return
	}

	c.JSON(http.StatusOK, pair)
}

// Logout revokes the named refresh token, or every session of the caller when none is given.
func (h *AuthHandler) Logout(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req LogoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid logout payload"))
			return
		}
	}

	if err := h.auth.Logout(c.Request.Context(), principal, req.RefreshToken); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidToken, Status: http.StatusBadRequest, Message: "refresh token does not belong to caller"},
		}, http.StatusInternalServerError, "failed to logout")
		return
	}

	c.Status(http.StatusNoContent)
}

// Me echoes the verified access token claims.
func (h *AuthHandler) Me(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	roles := principal.Roles
	if roles == nil {
		roles = []string{}
	}
	c.JSON(http.StatusOK, PrincipalPayload{
		UserID:    principal.UserID,
		Name:      principal.DisplayName,
		Tenant:    principal.Tenant.String(),
		Roles:     roles,
		SessionID: principal.SessionID,
	})
}

// Permissions returns the caller's cached permission matrix.
func (h *AuthHandler) Permissions(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	matrix, err := h.perms.Matrix(c.Request.Context(), principal)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrNoActiveRole, Status: http.StatusForbidden, Message: "no active role in tenant"},
		}, http.StatusInternalServerError, "failed to load permissions")
		return
	}

	c.JSON(http.StatusOK, PermissionsResponse{Tenant: principal.Tenant.String(), Permissions: matrix})
}

// Authorize answers a single (module, action) check for the caller. A denial is a normal answer.
func (h *AuthHandler) Authorize(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req AuthorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid authorization payload"))
		return
	}

	err := h.perms.Authorize(c.Request.Context(), principal, req.Module, req.Action)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, AuthorizeResponse{Allowed: true})
	case errors.Is(err, usecase.ErrPermissionDenied):
		c.JSON(http.StatusOK, AuthorizeResponse{Allowed: false})
	default:
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrNoActiveRole, Status: http.StatusForbidden, Message: "no active role in tenant"},
		}, http.StatusInternalServerError, "authorization check failed")
	}
}
