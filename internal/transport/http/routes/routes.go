package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/tenant-access/internal/infra/config"
	"github.com/arklim/tenant-access/internal/transport/http/handlers"
	"github.com/arklim/tenant-access/internal/transport/http/middleware"
)

// Guarded modules of the shared catalog that gate the administrative endpoints.
const (
	modUsers   = "/access/users"
	modRoles   = "/access/roles"
	modCatalog = "/access/catalog"

	actRead   = "READ"
	actCreate = "CREATE"
	actUpdate = "UPDATE"
	actDelete = "DELETE"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth     handlers.CredentialFlows
	Accounts handlers.AccountAdmin
	Roles    handlers.RoleAdmin
	Catalog  handlers.CatalogAdmin
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config     *config.AppConfig
	Logger     *zap.Logger
	Metrics    *middleware.HTTPMetrics
	Throttle   *middleware.Throttle
	Burst      *middleware.BurstGuard
	Tracing    gin.HandlerFunc
	Services   ServiceSet
	Verifier   middleware.TokenVerifier
	Authorizer Authorizer
	Keys       handlers.KeySet
	// MetricsHandler defaults to the global Prometheus registry.
	MetricsHandler http.Handler
	Database       DatabaseChecker
	Cache          CacheChecker
}

// Authorizer answers single-cell checks and serves the caller's permission matrix.
type Authorizer interface {
	middleware.PermissionChecker
	handlers.PermissionReader
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if deps.Tracing != nil {
		r.Use(deps.Tracing)
	}
	r.Use(middleware.RequestID())
	r.Use(middleware.EnrichContext())
	if deps.Logger != nil {
		r.Use(middleware.Logger(deps.Logger))
	}
	r.Use(deps.Metrics.Handler())
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))

	healthHandler := handlers.NewHealthHandler()
	if deps.Database != nil {
		healthHandler.WithReadinessCheck("database", deps.Database.Ping)
	}
	if deps.Cache != nil {
		healthHandler.WithReadinessCheck("redis", deps.Cache.HealthCheck)
	}

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.GET("/metrics", gin.WrapH(metricsHandler))

	if deps.Keys != nil {
		r.GET("/.well-known/jwks.json", handlers.NewJWKSHandler(deps.Keys).Keys)
	}

	if deps.Verifier == nil {
		return r
	}

	api := r.Group("/api/v1")
	if deps.Burst != nil {
		api.Use(deps.Burst.Handler())
	}

	authMiddleware := middleware.RequireAuth(deps.Verifier)
	guard := func(module, action string) gin.HandlerFunc {
		return middleware.RequirePermission(deps.Authorizer, deps.Metrics, module, action)
	}

	if deps.Services.Auth != nil && deps.Authorizer != nil {
		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Authorizer)
		throttled := buildCredentialMiddlewares(deps)
		withThrottle := func(h gin.HandlerFunc) []gin.HandlerFunc {
			return append(append([]gin.HandlerFunc{}, throttled...), h)
		}

		authGroup := api.Group("/auth")
		authGroup.POST("/register", withThrottle(authHandler.Register)...)
		authGroup.POST("/verify-email", withThrottle(authHandler.VerifyEmail)...)
		authGroup.POST("/login", withThrottle(authHandler.Login)...)
		authGroup.POST("/refresh", withThrottle(authHandler.Refresh)...)

		authGroup.POST("/logout", authMiddleware, authHandler.Logout)
		authGroup.GET("/me", authMiddleware, authHandler.Me)
		authGroup.GET("/permissions", authMiddleware, authHandler.Permissions)
		authGroup.POST("/authorize", authMiddleware, authHandler.Authorize)
	}

	if deps.Services.Roles != nil && deps.Authorizer != nil {
		roleHandler := handlers.NewRoleHandler(deps.Services.Roles)
		rolesGroup := api.Group("/roles")
		rolesGroup.Use(authMiddleware)
		rolesGroup.POST("", guard(modRoles, actCreate), roleHandler.CreateRole)
		rolesGroup.PUT("/:id/default", guard(modRoles, actUpdate), roleHandler.SetDefault)
		rolesGroup.PUT("/:id/active", guard(modRoles, actUpdate), roleHandler.SetActive)
		rolesGroup.POST("/:id/permissions", guard(modRoles, actUpdate), roleHandler.GrantPermissions)
		rolesGroup.DELETE("/:id/permissions", guard(modRoles, actUpdate), roleHandler.RevokePermissions)

		if deps.Services.Accounts != nil {
			userHandler := handlers.NewUserHandler(deps.Services.Accounts, deps.Services.Roles)
			usersGroup := api.Group("/users/:id")
			usersGroup.Use(authMiddleware)
			usersGroup.GET("/roles", guard(modUsers, actRead), userHandler.ListRoles)
			usersGroup.POST("/roles", guard(modUsers, actUpdate), userHandler.AssignRole)
			usersGroup.DELETE("/roles/:roleId", guard(modUsers, actUpdate), userHandler.RemoveRole)
			usersGroup.POST("/deactivate", guard(modUsers, actUpdate), userHandler.Deactivate)
		}
	}

	if deps.Services.Catalog != nil && deps.Authorizer != nil {
		catalogHandler := handlers.NewCatalogHandler(deps.Services.Catalog)
		catalogGroup := api.Group("/catalog")
		catalogGroup.Use(authMiddleware)
		catalogGroup.GET("/modules", guard(modCatalog, actRead), catalogHandler.ListModules)
		catalogGroup.POST("/modules", guard(modCatalog, actCreate), catalogHandler.CreateModule)
		catalogGroup.POST("/actions", guard(modCatalog, actCreate), catalogHandler.CreateAction)
		catalogGroup.PUT("/actions/:id", guard(modCatalog, actUpdate), catalogHandler.UpdateAction)
		catalogGroup.DELETE("/actions/:id", guard(modCatalog, actDelete), catalogHandler.DeleteAction)
		catalogGroup.POST("/permissions", guard(modCatalog, actCreate), catalogHandler.LinkPermission)
	}

	return r
}

// buildCredentialMiddlewares throttles the unauthenticated credential endpoints per client IP.
func buildCredentialMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.Throttle == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.CredentialAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.CredentialWindow
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.ThrottleRule{
		Name:       "auth_credentials_ip",
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.Throttle.Limit(rule)}
}
