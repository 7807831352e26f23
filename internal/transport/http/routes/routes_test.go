package routes_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/infra/config"
	httproutes "github.com/arklim/tenant-access/internal/transport/http/routes"
	"github.com/arklim/tenant-access/internal/usecase"
)

type fixedVerifier struct {
	principal domain.Principal
}

func (v fixedVerifier) VerifyAccessToken(context.Context, string) (domain.Principal, error) {
	return v.principal, nil
}

type denyAll struct{}

func (denyAll) Authorize(context.Context, domain.Principal, string, string) error {
	return usecase.ErrPermissionDenied
}

func (denyAll) Matrix(context.Context, domain.Principal) (domain.PermissionMatrix, error) {
	return domain.PermissionMatrix{}, nil
}

type failingCache struct{}

func (failingCache) HealthCheck(context.Context) error {
	return errors.New("redis health check failed")
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{App: config.AppSettings{Env: "test"}}
}

func serve(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer token")
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()

	r := httproutes.Register(httproutes.Dependencies{
		Config: testConfig(),
		Logger: logger,
	})

	if w := serve(r, http.MethodGet, "/healthz"); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestReadinessReflectsCache(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(httproutes.Dependencies{
		Config: testConfig(),
		Cache:  failingCache{},
	})

	w := serve(r, http.MethodGet, "/readyz")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "redis") {
		t.Fatalf("expected redis check in body: %s", w.Body.String())
	}
}

func TestAdminRoutesRequirePermission(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(httproutes.Dependencies{
		Config:     testConfig(),
		Verifier:   fixedVerifier{principal: domain.Principal{UserID: "u-1", Tenant: domain.TenantSPD, SessionID: "s-1"}},
		Authorizer: denyAll{},
		Services: httproutes.ServiceSet{
			Roles:   &usecase.RoleService{},
		},
	})

	if w := serve(r, http.MethodPut, "/api/v1/roles/role-1/default"); w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/api/v1/catalog/modules"); w.Code != http.StatusNotFound {
		t.Fatalf("expected unregistered catalog routes, got %d", w.Code)
	}
}
