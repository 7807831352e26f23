package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

type staticKeys struct {
	payload []byte
	err     error
}

func (k staticKeys) JWKS() ([]byte, error) {
	return k.payload, k.err
}

func TestHealthHandler_ReadinessReportsFailingCheck(t *testing.T) {
	h := NewHealthHandler().
		WithReadinessCheck("postgres", func(context.Context) error { return nil }).
		WithReadinessCheck("redis", func(context.Context) error { return errors.New("redis health check failed") })

	router := newTestRouter(nil)
	router.GET("/healthz", h.Status)
	router.GET("/readyz", h.Readiness)

	rr := serveJSON(t, router, http.MethodGet, "/healthz", nil)
	expectStatus(t, rr, http.StatusOK)

	rr = serveJSON(t, router, http.MethodGet, "/readyz", nil)
	expectStatus(t, rr, http.StatusServiceUnavailable)
	body := decode[ReadyResponse](t, rr)
	if body.Checks["postgres"] != "ok" || body.Checks["redis"] == "ok" || body.Status != "unavailable" {
		t.Fatalf("unexpected readiness body %+v", body)
	}
}

func TestJWKSHandler_Keys(t *testing.T) {
	router := newTestRouter(nil)
	router.GET("/jwks", NewJWKSHandler(staticKeys{payload: []byte(`{"keys":[]}`)}).Keys)
	router.GET("/broken", NewJWKSHandler(staticKeys{err: errors.New("no keys")}).Keys)

	rr := serveJSON(t, router, http.MethodGet, "/jwks", nil)
	expectStatus(t, rr, http.StatusOK)
	if rr.Header().Get("Cache-Control") != jwksCacheControl {
		t.Fatalf("expected cache-control header")
	}

	rr = serveJSON(t, router, http.MethodGet, "/broken", nil)
	expectStatus(t, rr, http.StatusInternalServerError)
}
