package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/arklim/tenant-access/internal/core/domain"
)

func TestRespondWithMappedError(t *testing.T) {
	custom := errors.New("custom")
	cases := []ErrorCase{{Err: custom, Status: http.StatusTeapot, Message: "custom case"}}

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"handler case first", fmt.Errorf("wrapped: %w", custom), http.StatusTeapot, "custom case"},
		{"invalid input echoes details", fmt.Errorf("email is malformed: %w", domain.ErrInvalidInput), http.StatusBadRequest, "email is malformed: invalid input"},
		{"revoked refresh", domain.ErrRefreshTokenRevoked, http.StatusUnauthorized, "refresh token revoked"},
		{"forbidden", fmt.Errorf("x: %w", domain.ErrForbidden), http.StatusForbidden, ""},
		{"fallback", errors.New("db down"), http.StatusInternalServerError, "boom"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(nil)
			router.GET("/x", func(c *gin.Context) {
				RespondWithMappedError(c, tc.err, cases, http.StatusInternalServerError, "boom")
			})

			rr := serveJSON(t, router, http.MethodGet, "/x", nil)
			expectStatus(t, rr, tc.status)
			body := decode[ErrorResponse](t, rr)
			if tc.message != "" && body.Error != tc.message {
				t.Fatalf("expected message %q, got %q", tc.message, body.Error)
			}
			if body.TraceID == "" {
				t.Fatalf("expected trace id in error body")
			}
		})
	}
}
