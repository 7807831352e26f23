package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/infra/security"
)

func issueFor(t *testing.T, f *fixture, user domain.User) *TokenPair {
	t.Helper()
	roles, _ := (&memRoles{f.store}).ListByUser(context.Background(), user.Tenant, user.ID)
	pair, err := f.sessions.Issue(context.Background(), user, activeRoles(roles), user.Tenant)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	return pair
}

func TestSessionService_IssueThenVerify(t *testing.T) {
	f := newFixture(t)
	f.seedSPD()
	user := f.addVerifiedUser(domain.TenantSPD, "user-1", "ana@example.com", "role-viewer")

	pair := issueFor(t, f, user)
	if pair.TokenType != "Bearer" || pair.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("unexpected pair metadata: %+v", pair)
	}
	if !pair.Permissions.Allowed("/users", "READ") {
		t.Fatalf("expected matrix in pair to grant /users READ")
	}

	principal, err := f.sessions.VerifyAccessToken(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccessToken returned error: %v", err)
	}
	if principal.UserID != "user-1" || principal.Tenant != domain.TenantSPD || principal.DisplayName != user.FullName {
		t.Fatalf("unexpected principal: %+v", principal)
	}
	if len(principal.Roles) != 1 || principal.Roles[0] != "viewer" {
		t.Fatalf("expected viewer role in claims, got %v", principal.Roles)
	}

	stored := f.store.tokens[domain.TenantSPD][principal.SessionID]
	if stored.UserID != "user-1" {
		t.Fatalf("expected refresh row keyed by session id %s", principal.SessionID)
	}
	if stored.TokenHash == pair.RefreshToken || stored.TokenHash != security.HashToken(pair.RefreshToken) {
		t.Fatalf("refresh token must be stored as its digest")
	}
	if ttl := f.cache.ttls[cacheKey(domain.TenantSPD, "user-1")]; ttl != 15*time.Minute {
		t.Fatalf("expected cache ttl of 15m, got %s", ttl)
	}
}

func TestSessionService_VerifyRejectsRefreshToken(t *testing.T) {
	f := newFixture(t)
	f.seedSPD()
	pair := issueFor(t, f, f.addVerifiedUser(domain.TenantSPD, "user-1", "ana@example.com", "role-viewer"))

	if _, err := f.sessions.VerifyAccessToken(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for a refresh token, got %v", err)
	}
	if _, err := f.sessions.Rotate(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken when rotating an access token, got %v", err)
	}
}

func TestSessionService_VerifyExpiredAccessToken(t *testing.T) {
	f := newFixture(t)
	f.seedSPD()
	user := f.addVerifiedUser(domain.TenantSPD, "user-1", "ana@example.com", "role-viewer")

	f.sessions.WithClock(func() time.Time { return time.Now().Add(-time.Hour) })
	pair := issueFor(t, f, user)

	_, err := f.sessions.VerifyAccessToken(context.Background(), pair.AccessToken)
	if !errors.Is(err, ErrExpiredToken) || !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestSessionService_RotateRejectsReusedToken(t *testing.T) {
	f := newFixture(t)
	f.seedSPD()
	user := f.addVerifiedUser(domain.TenantSPD, "user-1", "ana@example.com", "role-viewer")
	ctx := context.Background()

	t0 := issueFor(t, f, user)

	t1, err := f.sessions.Rotate(ctx, t0.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate returned error: %v", err)
	}
	if t1.RefreshToken == t0.RefreshToken {
		t.Fatalf("rotation must mint a new refresh token")
	}

	if _, err := f.sessions.Rotate(ctx, t0.RefreshToken); !errors.Is(err, domain.ErrRefreshTokenRevoked) {
		t.Fatalf("expected ErrRefreshTokenRevoked on reuse, got %v", err)
	}

	if _, err := f.sessions.Rotate(ctx, t1.RefreshToken); err != nil {
		t.Fatalf("rotating the fresh token returned error: %v", err)
	}
}

func TestSessionService_RotateLosesConcurrentRace(t *testing.T) {
	f := newFixture(t)
	f.seedSPD()
	user := f.addVerifiedUser(domain.TenantSPD, "user-1", "ana@example.com", "role-viewer")
	t0 := issueFor(t, f, user)

	// another rotation of t0 commits between the lookup and the conditional revoke
	f.store.beforeRevoke = func(tenant domain.Tenant, id string) {
		token := f.store.tokens[tenant][id]
		token.Revoked = true
		f.store.tokens[tenant][id] = token
	}

	_, err := f.sessions.Rotate(context.Background(), t0.RefreshToken)
	if !errors.Is(err, domain.ErrRefreshTokenRevoked) {
		t.Fatalf("expected ErrRefreshTokenRevoked, got %v", err)
	}
	if rows := len(f.store.tokens[domain.TenantSPD]); rows != 1 {
		t.Fatalf("losing rotation must not mint a session, found %d rows", rows)
	}
}

func TestSessionService_RotateSurvivesCacheOutage(t *testing.T) {
	f := newFixture(t)
	f.seedSPD()
	user := f.addVerifiedUser(domain.TenantSPD, "user-1", "ana@example.com", "role-viewer")
	ctx := context.Background()
	t0 := issueFor(t, f, user)

	f.cache.setErr = errors.New("redis down")
	if _, err := f.sessions.Rotate(ctx, t0.RefreshToken); err == nil {
		t.Fatalf("expected rotation to fail while the cache is down")
	}

	rows := f.store.tokens[domain.TenantSPD]
	if len(rows) != 1 {
		t.Fatalf("failed rotation must not persist a new session, found %d rows", len(rows))
	}
	for _, token := range rows {
		if token.Revoked {
			t.Fatalf("presented token %s revoked despite failed rotation", token.ID)
		}
	}

	f.cache.setErr = nil
	t1, err := f.sessions.Rotate(ctx, t0.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate after cache recovery returned error: %v", err)
	}
	if t1.RefreshToken == t0.RefreshToken {
		t.Fatalf("rotation must mint a new refresh token")
	}
}

func TestSessionService_IssueRevokesRowWhenCacheFails(t *testing.T) {
	f := newFixture(t)
	f.seedSPD()
	user := f.addVerifiedUser(domain.TenantSPD, "user-1", "ana@example.com", "role-viewer")
	roles, _ := (&memRoles{f.store}).ListByUser(context.Background(), domain.TenantSPD, user.ID)

	f.cache.setErr = errors.New("redis down")
	if _, err := f.sessions.Issue(context.Background(), user, activeRoles(roles), domain.TenantSPD); err == nil {
		t.Fatalf("expected Issue to fail while the cache is down")
	}

	active, _ := (&memTokens{f.store}).ListActiveByUser(context.Background(), domain.TenantSPD, user.ID, time.Now(), 10)
	if len(active) != 0 {
		t.Fatalf("expected no active refresh rows after failed issue, got %d", len(active))
	}
}

func TestSessionService_RotateRequiresActiveRole(t *testing.T) {
	f := newFixture(t)
	f.seedSPD()
	user := f.addVerifiedUser(domain.TenantSPD, "user-1", "ana@example.com", "role-viewer")
	pair := issueFor(t, f, user)

	f.store.addRole(domain.TenantSPD, "role-viewer", "viewer", false, true)

	if _, err := f.sessions.Rotate(context.Background(), pair.RefreshToken); !errors.Is(err, ErrNoActiveRole) {
		t.Fatalf("expected ErrNoActiveRole, got %v", err)
	}

	// failed rotation rolls back the revoke
	row := f.store.tokens[domain.TenantSPD]
	for _, token := range row {
		if token.Revoked {
			t.Fatalf("refresh row %s revoked despite failed rotation", token.ID)
		}
	}
}

func TestSessionService_RevokeSingleSession(t *testing.T) {
	f := newFixture(t)
	f.seedSPD()
	user := f.addVerifiedUser(domain.TenantSPD, "user-1", "ana@example.com", "role-viewer")
	ctx := context.Background()

	first := issueFor(t, f, user)
	second := issueFor(t, f, user)

	if err := f.sessions.Revoke(ctx, domain.TenantSPD, "user-1", first.RefreshToken); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	if _, err := f.sessions.Rotate(ctx, first.RefreshToken); !errors.Is(err, domain.ErrRefreshTokenRevoked) {
		t.Fatalf("expected revoked token to be rejected, got %v", err)
	}
	if _, err := f.sessions.Rotate(ctx, second.RefreshToken); err != nil {
		t.Fatalf("other session should survive, got %v", err)
	}
	if err := f.sessions.Revoke(ctx, domain.TenantSPD, "user-2", second.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for a foreign token, got %v", err)
	}
}

func TestSessionService_RevokeAllDropsCache(t *testing.T) {
	f := newFixture(t)
	f.seedSPD()
	user := f.addVerifiedUser(domain.TenantSPD, "user-1", "ana@example.com", "role-viewer")
	ctx := context.Background()

	first := issueFor(t, f, user)
	second := issueFor(t, f, user)

	if err := f.sessions.Revoke(ctx, domain.TenantSPD, "user-1", ""); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	for _, raw := range []string{first.RefreshToken, second.RefreshToken} {
		if _, err := f.sessions.Rotate(ctx, raw); !errors.Is(err, domain.ErrRefreshTokenRevoked) {
			t.Fatalf("expected ErrRefreshTokenRevoked after logout everywhere, got %v", err)
		}
	}
	if _, err := f.cache.Get(ctx, domain.TenantSPD, "user-1"); err == nil {
		t.Fatalf("expected cached matrix to be dropped")
	}

	if actions := f.audit.actions(); !contains(actions, "session.revoked_all") {
		t.Fatalf("expected logout everywhere in audit trail, got %v", actions)
	}
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
