package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/core/port"
	"github.com/arklim/tenant-access/internal/infra/security"
	"github.com/arklim/tenant-access/internal/repository"
)

const (
	defaultAccessTTL   = 15 * time.Minute
	defaultRefreshTTL  = 30 * 24 * time.Hour
	defaultLookupLimit = 20

	tokenTypeBearer = "Bearer"
)

// SessionConfig tunes token lifetimes and the refresh lookup window.
type SessionConfig struct {
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	LookupLimit int
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.AccessTTL <= 0 {
		c.AccessTTL = defaultAccessTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = defaultRefreshTTL
	}
	if c.LookupLimit <= 0 {
		c.LookupLimit = defaultLookupLimit
	}
	return c
}

// TokenPair is what a successful login or refresh hands back to the client.
type TokenPair struct {
	AccessToken  string                  `json:"access_token"`
	RefreshToken string                  `json:"refresh_token"`
	TokenType    string                  `json:"token_type"`
	ExpiresIn    int64                   `json:"expires_in"`
	Permissions  domain.PermissionMatrix `json:"permissions"`
}

// SessionService mints, rotates and revokes token pairs.
type SessionService struct {
	access   *security.JWTManager
	refresh  *security.JWTManager
	uow      port.UnitOfWork
	tokens   port.TokenRepository
	resolver *PermissionResolver
	cache    port.PermissionCache
	cfg      SessionConfig
	audit    auditRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionService wires the access and refresh key sets with persistence and the matrix cache.
func NewSessionService(
	access, refresh *security.JWTManager,
	uow port.UnitOfWork,
	tokens port.TokenRepository,
	resolver *PermissionResolver,
	cache port.PermissionCache,
	cfg SessionConfig,
	logger *zap.Logger,
) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		access:   access,
		refresh:  refresh,
		uow:      uow,
		tokens:   tokens,
		resolver: resolver,
		cache:    cache,
		cfg:      cfg.withDefaults(),
		audit:    newAuditRecorder(nil, logger),
		logger:   logger,
		now:      time.Now,
	}
}

// WithAudit records issue, rotate and revoke events on sink.
func (s *SessionService) WithAudit(sink port.AuditSink) *SessionService {
	s.audit.sink = sink
	return s
}

// WithClock overrides the time source.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	if now != nil {
		s.now = now
		s.audit.now = now
	}
	return s
}

// Issue mints a fresh pair for user and caches the resolved matrix for the access token lifetime.
func (s *SessionService) Issue(ctx context.Context, user domain.User, roles []domain.Role, tenant domain.Tenant) (*TokenPair, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	if user.Tenant != "" && user.Tenant != tenant {
		return nil, invalidInput("user belongs to tenant %s", user.Tenant)
	}

	pair, sessionID, err := s.mint(ctx, s.tokens, user, roleNames(roles), tenant)
	if err != nil {
		return nil, err
	}
	if err := s.cachePermissions(ctx, tenant, user.ID, pair.Permissions); err != nil {
		// nobody holds the refresh token yet, so the row must not stay active
		if revokeErr := s.tokens.Revoke(ctx, tenant, sessionID); revokeErr != nil {
			s.logger.Warn("revoke orphaned refresh token failed",
				zap.String("session_id", sessionID),
				zap.Error(revokeErr),
			)
		}
		return nil, err
	}

	s.audit.record(ctx, domain.AuditEntry{
		Action:     "session.issued",
		EntityType: "session",
		EntityID:   sessionID,
		Tenant:     tenant,
		ActorID:    user.ID,
		Success:    true,
	})
	return pair, nil
}

// Rotate exchanges a refresh token for a new pair. The presented token is revoked with a
// conditional update, so a token can be rotated at most once.
func (s *SessionService) Rotate(ctx context.Context, rawRefresh string) (*TokenPair, error) {
	claims := &security.RefreshTokenClaims{}
	if err := s.refresh.Parse(rawRefresh, claims); err != nil {
		return nil, mapTokenError(err)
	}
	tenant, err := domain.ParseTenant(claims.Tenant)
	if err != nil || claims.UserID == "" {
		return nil, fmt.Errorf("%w: refresh claims incomplete", ErrInvalidToken)
	}

	digest := security.HashToken(rawRefresh)
	var (
		pair      *TokenPair
		sessionID string
	)

	err = s.uow.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		match, err := s.findActive(ctx, repos.Tokens, tenant, claims.UserID, digest)
		if err != nil {
			return err
		}

		if err := repos.Tokens.Revoke(ctx, tenant, match.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("rotate session %s: %w", match.ID, domain.ErrRefreshTokenRevoked)
			}
			return fmt.Errorf("revoke refresh token: %w", err)
		}

		user, err := repos.Users.GetByID(ctx, tenant, claims.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: subject no longer exists", ErrInvalidToken)
			}
			return fmt.Errorf("load user: %w", err)
		}
		if !user.IsActive {
			return ErrInactiveAccount
		}

		roles, err := repos.Roles.ListByUser(ctx, tenant, user.ID)
		if err != nil {
			return fmt.Errorf("list user roles: %w", err)
		}
		active := activeRoles(roles)
		if len(active) == 0 {
			return ErrNoActiveRole
		}

		pair, sessionID, err = s.mint(ctx, repos.Tokens, *user, roleNames(active), tenant)
		if err != nil {
			return err
		}
		// a cache failure rolls the revoke back so the presented token stays usable
		return s.cachePermissions(ctx, tenant, user.ID, pair.Permissions)
	})
	if err != nil {
		s.audit.record(ctx, domain.AuditEntry{
			Action:     "session.rotated",
			EntityType: "session",
			EntityID:   claims.SessionID,
			Tenant:     tenant,
			ActorID:    claims.UserID,
			Details:    map[string]any{"error": err.Error()},
		})
		return nil, err
	}

	s.audit.record(ctx, domain.AuditEntry{
		Action:     "session.rotated",
		EntityType: "session",
		EntityID:   sessionID,
		Tenant:     tenant,
		ActorID:    claims.UserID,
		Success:    true,
		Details:    map[string]any{"previous_session": claims.SessionID},
	})
	return pair, nil
}

// Revoke revokes the session rawRefresh belongs to. With an empty token every active
// session of the user is revoked and the cached matrix dropped.
func (s *SessionService) Revoke(ctx context.Context, tenant domain.Tenant, userID, rawRefresh string) error {
	if err := tenant.Validate(); err != nil {
		return err
	}
	if userID == "" {
		return invalidInput("user id is required")
	}

	if rawRefresh == "" {
		count, err := s.tokens.RevokeAllForUser(ctx, tenant, userID)
		if err != nil {
			return fmt.Errorf("revoke all sessions: %w", err)
		}
		if err := s.Forget(ctx, tenant, userID); err != nil {
			s.logger.Warn("drop cached permissions failed", zap.String("user_id", userID), zap.Error(err))
		}
		s.audit.record(ctx, domain.AuditEntry{
			Action:     "session.revoked_all",
			EntityType: "user",
			EntityID:   userID,
			Tenant:     tenant,
			ActorID:    userID,
			Success:    true,
			Details:    map[string]any{"revoked": count},
		})
		return nil
	}

	claims := &security.RefreshTokenClaims{}
	if err := s.refresh.Parse(rawRefresh, claims); err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			// the row expired with the token, nothing left to revoke
			return nil
		}
		return mapTokenError(err)
	}
	if claims.UserID != userID || claims.Tenant != tenant.String() {
		return fmt.Errorf("%w: token belongs to another subject", ErrInvalidToken)
	}

	match, err := s.findActive(ctx, s.tokens, tenant, userID, security.HashToken(rawRefresh))
	if err != nil {
		if errors.Is(err, domain.ErrRefreshTokenRevoked) {
			return nil
		}
		return err
	}
	if err := s.tokens.Revoke(ctx, tenant, match.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	s.audit.record(ctx, domain.AuditEntry{
		Action:     "session.revoked",
		EntityType: "session",
		EntityID:   match.ID,
		Tenant:     tenant,
		ActorID:    userID,
		Success:    true,
	})
	return nil
}

// VerifyAccessToken checks signature, expiry and issuer and returns the caller principal.
func (s *SessionService) VerifyAccessToken(_ context.Context, rawAccess string) (domain.Principal, error) {
	claims := &security.AccessTokenClaims{}
	if err := s.access.Parse(rawAccess, claims); err != nil {
		return domain.Principal{}, mapTokenError(err)
	}
	tenant, err := domain.ParseTenant(claims.Tenant)
	if err != nil || claims.UserID == "" {
		return domain.Principal{}, fmt.Errorf("%w: access claims incomplete", ErrInvalidToken)
	}
	return domain.Principal{
		UserID:      claims.UserID,
		DisplayName: claims.Name,
		Tenant:      tenant,
		Roles:       claims.Roles,
		SessionID:   claims.ID,
	}, nil
}

// Forget drops the cached matrix of a user.
func (s *SessionService) Forget(ctx context.Context, tenant domain.Tenant, userID string) error {
	return s.cache.Delete(ctx, tenant, userID)
}

// mint signs both tokens and persists the refresh digest through tokens. The session id
// is the refresh row id and the access token jti.
func (s *SessionService) mint(ctx context.Context, tokens port.TokenRepository, user domain.User, roles []string, tenant domain.Tenant) (*TokenPair, string, error) {
	matrix, err := s.resolver.Resolve(ctx, user.ID, tenant)
	if err != nil {
		return nil, "", fmt.Errorf("resolve permissions: %w", err)
	}

	now := s.now().UTC()
	sessionID := uuid.NewString()

	accessClaims, err := security.NewAccessTokenClaims(security.TokenOptions{
		UserID:   user.ID,
		Name:     user.FullName,
		Tenant:   tenant.String(),
		Roles:    roles,
		Issuer:   s.access.Issuer(),
		TTL:      s.cfg.AccessTTL,
		IssuedAt: now,
		JTI:      sessionID,
	})
	if err != nil {
		return nil, "", fmt.Errorf("build access claims: %w", err)
	}
	accessToken, err := s.access.Sign(accessClaims)
	if err != nil {
		return nil, "", fmt.Errorf("sign access token: %w", err)
	}

	refreshClaims, err := security.NewRefreshTokenClaims(security.TokenOptions{
		UserID:    user.ID,
		Tenant:    tenant.String(),
		SessionID: sessionID,
		Issuer:    s.refresh.Issuer(),
		TTL:       s.cfg.RefreshTTL,
		IssuedAt:  now,
	})
	if err != nil {
		return nil, "", fmt.Errorf("build refresh claims: %w", err)
	}
	refreshToken, err := s.refresh.Sign(refreshClaims)
	if err != nil {
		return nil, "", fmt.Errorf("sign refresh token: %w", err)
	}

	record := domain.RefreshToken{
		ID:        sessionID,
		UserID:    user.ID,
		Tenant:    tenant,
		TokenHash: security.HashToken(refreshToken),
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tokens.Create(ctx, tenant, record); err != nil {
		return nil, "", fmt.Errorf("persist refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(s.cfg.AccessTTL / time.Second),
		Permissions:  matrix,
	}, sessionID, nil
}

func (s *SessionService) findActive(ctx context.Context, tokens port.TokenRepository, tenant domain.Tenant, userID, digest string) (*domain.RefreshToken, error) {
	rows, err := tokens.ListActiveByUser(ctx, tenant, userID, s.now().UTC(), s.cfg.LookupLimit)
	if err != nil {
		return nil, fmt.Errorf("list active refresh tokens: %w", err)
	}
	for i := range rows {
		if subtle.ConstantTimeCompare([]byte(rows[i].TokenHash), []byte(digest)) == 1 {
			return &rows[i], nil
		}
	}
	return nil, fmt.Errorf("no active session matches token: %w", domain.ErrRefreshTokenRevoked)
}

func (s *SessionService) cachePermissions(ctx context.Context, tenant domain.Tenant, userID string, matrix domain.PermissionMatrix) error {
	if err := s.cache.Set(ctx, tenant, userID, matrix, s.cfg.AccessTTL); err != nil {
		return fmt.Errorf("cache permissions: %w", err)
	}
	return nil
}

func mapTokenError(err error) error {
	if errors.Is(err, security.ErrTokenExpired) {
		return ErrExpiredToken
	}
	return fmt.Errorf("%w: %v", ErrInvalidToken, err)
}

func activeRoles(roles []domain.Role) []domain.Role {
	active := make([]domain.Role, 0, len(roles))
	for _, role := range roles {
		if role.IsActive {
			active = append(active, role)
		}
	}
	return active
}

func roleNames(roles []domain.Role) []string {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return names
}
