package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/core/port"
	"github.com/arklim/tenant-access/internal/infra/logger"
	"github.com/arklim/tenant-access/internal/infra/security"
	"github.com/arklim/tenant-access/internal/repository"
)

const (
	verificationCodeLength = 6
	minPasswordLength      = 8
)

// RegisterInput captures the payload for creating a user account.
type RegisterInput struct {
	Email          string
	DocumentNumber string
	FullName       string
	Password       string
}

type userCreatedPayload struct {
	UserID           string `json:"user_id"`
	Email            string `json:"email"`
	FullName         string `json:"full_name"`
	DefaultRoleID    string `json:"default_role_id"`
	VerificationCode string `json:"verification_code"`
}

type userEventPayload struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// AuthService coordinates registration, login and account lifecycle flows.
type AuthService struct {
	uow      port.UnitOfWork
	users    port.UserRepository
	roles    port.RoleRepository
	hasher   port.PasswordHasher
	sessions *SessionService
	outbox   *EventOutbox
	audit    auditRecorder
	logger   *zap.Logger
	now      func() time.Time

	decoyOnce   sync.Once
	decoyDigest string
}

// NewAuthService constructs an AuthService.
func NewAuthService(
	uow port.UnitOfWork,
	users port.UserRepository,
	roles port.RoleRepository,
	hasher port.PasswordHasher,
	sessions *SessionService,
	outbox *EventOutbox,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		uow:      uow,
		users:    users,
		roles:    roles,
		hasher:   hasher,
		sessions: sessions,
		outbox:   outbox,
		audit:    newAuditRecorder(nil, log),
		logger:   log,
		now:      time.Now,
	}
}

// WithAudit records account mutations on sink.
func (s *AuthService) WithAudit(sink port.AuditSink) *AuthService {
	s.audit.sink = sink
	return s
}

// Register creates an unverified user holding the tenant's default role.
func (s *AuthService) Register(ctx context.Context, tenant domain.Tenant, actor domain.Actor, input RegisterInput) (*domain.User, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}

	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	document := strings.TrimSpace(input.DocumentNumber)
	if document == "" {
		return nil, invalidInput("document number is required")
	}
	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" {
		return nil, invalidInput("full name is required")
	}
	if len(input.Password) < minPasswordLength {
		return nil, invalidInput("password must be at least %d characters", minPasswordLength)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	code, err := security.GenerateNumericCode(verificationCodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate verification code: %w", err)
	}

	now := s.now().UTC()
	user := domain.User{
		ID:               uuid.NewString(),
		Tenant:           tenant,
		Email:            email,
		DocumentNumber:   document,
		FullName:         fullName,
		PasswordHash:     hash,
		IsActive:         true,
		VerificationCode: &code,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		defaultRole, err := repos.Roles.GetDefault(ctx, tenant)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrDefaultRoleMissing
			}
			return fmt.Errorf("load default role: %w", err)
		}

		if err := repos.Users.Create(ctx, tenant, user); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		if err := repos.Roles.AssignToUser(ctx, tenant, user.ID, defaultRole.ID); err != nil {
			return fmt.Errorf("assign default role: %w", err)
		}

		_, err = s.outbox.Enqueue(ctx, repos.Outbox, tenant, domain.EventUserCreated, userCreatedPayload{
			UserID:           user.ID,
			Email:            user.Email,
			FullName:         user.FullName,
			DefaultRoleID:    defaultRole.ID,
			VerificationCode: code,
		}, actor.CorrelationID)
		return err
	})

	s.audit.record(ctx, domain.AuditEntry{
		Action:     "user.register",
		EntityType: "user",
		EntityID:   user.ID,
		Tenant:     tenant,
		ActorID:    actor.UserID,
		Success:    err == nil,
		Details:    map[string]any{"email": logger.MaskEmail(email)},
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifyEmail confirms the verification code sent at registration. Verifying twice is a no-op.
func (s *AuthService) VerifyEmail(ctx context.Context, tenant domain.Tenant, actor domain.Actor, email, code string) error {
	if err := tenant.Validate(); err != nil {
		return err
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	var userID string
	err = s.uow.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		user, err := repos.Users.GetByEmail(ctx, tenant, email)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrInvalidVerificationCode
			}
			return fmt.Errorf("load user: %w", err)
		}
		userID = user.ID
		if user.EmailVerified {
			return nil
		}
		if user.VerificationCode == nil ||
			subtle.ConstantTimeCompare([]byte(*user.VerificationCode), []byte(strings.TrimSpace(code))) != 1 {
			return ErrInvalidVerificationCode
		}

		if err := repos.Users.MarkEmailVerified(ctx, tenant, user.ID); err != nil {
			return fmt.Errorf("mark email verified: %w", err)
		}
		_, err = s.outbox.Enqueue(ctx, repos.Outbox, tenant, domain.EventUserEmailVerified,
			userEventPayload{UserID: user.ID, Email: user.Email}, actor.CorrelationID)
		return err
	})

	s.audit.record(ctx, domain.AuditEntry{
		Action:     "user.verify_email",
		EntityType: "user",
		EntityID:   userID,
		Tenant:     tenant,
		ActorID:    actor.UserID,
		Success:    err == nil,
	})
	return err
}

// Login authenticates email and password and issues a token pair.
func (s *AuthService) Login(ctx context.Context, tenant domain.Tenant, email, password string) (*TokenPair, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))

	pair, userID, err := s.login(ctx, tenant, email, password)
	s.audit.record(ctx, domain.AuditEntry{
		Action:     "user.login",
		EntityType: "user",
		EntityID:   userID,
		Tenant:     tenant,
		ActorID:    userID,
		Success:    err == nil,
		Details:    map[string]any{"email": logger.MaskEmail(email)},
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *AuthService) login(ctx context.Context, tenant domain.Tenant, email, password string) (*TokenPair, string, error) {
	user, err := s.users.GetByEmail(ctx, tenant, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.verifyDecoy(password)
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("load user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Warn("password verification failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil, user.ID, ErrInvalidCredentials
	}
	if !ok {
		return nil, user.ID, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, user.ID, ErrInactiveAccount
	}
	if !user.EmailVerified {
		return nil, user.ID, ErrEmailNotVerified
	}
	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, tenant, user.ID, password)
	}

	roles, err := s.roles.ListByUser(ctx, tenant, user.ID)
	if err != nil {
		return nil, user.ID, fmt.Errorf("list user roles: %w", err)
	}
	active := activeRoles(roles)
	if len(active) == 0 {
		return nil, user.ID, ErrNoActiveRole
	}

	pair, err := s.sessions.Issue(ctx, *user, active, tenant)
	if err != nil {
		return nil, user.ID, err
	}
	return pair, user.ID, nil
}

// verifyDecoy runs one verification against a fixed digest so an unknown email costs the
// same hashing work as a wrong password.
func (s *AuthService) verifyDecoy(password string) {
	s.decoyOnce.Do(func() {
		digest, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			s.logger.Warn("build decoy digest failed", zap.Error(err))
			return
		}
		s.decoyDigest = digest
	})
	if s.decoyDigest != "" {
		_, _ = s.hasher.Verify(password, s.decoyDigest)
	}
}

// rehash upgrades a digest written under older parameters. Failures never block the login.
func (s *AuthService) rehash(ctx context.Context, tenant domain.Tenant, userID, password string) {
	digest, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, tenant, userID, digest)
	}
	if err != nil {
		s.logger.Warn("password rehash failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.logger.Debug("password digest upgraded", zap.String("user_id", userID))
}

// Refresh rotates a refresh token.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string) (*TokenPair, error) {
	return s.sessions.Rotate(ctx, rawRefresh)
}

// Logout revokes the given refresh token, or every session of the principal when it is empty.
func (s *AuthService) Logout(ctx context.Context, principal domain.Principal, rawRefresh string) error {
	return s.sessions.Revoke(ctx, principal.Tenant, principal.UserID, rawRefresh)
}

// DeactivateUser disables the account, revokes every refresh token and drops the cached matrix.
func (s *AuthService) DeactivateUser(ctx context.Context, tenant domain.Tenant, actor domain.Actor, userID string) error {
	if err := tenant.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return invalidInput("user id is required")
	}

	var revoked int
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		if _, err := repos.Users.GetByID(ctx, tenant, userID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("load user: %w", err)
		}
		if err := repos.Users.SetActive(ctx, tenant, userID, false); err != nil {
			return fmt.Errorf("deactivate user: %w", err)
		}

		var err error
		revoked, err = repos.Tokens.RevokeAllForUser(ctx, tenant, userID)
		if err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}

		_, err = s.outbox.Enqueue(ctx, repos.Outbox, tenant, domain.EventUserDeactivated,
			userEventPayload{UserID: userID}, actor.CorrelationID)
		return err
	})

	if err == nil {
		if cacheErr := s.sessions.Forget(ctx, tenant, userID); cacheErr != nil {
			s.logger.Warn("drop cached permissions failed", zap.String("user_id", userID), zap.Error(cacheErr))
		}
	}

	s.audit.record(ctx, domain.AuditEntry{
		Action:     "user.deactivate",
		EntityType: "user",
		EntityID:   userID,
		Tenant:     tenant,
		ActorID:    actor.UserID,
		Success:    err == nil,
		Details:    map[string]any{"revoked_sessions": revoked},
	})
	return err
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", invalidInput("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", invalidInput("email %q is malformed", email)
	}
	return email, nil
}
