package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/core/port"
	"github.com/arklim/tenant-access/internal/repository"
)

// CreateRoleInput captures the payload for creating a role.
type CreateRoleInput struct {
	Name          string
	Description   *string
	IsDefault     bool
	PermissionIDs []string
}

type roleEventPayload struct {
	RoleID    string `json:"role_id"`
	Name      string `json:"name,omitempty"`
	IsDefault bool   `json:"is_default"`
	IsActive  bool   `json:"is_active"`
}

type rolePermissionsPayload struct {
	RoleID        string   `json:"role_id"`
	Granted       []string `json:"granted,omitempty"`
	Revoked       []string `json:"revoked,omitempty"`
	AffectedCount int      `json:"affected"`
}

type userRolePayload struct {
	UserID string `json:"user_id"`
	RoleID string `json:"role_id"`
}

// RoleService manages roles, their grants and user assignments within a tenant.
type RoleService struct {
	uow     port.UnitOfWork
	roles   port.RoleRepository
	catalog port.CatalogRepository
	outbox  *EventOutbox
	audit   auditRecorder
	logger  *zap.Logger
	now     func() time.Time
}

// NewRoleService constructs a RoleService.
func NewRoleService(uow port.UnitOfWork, roles port.RoleRepository, catalog port.CatalogRepository, outbox *EventOutbox, logger *zap.Logger) *RoleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleService{
		uow:     uow,
		roles:   roles,
		catalog: catalog,
		outbox:  outbox,
		audit:   newAuditRecorder(nil, logger),
		logger:  logger,
		now:     time.Now,
	}
}

// WithAudit records role mutations on sink.
func (s *RoleService) WithAudit(sink port.AuditSink) *RoleService {
	s.audit.sink = sink
	return s
}

// CreateRole creates an active role. A default role replaces the previous default atomically.
func (s *RoleService) CreateRole(ctx context.Context, tenant domain.Tenant, actor domain.Actor, input CreateRoleInput) (*domain.Role, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, invalidInput("role name is required")
	}

	permissionIDs, err := s.visiblePermissions(ctx, tenant, input.PermissionIDs)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	role := domain.Role{
		ID:        uuid.NewString(),
		Name:      name,
		IsActive:  true,
		IsDefault: input.IsDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if input.Description != nil {
		if trimmed := strings.TrimSpace(*input.Description); trimmed != "" {
			role.Description = &trimmed
		}
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		if role.IsDefault {
			if err := repos.Roles.ClearDefault(ctx, tenant); err != nil {
				return fmt.Errorf("clear default role: %w", err)
			}
		}
		if err := repos.Roles.Create(ctx, tenant, role); err != nil {
			return fmt.Errorf("create role: %w", err)
		}
		if len(permissionIDs) > 0 {
			if _, err := repos.Roles.GrantPermissions(ctx, tenant, role.ID, permissionIDs); err != nil {
				return fmt.Errorf("grant permissions: %w", err)
			}
		}
		_, err := s.outbox.Enqueue(ctx, repos.Outbox, tenant, domain.EventRoleCreated, roleEventPayload{
			RoleID:    role.ID,
			Name:      role.Name,
			IsDefault: role.IsDefault,
			IsActive:  role.IsActive,
		}, actor.CorrelationID)
		return err
	})

	s.recordRole(ctx, "role.create", tenant, actor, role.ID, err, map[string]any{"name": name, "permissions": len(permissionIDs)})
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// SetDefaultRole makes roleID the only default role of the tenant.
func (s *RoleService) SetDefaultRole(ctx context.Context, tenant domain.Tenant, actor domain.Actor, roleID string) error {
	if err := tenant.Validate(); err != nil {
		return err
	}

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		role, err := loadRole(ctx, repos.Roles, tenant, roleID)
		if err != nil {
			return err
		}
		if !role.IsActive {
			return invalidInput("inactive role %s cannot be the default", roleID)
		}
		if err := repos.Roles.ClearDefault(ctx, tenant); err != nil {
			return fmt.Errorf("clear default role: %w", err)
		}
		if err := repos.Roles.SetDefault(ctx, tenant, roleID); err != nil {
			return fmt.Errorf("set default role: %w", err)
		}
		_, err = s.outbox.Enqueue(ctx, repos.Outbox, tenant, domain.EventRoleDefaultChanged, roleEventPayload{
			RoleID:    role.ID,
			Name:      role.Name,
			IsDefault: true,
			IsActive:  role.IsActive,
		}, actor.CorrelationID)
		return err
	})

	s.recordRole(ctx, "role.set_default", tenant, actor, roleID, err, nil)
	return err
}

// SetRoleActive toggles a role. The default role cannot be deactivated.
func (s *RoleService) SetRoleActive(ctx context.Context, tenant domain.Tenant, actor domain.Actor, roleID string, active bool) error {
	if err := tenant.Validate(); err != nil {
		return err
	}

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		role, err := loadRole(ctx, repos.Roles, tenant, roleID)
		if err != nil {
			return err
		}
		if !active && role.IsDefault {
			return fmt.Errorf("default role %s cannot be deactivated: %w", roleID, domain.ErrConflict)
		}
		if role.IsActive == active {
			return nil
		}
		if err := repos.Roles.SetActive(ctx, tenant, roleID, active); err != nil {
			return fmt.Errorf("set role active: %w", err)
		}
		_, err = s.outbox.Enqueue(ctx, repos.Outbox, tenant, domain.EventRoleStatusChanged, roleEventPayload{
			RoleID:    role.ID,
			Name:      role.Name,
			IsDefault: role.IsDefault,
			IsActive:  active,
		}, actor.CorrelationID)
		return err
	})

	s.recordRole(ctx, "role.set_active", tenant, actor, roleID, err, map[string]any{"active": active})
	return err
}

// GrantPermissions grants visible permissions to a role and returns how many were newly granted.
func (s *RoleService) GrantPermissions(ctx context.Context, tenant domain.Tenant, actor domain.Actor, roleID string, permissionIDs []string) (int, error) {
	return s.changePermissions(ctx, tenant, actor, roleID, permissionIDs, true)
}

// RevokePermissions removes grants from a role and returns how many were removed.
func (s *RoleService) RevokePermissions(ctx context.Context, tenant domain.Tenant, actor domain.Actor, roleID string, permissionIDs []string) (int, error) {
	return s.changePermissions(ctx, tenant, actor, roleID, permissionIDs, false)
}

func (s *RoleService) changePermissions(ctx context.Context, tenant domain.Tenant, actor domain.Actor, roleID string, permissionIDs []string, grant bool) (int, error) {
	if err := tenant.Validate(); err != nil {
		return 0, err
	}
	if len(permissionIDs) == 0 {
		return 0, invalidInput("at least one permission id is required")
	}

	ids, err := s.visiblePermissions(ctx, tenant, permissionIDs)
	if err != nil {
		return 0, err
	}

	action := "role.revoke_permissions"
	if grant {
		action = "role.grant_permissions"
	}

	var affected int
	err = s.uow.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		if _, err := loadRole(ctx, repos.Roles, tenant, roleID); err != nil {
			return err
		}

		payload := rolePermissionsPayload{RoleID: roleID}
		var err error
		if grant {
			affected, err = repos.Roles.GrantPermissions(ctx, tenant, roleID, ids)
			payload.Granted = ids
		} else {
			affected, err = repos.Roles.RevokePermissions(ctx, tenant, roleID, ids)
			payload.Revoked = ids
		}
		if err != nil {
			return fmt.Errorf("%s: %w", action, err)
		}
		if affected == 0 {
			return nil
		}
		payload.AffectedCount = affected

		_, err = s.outbox.Enqueue(ctx, repos.Outbox, tenant, domain.EventRolePermissionsChanged, payload, actor.CorrelationID)
		return err
	})

	s.recordRole(ctx, action, tenant, actor, roleID, err, map[string]any{"requested": len(ids), "affected": affected})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// AssignRole assigns roleID to userID.
func (s *RoleService) AssignRole(ctx context.Context, tenant domain.Tenant, actor domain.Actor, userID, roleID string) error {
	if err := tenant.Validate(); err != nil {
		return err
	}

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		if err := ensureUser(ctx, repos.Users, tenant, userID); err != nil {
			return err
		}
		if _, err := loadRole(ctx, repos.Roles, tenant, roleID); err != nil {
			return err
		}
		if err := repos.Roles.AssignToUser(ctx, tenant, userID, roleID); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrRoleAlreadyAssigned
			}
			return fmt.Errorf("assign role: %w", err)
		}
		_, err := s.outbox.Enqueue(ctx, repos.Outbox, tenant, domain.EventUserRoleAssigned,
			userRolePayload{UserID: userID, RoleID: roleID}, actor.CorrelationID)
		return err
	})

	s.recordRole(ctx, "user.assign_role", tenant, actor, roleID, err, map[string]any{"user_id": userID})
	return err
}

// RemoveRole removes roleID from userID. The last role of a user cannot be removed.
func (s *RoleService) RemoveRole(ctx context.Context, tenant domain.Tenant, actor domain.Actor, userID, roleID string) error {
	if err := tenant.Validate(); err != nil {
		return err
	}

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos port.TxRepositories) error {
		if err := ensureUser(ctx, repos.Users, tenant, userID); err != nil {
			return err
		}

		assigned, err := repos.Roles.ListByUser(ctx, tenant, userID)
		if err != nil {
			return fmt.Errorf("list user roles: %w", err)
		}
		if !containsRole(assigned, roleID) {
			return fmt.Errorf("role %s not assigned to user: %w", roleID, domain.ErrNotFound)
		}

		if err := repos.Roles.RemoveFromUser(ctx, tenant, userID, roleID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrLastRole
			}
			return fmt.Errorf("remove role: %w", err)
		}
		_, err = s.outbox.Enqueue(ctx, repos.Outbox, tenant, domain.EventUserRoleRemoved,
			userRolePayload{UserID: userID, RoleID: roleID}, actor.CorrelationID)
		return err
	})

	s.recordRole(ctx, "user.remove_role", tenant, actor, roleID, err, map[string]any{"user_id": userID})
	return err
}

// ListUserRoles returns every role assigned to userID.
func (s *RoleService) ListUserRoles(ctx context.Context, tenant domain.Tenant, userID string) ([]domain.Role, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	return s.roles.ListByUser(ctx, tenant, userID)
}

// visiblePermissions de-duplicates ids and rejects any the tenant cannot see.
func (s *RoleService) visiblePermissions(ctx context.Context, tenant domain.Tenant, ids []string) ([]string, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return nil, nil
	}

	visible, err := s.catalog.FilterVisiblePermissions(ctx, tenant, unique)
	if err != nil {
		return nil, fmt.Errorf("filter visible permissions: %w", err)
	}
	if len(visible) == len(unique) {
		return unique, nil
	}

	found := make(map[string]struct{}, len(visible))
	for _, id := range visible {
		found[id] = struct{}{}
	}
	missing := make([]string, 0, len(unique)-len(visible))
	for _, id := range unique {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return nil, fmt.Errorf("permissions %s: %w", strings.Join(missing, ","), domain.ErrNotFound)
}

func (s *RoleService) recordRole(ctx context.Context, action string, tenant domain.Tenant, actor domain.Actor, roleID string, err error, details map[string]any) {
	if err != nil {
		if details == nil {
			details = map[string]any{}
		}
		details["error"] = err.Error()
	}
	s.audit.record(ctx, domain.AuditEntry{
		Action:     action,
		EntityType: "role",
		EntityID:   roleID,
		Tenant:     tenant,
		ActorID:    actor.UserID,
		Success:    err == nil,
		Details:    details,
	})
}

func loadRole(ctx context.Context, roles port.RoleRepository, tenant domain.Tenant, roleID string) (*domain.Role, error) {
	if strings.TrimSpace(roleID) == "" {
		return nil, invalidInput("role id is required")
	}
	role, err := roles.GetByID(ctx, tenant, roleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("load role: %w", err)
	}
	return role, nil
}

func ensureUser(ctx context.Context, users port.UserRepository, tenant domain.Tenant, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return invalidInput("user id is required")
	}
	if _, err := users.GetByID(ctx, tenant, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}
	return nil
}

func containsRole(roles []domain.Role, roleID string) bool {
	for _, role := range roles {
		if role.ID == roleID {
			return true
		}
	}
	return false
}
