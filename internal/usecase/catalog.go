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

// CreateModuleInput describes a navigable module.
type CreateModuleInput struct {
	Name        string
	Path        string
	Description *string
}

// ActionInput describes an action code and its display name.
type ActionInput struct {
	Code string
	Name string
}

// CatalogService maintains modules, actions and applicability edges.
//
// Create calls take an owner tag that may be PUBLIC; that path is reserved for the
// catalog administrator. Update and delete calls take a login tenant and refuse PUBLIC
// entries.
type CatalogService struct {
	catalog port.CatalogRepository
	audit   auditRecorder
	logger  *zap.Logger
	now     func() time.Time
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(catalog port.CatalogRepository, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		catalog: catalog,
		audit:   newAuditRecorder(nil, logger),
		logger:  logger,
		now:     time.Now,
	}
}

// WithAudit records catalog mutations on sink.
func (s *CatalogService) WithAudit(sink port.AuditSink) *CatalogService {
	s.audit.sink = sink
	return s
}

// ListModules returns the modules visible to tenant.
func (s *CatalogService) ListModules(ctx context.Context, tenant domain.Tenant) ([]domain.Module, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	return s.catalog.ListVisibleModules(ctx, tenant)
}

// CreateModule registers a module owned by tag.
func (s *CatalogService) CreateModule(ctx context.Context, tag domain.Tenant, actor domain.Actor, input CreateModuleInput) (*domain.Module, error) {
	if err := validateCatalogTag(tag); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, invalidInput("module name is required")
	}
	path := strings.TrimSpace(input.Path)
	if !strings.HasPrefix(path, "/") {
		return nil, invalidInput("module path %q must start with /", path)
	}

	module := domain.Module{
		ID:        uuid.NewString(),
		Name:      name,
		Path:      path,
		System:    tag,
		CreatedAt: s.now().UTC(),
	}
	if input.Description != nil {
		if trimmed := strings.TrimSpace(*input.Description); trimmed != "" {
			module.Description = &trimmed
		}
	}

	err := s.catalog.CreateModule(ctx, module)
	s.record(ctx, "catalog.create_module", "module", module.ID, tag, actor, err)
	if err != nil {
		return nil, fmt.Errorf("create module: %w", err)
	}
	return &module, nil
}

// CreateAction registers an action owned by tag. Codes are upper-cased.
func (s *CatalogService) CreateAction(ctx context.Context, tag domain.Tenant, actor domain.Actor, input ActionInput) (*domain.Action, error) {
	if err := validateCatalogTag(tag); err != nil {
		return nil, err
	}
	code, name, err := normalizeAction(input)
	if err != nil {
		return nil, err
	}

	action := domain.Action{
		ID:        uuid.NewString(),
		Code:      code,
		Name:      name,
		System:    tag,
		CreatedAt: s.now().UTC(),
	}

	err = s.catalog.CreateAction(ctx, action)
	s.record(ctx, "catalog.create_action", "action", action.ID, tag, actor, err)
	if err != nil {
		return nil, fmt.Errorf("create action: %w", err)
	}
	return &action, nil
}

// LinkPermission declares that actionID applies to moduleID. Both must be visible to tag;
// a PUBLIC edge may only join PUBLIC entries.
func (s *CatalogService) LinkPermission(ctx context.Context, tag domain.Tenant, actor domain.Actor, moduleID, actionID string) (*domain.Permission, error) {
	if err := validateCatalogTag(tag); err != nil {
		return nil, err
	}

	module, err := s.catalog.GetModule(ctx, moduleID)
	if err != nil {
		return nil, catalogLookupError("module", moduleID, err)
	}
	action, err := s.catalog.GetAction(ctx, actionID)
	if err != nil {
		return nil, catalogLookupError("action", actionID, err)
	}
	if !tagSees(tag, module.System) {
		return nil, fmt.Errorf("module %s: %w", moduleID, domain.ErrNotFound)
	}
	if !tagSees(tag, action.System) {
		return nil, fmt.Errorf("action %s: %w", actionID, domain.ErrNotFound)
	}

	permission := domain.Permission{
		ID:        uuid.NewString(),
		ModuleID:  module.ID,
		ActionID:  action.ID,
		CreatedAt: s.now().UTC(),
	}
	err = s.catalog.CreatePermission(ctx, permission)
	s.record(ctx, "catalog.link_permission", "permission", permission.ID, tag, actor, err)
	if err != nil {
		return nil, fmt.Errorf("create permission: %w", err)
	}
	return &permission, nil
}

// UpdateAction renames an action owned by tenant.
func (s *CatalogService) UpdateAction(ctx context.Context, tenant domain.Tenant, actor domain.Actor, actionID string, input ActionInput) (*domain.Action, error) {
	action, err := s.ownedAction(ctx, tenant, actionID)
	if err != nil {
		return nil, err
	}
	code, name, err := normalizeAction(input)
	if err != nil {
		return nil, err
	}
	action.Code = code
	action.Name = name

	err = s.catalog.UpdateAction(ctx, *action)
	s.record(ctx, "catalog.update_action", "action", actionID, tenant, actor, err)
	if err != nil {
		return nil, fmt.Errorf("update action: %w", err)
	}
	return action, nil
}

// DeleteAction removes an action owned by tenant together with its edges and grants.
func (s *CatalogService) DeleteAction(ctx context.Context, tenant domain.Tenant, actor domain.Actor, actionID string) error {
	if _, err := s.ownedAction(ctx, tenant, actionID); err != nil {
		return err
	}
	err := s.catalog.DeleteAction(ctx, actionID)
	s.record(ctx, "catalog.delete_action", "action", actionID, tenant, actor, err)
	if err != nil {
		return fmt.Errorf("delete action: %w", err)
	}
	return nil
}

func (s *CatalogService) ownedAction(ctx context.Context, tenant domain.Tenant, actionID string) (*domain.Action, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	action, err := s.catalog.GetAction(ctx, actionID)
	if err != nil {
		return nil, catalogLookupError("action", actionID, err)
	}
	switch action.System {
	case domain.TenantPublic:
		return nil, ErrImmutableEntity
	case tenant:
		return action, nil
	default:
		return nil, fmt.Errorf("action %s: %w", actionID, domain.ErrNotFound)
	}
}

func (s *CatalogService) record(ctx context.Context, action, entityType, id string, tag domain.Tenant, actor domain.Actor, err error) {
	entry := domain.AuditEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   id,
		Tenant:     tag,
		ActorID:    actor.UserID,
		Success:    err == nil,
	}
	if err != nil {
		entry.Details = map[string]any{"error": err.Error()}
	}
	s.audit.record(ctx, entry)
}

func validateCatalogTag(tag domain.Tenant) error {
	if tag == domain.TenantPublic {
		return nil
	}
	return tag.Validate()
}

func tagSees(tag, owner domain.Tenant) bool {
	if tag == domain.TenantPublic {
		return owner == domain.TenantPublic
	}
	return tag.Sees(owner)
}

func normalizeAction(input ActionInput) (string, string, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return "", "", invalidInput("action code is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return "", "", invalidInput("action name is required")
	}
	return code, name, nil
}

func catalogLookupError(kind, id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	return fmt.Errorf("load %s: %w", kind, err)
}
