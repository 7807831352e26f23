package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/core/port"
	"github.com/arklim/tenant-access/internal/infra/security"
	"github.com/arklim/tenant-access/internal/repository"
)

// memoryStore keeps every tenant partition and the shared catalog in maps.
// WithinTx snapshots the whole store and restores it when fn fails.
type memoryStore struct {
	users     map[domain.Tenant]map[string]domain.User
	roles     map[domain.Tenant]map[string]domain.Role
	userRoles map[domain.Tenant]map[string]map[string]struct{}
	grants    map[domain.Tenant]map[string]map[string]struct{}
	tokens    map[domain.Tenant]map[string]domain.RefreshToken
	outbox    map[domain.Tenant][]domain.OutboxMessage

	modules     map[string]domain.Module
	actions     map[string]domain.Action
	permissions map[string]domain.Permission

	txCount int
	// beforeRevoke runs ahead of every conditional token revoke, standing in for a concurrent writer.
	beforeRevoke func(tenant domain.Tenant, id string)
}

func newMemoryStore() *memoryStore {
	s := &memoryStore{
		users:       map[domain.Tenant]map[string]domain.User{},
		roles:       map[domain.Tenant]map[string]domain.Role{},
		userRoles:   map[domain.Tenant]map[string]map[string]struct{}{},
		grants:      map[domain.Tenant]map[string]map[string]struct{}{},
		tokens:      map[domain.Tenant]map[string]domain.RefreshToken{},
		outbox:      map[domain.Tenant][]domain.OutboxMessage{},
		modules:     map[string]domain.Module{},
		actions:     map[string]domain.Action{},
		permissions: map[string]domain.Permission{},
	}
	for _, tenant := range domain.LoginTenants() {
		s.users[tenant] = map[string]domain.User{}
		s.roles[tenant] = map[string]domain.Role{}
		s.userRoles[tenant] = map[string]map[string]struct{}{}
		s.grants[tenant] = map[string]map[string]struct{}{}
		s.tokens[tenant] = map[string]domain.RefreshToken{}
	}
	return s
}

func (s *memoryStore) snapshot() *memoryStore {
	c := newMemoryStore()
	for tenant := range s.users {
		c.users[tenant] = cloneMap(s.users[tenant])
		c.roles[tenant] = cloneMap(s.roles[tenant])
		c.tokens[tenant] = cloneMap(s.tokens[tenant])
		c.userRoles[tenant] = cloneSets(s.userRoles[tenant])
		c.grants[tenant] = cloneSets(s.grants[tenant])
		c.outbox[tenant] = append([]domain.OutboxMessage(nil), s.outbox[tenant]...)
	}
	c.modules = cloneMap(s.modules)
	c.actions = cloneMap(s.actions)
	c.permissions = cloneMap(s.permissions)
	return c
}

func (s *memoryStore) restore(from *memoryStore) {
	s.users, s.roles, s.tokens = from.users, from.roles, from.tokens
	s.userRoles, s.grants, s.outbox = from.userRoles, from.grants, from.outbox
	s.modules, s.actions, s.permissions = from.modules, from.actions, from.permissions
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneSets(in map[string]map[string]struct{}) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(in))
	for k, v := range in {
		out[k] = cloneMap(v)
	}
	return out
}

func (s *memoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.TxRepositories) error) error {
	s.txCount++
	saved := s.snapshot()
	if err := fn(ctx, s.repos()); err != nil {
		s.restore(saved)
		return err
	}
	return nil
}

func (s *memoryStore) repos() port.TxRepositories {
	return port.TxRepositories{
		Users:  &memUsers{s},
		Roles:  &memRoles{s},
		Tokens: &memTokens{s},
		Outbox: &memOutbox{store: s},
	}
}

// seeding helpers

func (s *memoryStore) addModule(id, name, path string, tag domain.Tenant) {
	s.modules[id] = domain.Module{ID: id, Name: name, Path: path, System: tag}
}

func (s *memoryStore) addAction(id, code, name string, tag domain.Tenant) {
	s.actions[id] = domain.Action{ID: id, Code: code, Name: name, System: tag}
}

func (s *memoryStore) addPermission(id, moduleID, actionID string) {
	s.permissions[id] = domain.Permission{ID: id, ModuleID: moduleID, ActionID: actionID}
}

func (s *memoryStore) addRole(tenant domain.Tenant, id, name string, active, isDefault bool) {
	s.roles[tenant][id] = domain.Role{ID: id, Name: name, IsActive: active, IsDefault: isDefault}
}

func (s *memoryStore) addUser(tenant domain.Tenant, user domain.User) {
	user.Tenant = tenant
	s.users[tenant][user.ID] = user
}

func (s *memoryStore) assign(tenant domain.Tenant, userID string, roleIDs ...string) {
	set, ok := s.userRoles[tenant][userID]
	if !ok {
		set = map[string]struct{}{}
		s.userRoles[tenant][userID] = set
	}
	for _, id := range roleIDs {
		set[id] = struct{}{}
	}
}

func (s *memoryStore) grant(tenant domain.Tenant, roleID string, permissionIDs ...string) {
	set, ok := s.grants[tenant][roleID]
	if !ok {
		set = map[string]struct{}{}
		s.grants[tenant][roleID] = set
	}
	for _, id := range permissionIDs {
		set[id] = struct{}{}
	}
}

func (s *memoryStore) events(tenant domain.Tenant) []string {
	names := make([]string, 0, len(s.outbox[tenant]))
	for _, m := range s.outbox[tenant] {
		names = append(names, m.EventName)
	}
	return names
}

func (s *memoryStore) visible(tenant domain.Tenant, p domain.Permission) (domain.Module, domain.Action, bool) {
	m, okM := s.modules[p.ModuleID]
	a, okA := s.actions[p.ActionID]
	return m, a, okM && okA && tenant.Sees(m.System) && tenant.Sees(a.System)
}

// users

type memUsers struct{ s *memoryStore }

func (r *memUsers) Create(_ context.Context, tenant domain.Tenant, user domain.User) error {
	for _, existing := range r.s.users[tenant] {
		if existing.Email == user.Email || existing.DocumentNumber == user.DocumentNumber {
			return repository.ErrConflict
		}
	}
	user.Tenant = tenant
	r.s.users[tenant][user.ID] = user
	return nil
}

func (r *memUsers) GetByID(_ context.Context, tenant domain.Tenant, id string) (*domain.User, error) {
	if user, ok := r.s.users[tenant][id]; ok {
		return &user, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memUsers) GetByEmail(_ context.Context, tenant domain.Tenant, email string) (*domain.User, error) {
	for _, user := range r.s.users[tenant] {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUsers) MarkEmailVerified(_ context.Context, tenant domain.Tenant, id string) error {
	user, ok := r.s.users[tenant][id]
	if !ok {
		return repository.ErrNotFound
	}
	user.EmailVerified = true
	user.VerificationCode = nil
	r.s.users[tenant][id] = user
	return nil
}

func (r *memUsers) SetActive(_ context.Context, tenant domain.Tenant, id string, active bool) error {
	user, ok := r.s.users[tenant][id]
	if !ok {
		return repository.ErrNotFound
	}
	user.IsActive = active
	r.s.users[tenant][id] = user
	return nil
}

func (r *memUsers) UpdatePasswordHash(_ context.Context, tenant domain.Tenant, id, hash string) error {
	user, ok := r.s.users[tenant][id]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = hash
	r.s.users[tenant][id] = user
	return nil
}

// roles

type memRoles struct{ s *memoryStore }

func (r *memRoles) Create(_ context.Context, tenant domain.Tenant, role domain.Role) error {
	for _, existing := range r.s.roles[tenant] {
		if existing.Name == role.Name {
			return repository.ErrConflict
		}
		if role.IsDefault && existing.IsDefault {
			return repository.ErrConflict
		}
	}
	r.s.roles[tenant][role.ID] = role
	return nil
}

func (r *memRoles) GetByID(_ context.Context, tenant domain.Tenant, id string) (*domain.Role, error) {
	if role, ok := r.s.roles[tenant][id]; ok {
		return &role, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memRoles) GetDefault(_ context.Context, tenant domain.Tenant) (*domain.Role, error) {
	for _, role := range r.s.roles[tenant] {
		if role.IsDefault {
			found := role
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memRoles) ClearDefault(_ context.Context, tenant domain.Tenant) error {
	for id, role := range r.s.roles[tenant] {
		role.IsDefault = false
		r.s.roles[tenant][id] = role
	}
	return nil
}

func (r *memRoles) SetDefault(_ context.Context, tenant domain.Tenant, id string) error {
	role, ok := r.s.roles[tenant][id]
	if !ok {
		return repository.ErrNotFound
	}
	for otherID, other := range r.s.roles[tenant] {
		if otherID != id && other.IsDefault {
			return repository.ErrConflict
		}
	}
	role.IsDefault = true
	r.s.roles[tenant][id] = role
	return nil
}

func (r *memRoles) SetActive(_ context.Context, tenant domain.Tenant, id string, active bool) error {
	role, ok := r.s.roles[tenant][id]
	if !ok {
		return repository.ErrNotFound
	}
	role.IsActive = active
	r.s.roles[tenant][id] = role
	return nil
}

func (r *memRoles) ListByUser(_ context.Context, tenant domain.Tenant, userID string) ([]domain.Role, error) {
	roles := make([]domain.Role, 0)
	for id := range r.s.userRoles[tenant][userID] {
		if role, ok := r.s.roles[tenant][id]; ok {
			roles = append(roles, role)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, nil
}

func (r *memRoles) CountActiveForUser(ctx context.Context, tenant domain.Tenant, userID string) (int, error) {
	roles, _ := r.ListByUser(ctx, tenant, userID)
	return len(activeRoles(roles)), nil
}

func (r *memRoles) AssignToUser(_ context.Context, tenant domain.Tenant, userID, roleID string) error {
	if _, ok := r.s.users[tenant][userID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := r.s.userRoles[tenant][userID][roleID]; ok {
		return repository.ErrConflict
	}
	r.s.assign(tenant, userID, roleID)
	return nil
}

func (r *memRoles) RemoveFromUser(_ context.Context, tenant domain.Tenant, userID, roleID string) error {
	set := r.s.userRoles[tenant][userID]
	if _, ok := set[roleID]; !ok || len(set) <= 1 {
		return repository.ErrNotFound
	}
	delete(set, roleID)
	return nil
}

func (r *memRoles) GrantPermissions(_ context.Context, tenant domain.Tenant, roleID string, ids []string) (int, error) {
	before := len(r.s.grants[tenant][roleID])
	r.s.grant(tenant, roleID, ids...)
	return len(r.s.grants[tenant][roleID]) - before, nil
}

func (r *memRoles) RevokePermissions(_ context.Context, tenant domain.Tenant, roleID string, ids []string) (int, error) {
	removed := 0
	for _, id := range ids {
		if _, ok := r.s.grants[tenant][roleID][id]; ok {
			delete(r.s.grants[tenant][roleID], id)
			removed++
		}
	}
	return removed, nil
}

func (r *memRoles) ListGrantedPermissions(ctx context.Context, tenant domain.Tenant, userID string) ([]domain.GrantedPermission, error) {
	roles, _ := r.ListByUser(ctx, tenant, userID)
	seen := map[domain.GrantedPermission]struct{}{}
	out := make([]domain.GrantedPermission, 0)
	for _, role := range activeRoles(roles) {
		for permissionID := range r.s.grants[tenant][role.ID] {
			m, a, ok := r.s.visible(tenant, r.s.permissions[permissionID])
			if !ok {
				continue
			}
			pair := domain.GrantedPermission{ModulePath: m.Path, ActionCode: a.Code}
			if _, dup := seen[pair]; dup {
				continue
			}
			seen[pair] = struct{}{}
			out = append(out, pair)
		}
	}
	return out, nil
}

// tokens

type memTokens struct{ s *memoryStore }

func (r *memTokens) Create(_ context.Context, tenant domain.Tenant, token domain.RefreshToken) error {
	if _, ok := r.s.tokens[tenant][token.ID]; ok {
		return repository.ErrConflict
	}
	r.s.tokens[tenant][token.ID] = token
	return nil
}

func (r *memTokens) ListActiveByUser(_ context.Context, tenant domain.Tenant, userID string, at time.Time, limit int) ([]domain.RefreshToken, error) {
	out := make([]domain.RefreshToken, 0)
	for _, token := range r.s.tokens[tenant] {
		if token.UserID == userID && !token.Revoked && token.ExpiresAt.After(at) {
			out = append(out, token)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memTokens) Revoke(_ context.Context, tenant domain.Tenant, id string) error {
	if r.s.beforeRevoke != nil {
		r.s.beforeRevoke(tenant, id)
	}
	token, ok := r.s.tokens[tenant][id]
	if !ok || token.Revoked {
		return repository.ErrNotFound
	}
	token.Revoked = true
	r.s.tokens[tenant][id] = token
	return nil
}

func (r *memTokens) RevokeAllForUser(_ context.Context, tenant domain.Tenant, userID string) (int, error) {
	count := 0
	for id, token := range r.s.tokens[tenant] {
		if token.UserID == userID && !token.Revoked {
			token.Revoked = true
			r.s.tokens[tenant][id] = token
			count++
		}
	}
	return count, nil
}

// outbox

type memOutbox struct {
	store      *memoryStore
	listErr    map[domain.Tenant]error
	processErr error
}

func (r *memOutbox) Append(_ context.Context, tenant domain.Tenant, message domain.OutboxMessage) error {
	r.store.outbox[tenant] = append(r.store.outbox[tenant], message)
	return nil
}

func (r *memOutbox) ListPending(_ context.Context, tenant domain.Tenant, limit int) ([]domain.OutboxMessage, error) {
	if err := r.listErr[tenant]; err != nil {
		return nil, err
	}
	out := make([]domain.OutboxMessage, 0)
	for _, m := range r.store.outbox[tenant] {
		if m.Pending() {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memOutbox) MarkProcessed(_ context.Context, tenant domain.Tenant, id string, at time.Time) error {
	if r.processErr != nil {
		return r.processErr
	}
	return r.update(tenant, id, func(m *domain.OutboxMessage) { m.ProcessedAt = &at })
}

func (r *memOutbox) MarkFailed(_ context.Context, tenant domain.Tenant, id string, reason string) error {
	return r.update(tenant, id, func(m *domain.OutboxMessage) {
		m.Attempts++
		m.LastError = &reason
	})
}

func (r *memOutbox) update(tenant domain.Tenant, id string, fn func(*domain.OutboxMessage)) error {
	for i := range r.store.outbox[tenant] {
		if r.store.outbox[tenant][i].ID == id {
			fn(&r.store.outbox[tenant][i])
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *memOutbox) message(tenant domain.Tenant, id string) domain.OutboxMessage {
	for _, m := range r.store.outbox[tenant] {
		if m.ID == id {
			return m
		}
	}
	return domain.OutboxMessage{}
}

// catalog

type memCatalog struct{ s *memoryStore }

func (r *memCatalog) CreateModule(_ context.Context, module domain.Module) error {
	for _, existing := range r.s.modules {
		if existing.Path == module.Path || (existing.Name == module.Name && existing.System == module.System) {
			return repository.ErrConflict
		}
	}
	r.s.modules[module.ID] = module
	return nil
}

func (r *memCatalog) CreateAction(_ context.Context, action domain.Action) error {
	for _, existing := range r.s.actions {
		if existing.Code == action.Code && existing.System == action.System {
			return repository.ErrConflict
		}
	}
	r.s.actions[action.ID] = action
	return nil
}

func (r *memCatalog) CreatePermission(_ context.Context, permission domain.Permission) error {
	for _, existing := range r.s.permissions {
		if existing.ModuleID == permission.ModuleID && existing.ActionID == permission.ActionID {
			return repository.ErrConflict
		}
	}
	r.s.permissions[permission.ID] = permission
	return nil
}

func (r *memCatalog) GetModule(_ context.Context, id string) (*domain.Module, error) {
	if m, ok := r.s.modules[id]; ok {
		return &m, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memCatalog) GetAction(_ context.Context, id string) (*domain.Action, error) {
	if a, ok := r.s.actions[id]; ok {
		return &a, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memCatalog) UpdateAction(_ context.Context, action domain.Action) error {
	if _, ok := r.s.actions[action.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.actions[action.ID] = action
	return nil
}

func (r *memCatalog) DeleteAction(_ context.Context, id string) error {
	if _, ok := r.s.actions[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.actions, id)
	for pid, p := range r.s.permissions {
		if p.ActionID == id {
			delete(r.s.permissions, pid)
		}
	}
	return nil
}

func (r *memCatalog) ListVisibleModules(_ context.Context, tenant domain.Tenant) ([]domain.Module, error) {
	out := make([]domain.Module, 0)
	for _, m := range r.s.modules {
		if tenant.Sees(m.System) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (r *memCatalog) ListApplicable(_ context.Context, tenant domain.Tenant) ([]domain.ApplicablePermission, error) {
	out := make([]domain.ApplicablePermission, 0)
	for _, p := range r.s.permissions {
		m, a, ok := r.s.visible(tenant, p)
		if !ok {
			continue
		}
		out = append(out, domain.ApplicablePermission{
			PermissionID: p.ID,
			ModulePath:   m.Path,
			ModuleName:   m.Name,
			ActionCode:   a.Code,
			ActionName:   a.Name,
		})
	}
	return out, nil
}

func (r *memCatalog) FilterVisiblePermissions(_ context.Context, tenant domain.Tenant, ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		p, ok := r.s.permissions[id]
		if !ok {
			continue
		}
		if _, _, visible := r.s.visible(tenant, p); visible {
			out = append(out, id)
		}
	}
	return out, nil
}

// cache

type memCache struct {
	entries map[string]domain.PermissionMatrix
	ttls    map[string]time.Duration
	setErr  error
	gets    int
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]domain.PermissionMatrix{}, ttls: map[string]time.Duration{}}
}

func cacheKey(tenant domain.Tenant, userID string) string {
	return tenant.String() + ":" + userID
}

func (c *memCache) Set(_ context.Context, tenant domain.Tenant, userID string, matrix domain.PermissionMatrix, ttl time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[cacheKey(tenant, userID)] = matrix
	c.ttls[cacheKey(tenant, userID)] = ttl
	return nil
}

func (c *memCache) Get(_ context.Context, tenant domain.Tenant, userID string) (domain.PermissionMatrix, error) {
	c.gets++
	if m, ok := c.entries[cacheKey(tenant, userID)]; ok {
		return m, nil
	}
	return nil, repository.ErrNotFound
}

func (c *memCache) Delete(_ context.Context, tenant domain.Tenant, userID string) error {
	delete(c.entries, cacheKey(tenant, userID))
	return nil
}

// collaborators

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	return "plain$" + password, nil
}

func (plainHasher) Verify(password, encoded string) (bool, error) {
	if strings.HasPrefix(encoded, "legacy$") {
		return encoded == "legacy$"+password, nil
	}
	if !strings.HasPrefix(encoded, "plain$") {
		return false, errors.New("unsupported hash")
	}
	return encoded == "plain$"+password, nil
}

func (plainHasher) NeedsRehash(encoded string) bool {
	return !strings.HasPrefix(encoded, "plain$")
}

type recordingAudit struct {
	entries []domain.AuditEntry
	err     error
}

func (a *recordingAudit) Record(_ context.Context, entry domain.AuditEntry) error {
	a.entries = append(a.entries, entry)
	return a.err
}

func (a *recordingAudit) actions() []string {
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

// fixture wires every service over one memoryStore.
type fixture struct {
	store    *memoryStore
	cache    *memCache
	audit    *recordingAudit
	outbox   *EventOutbox
	resolver *PermissionResolver
	sessions *SessionService
	authz    *Authorizer
	auth     *AuthService
	roles    *RoleService
	catalog  *CatalogService
	access   *security.JWTManager
	refresh  *security.JWTManager
}

const testIssuer = "tenant-access-test"

func newFixture(t *testing.T) *fixture {
	t.Helper()

	accessKeys, err := security.NewEphemeralKeyProvider("access-test")
	if err != nil {
		t.Fatalf("NewEphemeralKeyProvider returned error: %v", err)
	}
	refreshKeys, err := security.NewEphemeralKeyProvider("refresh-test")
	if err != nil {
		t.Fatalf("NewEphemeralKeyProvider returned error: %v", err)
	}

	store := newMemoryStore()
	cache := newMemCache()
	audit := &recordingAudit{}
	catalog := &memCatalog{store}
	roles := &memRoles{store}

	f := &fixture{
		store:   store,
		cache:   cache,
		audit:   audit,
		outbox:  NewEventOutbox("tenant-access", "test"),
		access:  security.NewJWTManager(accessKeys).WithIssuer(testIssuer),
		refresh: security.NewJWTManager(refreshKeys).WithIssuer(testIssuer),
	}
	f.resolver = NewPermissionResolver(catalog, roles)
	f.sessions = NewSessionService(f.access, f.refresh, store, &memTokens{store}, f.resolver, cache, SessionConfig{}, nil).WithAudit(audit)
	f.authz = NewAuthorizer(roles, cache, nil)
	f.auth = NewAuthService(store, &memUsers{store}, roles, plainHasher{}, f.sessions, f.outbox, nil).WithAudit(audit)
	f.roles = NewRoleService(store, roles, catalog, f.outbox, nil).WithAudit(audit)
	f.catalog = NewCatalogService(catalog, nil).WithAudit(audit)
	return f
}

// seedSPD builds the catalog and roles used across tests:
// PUBLIC /dashboard READ, SPD /users READ+CREATE, SIS /grades READ.
func (f *fixture) seedSPD() {
	s := f.store
	s.addModule("mod-dashboard", "Dashboard", "/dashboard", domain.TenantPublic)
	s.addModule("mod-users", "Users", "/users", domain.TenantSPD)
	s.addModule("mod-grades", "Grades", "/grades", domain.TenantSIS)
	s.addModule("mod-reports", "Reports", "/reports", domain.TenantSPD)

	s.addAction("act-read", "READ", "Read", domain.TenantPublic)
	s.addAction("act-create", "CREATE", "Create", domain.TenantPublic)
	s.addAction("act-approve", "APPROVE", "Approve", domain.TenantSIS)

	s.addPermission("perm-dashboard-read", "mod-dashboard", "act-read")
	s.addPermission("perm-users-read", "mod-users", "act-read")
	s.addPermission("perm-users-create", "mod-users", "act-create")
	s.addPermission("perm-grades-read", "mod-grades", "act-read")
	s.addPermission("perm-users-approve", "mod-users", "act-approve")

	s.addRole(domain.TenantSPD, "role-viewer", "viewer", true, true)
	s.addRole(domain.TenantSPD, "role-admin", "admin", true, false)
	s.grant(domain.TenantSPD, "role-viewer", "perm-dashboard-read", "perm-users-read")
	s.grant(domain.TenantSPD, "role-admin", "perm-users-read", "perm-users-create")
}

func (f *fixture) addVerifiedUser(tenant domain.Tenant, id, email string, roleIDs ...string) domain.User {
	user := domain.User{
		ID:             id,
		Email:          email,
		DocumentNumber: "doc-" + id,
		FullName:       "User " + id,
		PasswordHash:   "plain$correct-horse",
		IsActive:       true,
		EmailVerified:  true,
	}
	f.store.addUser(tenant, user)
	if len(roleIDs) > 0 {
		f.store.assign(tenant, id, roleIDs...)
	}
	user.Tenant = tenant
	return user
}
