package domain

import "time"

// Module is a navigable resource, owned by a tenant or shared as PUBLIC.
type Module struct {
	ID          string
	Name        string
	Path        string
	System      Tenant
	Description *string
	CreatedAt   time.Time
}

// Action is an operation code such as READ or CREATE.
type Action struct {
	ID        string
	Code      string
	Name      string
	System    Tenant
	CreatedAt time.Time
}

// Permission states that an action applies to a module. It grants nothing by itself.
type Permission struct {
	ID        string
	ModuleID  string
	ActionID  string
	CreatedAt time.Time
}

// Role is a tenant-scoped bundle of grants.
type Role struct {
	ID          string
	Name        string
	Description *string
	IsActive    bool
	IsDefault   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RolePermission links a role with a permission. Absence of a row means not granted.
type RolePermission struct {
	RoleID       string
	PermissionID string
	Allowed      bool
}

// UserRole assigns a role to a user.
type UserRole struct {
	UserID     string
	RoleID     string
	AssignedAt time.Time
}

// ApplicablePermission is a visible (module, action) edge with display names.
type ApplicablePermission struct {
	PermissionID string
	ModulePath   string
	ModuleName   string
	ActionCode   string
	ActionName   string
}

// GrantedPermission is a (module, action) pair reachable through an active role.
type GrantedPermission struct {
	ModulePath string
	ActionCode string
}
