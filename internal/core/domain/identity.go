package domain

import "time"

// User mirrors the persisted representation in a tenant's users table.
type User struct {
	ID               string
	Tenant           Tenant
	Email            string
	DocumentNumber   string
	FullName         string
	PasswordHash     string
	IsActive         bool
	EmailVerified    bool
	VerificationCode *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Principal is the authenticated caller carried explicitly through a request.
type Principal struct {
	UserID      string
	DisplayName string
	Tenant      Tenant
	Roles       []string
	SessionID   string
}

// Actor identifies who triggered a mutation, for audit and outbox correlation.
type Actor struct {
	UserID        string
	CorrelationID string
}
