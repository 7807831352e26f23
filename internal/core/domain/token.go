package domain

import "time"

// RefreshToken is a persisted refresh token digest. The raw token is never stored.
type RefreshToken struct {
	ID        string
	UserID    string
	Tenant    Tenant
	TokenHash string
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsExpired reports whether the token has elapsed its validity window.
func (t RefreshToken) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// IsActive returns true when the token can still be presented for rotation.
func (t RefreshToken) IsActive(at time.Time) bool {
	return !t.Revoked && !t.IsExpired(at)
}
