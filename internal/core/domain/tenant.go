package domain

import (
	"fmt"
	"strings"
)

// Tenant identifies one of the independent systems sharing the deployment.
type Tenant string

const (
	// TenantPublic tags catalog entries visible to every tenant. It is never a login tenant.
	TenantPublic Tenant = "PUBLIC"
	TenantSPD    Tenant = "SPD"
	TenantSIS    Tenant = "SIS"
)

var loginTenants = []Tenant{TenantSPD, TenantSIS}

// LoginTenants returns the tenants users can authenticate against, in sweep order.
func LoginTenants() []Tenant {
	out := make([]Tenant, len(loginTenants))
	copy(out, loginTenants)
	return out
}

// ParseTenant normalises raw input and rejects unknown values and PUBLIC.
func ParseTenant(raw string) (Tenant, error) {
	t := Tenant(strings.ToUpper(strings.TrimSpace(raw)))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

// ParseCatalogTag accepts any login tenant plus PUBLIC.
func ParseCatalogTag(raw string) (Tenant, error) {
	t := Tenant(strings.ToUpper(strings.TrimSpace(raw)))
	if t == TenantPublic {
		return t, nil
	}
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

// Validate reports whether t is a login tenant.
func (t Tenant) Validate() error {
	for _, candidate := range loginTenants {
		if t == candidate {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidTenant, string(t))
}

// Sees reports whether a catalog entry tagged with tag is visible to t.
func (t Tenant) Sees(tag Tenant) bool {
	return tag == TenantPublic || tag == t
}

// VisibleTags lists the catalog tags visible to t.
func (t Tenant) VisibleTags() []string {
	return []string{string(t), string(TenantPublic)}
}

func (t Tenant) String() string {
	return string(t)
}
