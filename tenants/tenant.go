package tenants

import (
	"time"

	"github.com/jrsteele09/go-login-service/internal/utils"
)

// Tenant is an isolated organizational scope with its own activation state
// and validity window. Read-only to the authentication core.
type Tenant struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Active     bool       `json:"active"`
	ValidUntil *time.Time `json:"valid_until,omitempty"` // nil means the tenant never expires
}

// Expired reports whether the tenant's validity window has passed at the
// given time.
func (t *Tenant) Expired(now time.Time) bool {
	return t.ValidUntil != nil && now.After(*t.ValidUntil)
}

// Clone returns a copy that shares no memory with the original.
func (t *Tenant) Clone() *Tenant {
	cp := *t
	if t.ValidUntil != nil {
		cp.ValidUntil = utils.Ptr(*t.ValidUntil)
	}
	return &cp
}
