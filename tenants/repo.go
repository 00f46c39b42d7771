package tenants

import "context"

// Repo supplies tenant context for authentication decisions. Get returns a
// NotFound error from internal/errors when the tenant does not exist.
type Repo interface {
	Upsert(ctx context.Context, tenantData *Tenant) error
	Get(ctx context.Context, tenantID string) (*Tenant, error)
}
