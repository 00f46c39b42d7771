package cachedrepo

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/jrsteele09/go-login-service/tenants"
)

// DefaultTTL bounds how long a cached tenant can lag behind the store.
const DefaultTTL = time.Minute

// CachedRepo is a read-through TTL cache over a tenants.Repo. Tenant
// standing is checked on every login, while tenant records change rarely;
// the TTL caps how stale a deactivation or expiry can appear.
type CachedRepo struct {
	inner tenants.Repo
	cache *gocache.Cache
}

var _ tenants.Repo = (*CachedRepo)(nil)

func New(inner tenants.Repo, ttl time.Duration) *CachedRepo {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedRepo{
		inner: inner,
		cache: gocache.New(ttl, time.Minute),
	}
}

// Upsert writes through and drops the cached entry.
func (r *CachedRepo) Upsert(ctx context.Context, tenantData *tenants.Tenant) error {
	if err := r.inner.Upsert(ctx, tenantData); err != nil {
		return err
	}
	r.cache.Delete(tenantData.ID)
	return nil
}

func (r *CachedRepo) Get(ctx context.Context, tenantID string) (*tenants.Tenant, error) {
	if v, ok := r.cache.Get(tenantID); ok {
		if tenant, ok := v.(*tenants.Tenant); ok {
			return tenant.Clone(), nil
		}
	}

	tenant, err := r.inner.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	r.cache.SetDefault(tenantID, tenant.Clone())
	return tenant, nil
}
