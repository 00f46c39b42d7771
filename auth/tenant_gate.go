package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-login-service/internal/errors"
	"github.com/jrsteele09/go-login-service/tenants"
)

// TenantGate checks a tenant's standing before tokens are issued. It runs
// only after credentials have been verified, so its outcomes never leak
// tenant state to unauthenticated callers.
type TenantGate struct {
	tenants      tenants.Repo
	rootTenantID string
}

// NewTenantGate builds a gate over the tenant repository. The root tenant is
// exempt from all standing checks.
func NewTenantGate(repo tenants.Repo, rootTenantID string) (*TenantGate, error) {
	if repo == nil {
		return nil, errors.New("[NewTenantGate] Tenants repo is required")
	}
	return &TenantGate{
		tenants:      repo,
		rootTenantID: rootTenantID,
	}, nil
}

// Check fails with TenantInactiveErr when the tenant is unknown or disabled,
// and with TenantExpiredErr when its validity window has closed.
func (g *TenantGate) Check(ctx context.Context, tenantID string, now time.Time) error {
	if g.rootTenantID != "" && tenantID == g.rootTenantID {
		return nil
	}

	tenant, err := g.tenants.Get(ctx, tenantID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return TenantInactiveErr
		}
		return errors.Wrap(err, "[TenantGate.Check] tenants.Get")
	}

	if !tenant.Active {
		return TenantInactiveErr
	}
	if tenant.Expired(now) {
		return TenantExpiredErr
	}
	return nil
}
