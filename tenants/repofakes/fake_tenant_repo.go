package tenantrepofakes

import (
	"context"
	"sync"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-login-service/internal/errors"
	"github.com/jrsteele09/go-login-service/tenants"
)

var _ tenants.Repo = (*FakeTenantRepo)(nil)

type FakeTenantRepo struct {
	tenants map[string]*tenants.Tenant
	lock    sync.RWMutex
}

func NewFakeTenantRepo() tenants.Repo {
	return &FakeTenantRepo{
		tenants: make(map[string]*tenants.Tenant),
	}
}

func (tr *FakeTenantRepo) Upsert(ctx context.Context, tenantData *tenants.Tenant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if tenantData.ID == "" {
		tenantData.ID = uuid.New().String()
	}
	tr.tenants[tenantData.ID] = tenantData.Clone()
	return nil
}

func (tr *FakeTenantRepo) Get(ctx context.Context, tenantID string) (*tenants.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	tenant, ok := tr.tenants[tenantID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return tenant.Clone(), nil
}
