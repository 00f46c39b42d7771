package pgrepo

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-login-service/internal/errors"
	"github.com/jrsteele09/go-login-service/tenants"
)

const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	active      BOOLEAN NOT NULL DEFAULT TRUE,
	valid_until TIMESTAMPTZ
);
`

// PgTenantRepo stores tenant records in Postgres.
type PgTenantRepo struct {
	pool *pgxpool.Pool
}

var _ tenants.Repo = (*PgTenantRepo)(nil)

func NewPgTenantRepo(pool *pgxpool.Pool) *PgTenantRepo {
	return &PgTenantRepo{pool: pool}
}

// EnsureSchema creates the tenants table.
func (r *PgTenantRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "[PgTenantRepo.EnsureSchema] exec")
	}
	return nil
}

func (r *PgTenantRepo) Upsert(ctx context.Context, tenantData *tenants.Tenant) error {
	const q = `
		INSERT INTO tenants (id, name, active, valid_until)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			active = EXCLUDED.active,
			valid_until = EXCLUDED.valid_until`

	if tenantData.ID == "" {
		tenantData.ID = uuid.New().String()
	}

	_, err := r.pool.Exec(ctx, q, tenantData.ID, tenantData.Name, tenantData.Active, tenantData.ValidUntil)
	if err != nil {
		return errors.Wrap(err, "[PgTenantRepo.Upsert] exec")
	}
	return nil
}

func (r *PgTenantRepo) Get(ctx context.Context, tenantID string) (*tenants.Tenant, error) {
	const q = `SELECT id, name, active, valid_until FROM tenants WHERE id = $1`

	var tenant tenants.Tenant
	err := r.pool.QueryRow(ctx, q, tenantID).Scan(&tenant.ID, &tenant.Name, &tenant.Active, &tenant.ValidUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.Wrapf(apperrors.ErrNotFound, "[PgTenantRepo.Get] tenant %s", tenantID)
		}
		return nil, errors.Wrap(err, "[PgTenantRepo.Get] scan")
	}
	return &tenant, nil
}
