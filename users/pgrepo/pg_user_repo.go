package pgrepo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-login-service/internal/errors"
	"github.com/jrsteele09/go-login-service/users"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                   TEXT PRIMARY KEY,
	tenant_id            TEXT NOT NULL DEFAULT '',
	email                TEXT NOT NULL,
	username             TEXT NOT NULL DEFAULT '',
	password_hash        TEXT NOT NULL DEFAULT '',
	first_name           TEXT NOT NULL DEFAULT '',
	last_name            TEXT NOT NULL DEFAULT '',
	phone                TEXT NOT NULL DEFAULT '',
	image_url            TEXT NOT NULL DEFAULT '',
	active               BOOLEAN NOT NULL DEFAULT TRUE,
	email_confirmed      BOOLEAN NOT NULL DEFAULT FALSE,
	tfa_enabled          BOOLEAN NOT NULL DEFAULT FALSE,
	refresh_token        TEXT NOT NULL DEFAULT '',
	refresh_token_expiry TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
	date_joined          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_login           TIMESTAMPTZ NOT NULL DEFAULT 'epoch'
);
CREATE UNIQUE INDEX IF NOT EXISTS users_email_idx ON users (lower(email));
CREATE UNIQUE INDEX IF NOT EXISTS users_username_idx ON users (lower(username)) WHERE username <> '';
`

const userColumns = `id, tenant_id, email, username, password_hash, first_name, last_name,
	phone, image_url, active, email_confirmed, tfa_enabled,
	refresh_token, refresh_token_expiry, date_joined, last_login`

// PgUserRepo stores user records in Postgres.
type PgUserRepo struct {
	pool *pgxpool.Pool
}

var _ users.UserRepo = (*PgUserRepo)(nil)

func NewPgUserRepo(pool *pgxpool.Pool) *PgUserRepo {
	return &PgUserRepo{pool: pool}
}

// EnsureSchema creates the users table and its lookup indexes.
func (r *PgUserRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "[PgUserRepo.EnsureSchema] exec")
	}
	return nil
}

func (r *PgUserRepo) Upsert(ctx context.Context, user *users.User) error {
	const q = `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			email = EXCLUDED.email,
			username = EXCLUDED.username,
			password_hash = EXCLUDED.password_hash,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			phone = EXCLUDED.phone,
			image_url = EXCLUDED.image_url,
			active = EXCLUDED.active,
			email_confirmed = EXCLUDED.email_confirmed,
			tfa_enabled = EXCLUDED.tfa_enabled,
			refresh_token = EXCLUDED.refresh_token,
			refresh_token_expiry = EXCLUDED.refresh_token_expiry,
			date_joined = EXCLUDED.date_joined,
			last_login = EXCLUDED.last_login`

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now()
	}

	_, err := r.pool.Exec(ctx, q,
		user.ID, user.TenantID, user.Email, user.Username, user.PasswordHash,
		user.FirstName, user.LastName, user.Phone, user.ImageURL,
		user.Active, user.EmailConfirmed, user.TFAEnabled,
		user.RefreshToken, user.RefreshTokenExpiry, user.DateJoined, user.LastLogin,
	)
	if err != nil {
		return errors.Wrap(err, "[PgUserRepo.Upsert] exec")
	}
	return nil
}

func (r *PgUserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = $1`
	return r.scanUser(r.pool.QueryRow(ctx, q, users.NormalizeEmail(email)))
}

func (r *PgUserRepo) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE username <> '' AND lower(username) = $1`
	return r.scanUser(r.pool.QueryRow(ctx, q, users.NormalizeUsername(username)))
}

func (r *PgUserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, q, id))
}

func (r *PgUserRepo) SetRefreshToken(ctx context.Context, userID, token string, expiry time.Time) error {
	const q = `UPDATE users SET refresh_token = $2, refresh_token_expiry = $3 WHERE id = $1`
	ct, err := r.pool.Exec(ctx, q, userID, token, expiry)
	if err != nil {
		return errors.Wrap(err, "[PgUserRepo.SetRefreshToken] exec")
	}
	if ct.RowsAffected() == 0 {
		return apperrors.Wrapf(apperrors.ErrNotFound, "[PgUserRepo.SetRefreshToken] user %s", userID)
	}
	return nil
}

// RotateRefreshToken swaps the stored refresh token only while it still
// equals previous. Zero rows updated means another rotation got there first
// (or the row vanished), reported as a conflict either way.
func (r *PgUserRepo) RotateRefreshToken(ctx context.Context, userID, previous, token string, expiry time.Time) error {
	const q = `
		UPDATE users SET refresh_token = $3, refresh_token_expiry = $4
		WHERE id = $1 AND refresh_token = $2`
	ct, err := r.pool.Exec(ctx, q, userID, previous, token, expiry)
	if err != nil {
		return errors.Wrap(err, "[PgUserRepo.RotateRefreshToken] exec")
	}
	if ct.RowsAffected() == 0 {
		return apperrors.Wrapf(apperrors.ErrConflict, "[PgUserRepo.RotateRefreshToken] user %s", userID)
	}
	return nil
}

func (r *PgUserRepo) scanUser(row pgx.Row) (*users.User, error) {
	var user users.User
	err := row.Scan(
		&user.ID, &user.TenantID, &user.Email, &user.Username, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.Phone, &user.ImageURL,
		&user.Active, &user.EmailConfirmed, &user.TFAEnabled,
		&user.RefreshToken, &user.RefreshTokenExpiry, &user.DateJoined, &user.LastLogin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.Wrapf(apperrors.ErrNotFound, "[PgUserRepo] user")
		}
		return nil, errors.Wrap(err, "[PgUserRepo] scan")
	}
	return &user, nil
}
