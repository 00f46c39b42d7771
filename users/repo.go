package users

import (
	"context"
	"time"
)

// UserRepo is the user lookup/update collaborator. Lookups return
// a NotFound error from internal/errors when no user matches; lookups by
// email or username expect pre-normalized values (see NormalizeEmail,
// NormalizeUsername).
type UserRepo interface {
	Upsert(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)

	// SetRefreshToken unconditionally replaces the user's refresh token and
	// expiry. Used on login, where a new token supersedes whatever was
	// stored before.
	SetRefreshToken(ctx context.Context, userID, token string, expiry time.Time) error

	// RotateRefreshToken replaces the user's refresh token and expiry only
	// while the stored token still equals previous; otherwise it returns a
	// Conflict error from internal/errors. This compare-and-swap is what
	// keeps concurrent refresh calls down to a single winner.
	RotateRefreshToken(ctx context.Context, userID, previous, token string, expiry time.Time) error
}
