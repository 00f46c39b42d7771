package fakeuserrepo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-login-service/internal/errors"
	"github.com/jrsteele09/go-login-service/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users       map[string]*users.User
	emailIds    map[string]string // normalized email to user id
	usernameIds map[string]string // normalized username to user id
	lock        sync.RWMutex
}

func NewFakeUserRepo() users.UserRepo {
	return &FakeUserRepo{
		users:       make(map[string]*users.User),
		emailIds:    make(map[string]string),
		usernameIds: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Upsert(ctx context.Context, user *users.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	stored := *user
	ur.users[user.ID] = &stored
	ur.emailIds[users.NormalizeEmail(user.Email)] = user.ID
	if user.Username != "" {
		ur.usernameIds[users.NormalizeUsername(user.Username)] = user.ID
	}
	return nil
}

func (ur *FakeUserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userID, ok := ur.emailIds[email]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return ur.copyUser(userID)
}

func (ur *FakeUserRepo) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userID, ok := ur.usernameIds[username]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return ur.copyUser(userID)
}

func (ur *FakeUserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	return ur.copyUser(id)
}

func (ur *FakeUserRepo) SetRefreshToken(ctx context.Context, userID, token string, expiry time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	user.RefreshToken = token
	user.RefreshTokenExpiry = expiry
	return nil
}

func (ur *FakeUserRepo) RotateRefreshToken(ctx context.Context, userID, previous, token string, expiry time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if user.RefreshToken != previous {
		return apperrors.ErrConflict
	}
	user.RefreshToken = token
	user.RefreshTokenExpiry = expiry
	return nil
}

// copyUser returns a copy so callers cannot mutate stored state. Callers must
// hold at least a read lock.
func (ur *FakeUserRepo) copyUser(userID string) (*users.User, error) {
	user, ok := ur.users[userID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *user
	return &cp, nil
}
