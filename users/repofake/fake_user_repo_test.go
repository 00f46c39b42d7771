package fakeuserrepo_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/jrsteele09/go-login-service/internal/errors"
	"github.com/jrsteele09/go-login-service/users"
	fakeuserrepo "github.com/jrsteele09/go-login-service/users/repofake"
)

func storeTestUser(t *testing.T, repo users.UserRepo) *users.User {
	t.Helper()

	user := &users.User{
		ID:       "user-1",
		TenantID: "tenant-1",
		Email:    "john.doe@example.com",
		Username: "johndoe",
		Active:   true,
	}
	require.NoError(t, repo.Upsert(context.Background(), user))
	return user
}

func TestUpsertAssignsID(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()

	user := &users.User{Email: "jane@example.com"}
	require.NoError(t, repo.Upsert(context.Background(), user))
	require.NotEmpty(t, user.ID)

	found, err := repo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, "jane@example.com", found.Email)
}

func TestLookupsUseNormalizedKeys(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	require.NoError(t, repo.Upsert(context.Background(), &users.User{
		ID:       "user-1",
		Email:    " John.Doe@Example.COM ",
		Username: " JohnDoe ",
	}))

	byEmail, err := repo.GetByEmail(context.Background(), users.NormalizeEmail(" John.Doe@Example.COM "))
	require.NoError(t, err)
	require.Equal(t, "user-1", byEmail.ID)

	byUsername, err := repo.GetByUsername(context.Background(), users.NormalizeUsername(" JohnDoe "))
	require.NoError(t, err)
	require.Equal(t, "user-1", byUsername.ID)

	_, err = repo.GetByEmail(context.Background(), "nobody@example.com")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = repo.GetByUsername(context.Background(), "nobody")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetReturnsCopies(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	storeTestUser(t, repo)

	first, err := repo.GetByID(context.Background(), "user-1")
	require.NoError(t, err)
	first.Email = "mutated@example.com"

	second, err := repo.GetByID(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, "john.doe@example.com", second.Email)
}

func TestSetRefreshToken(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	storeTestUser(t, repo)
	expiry := time.Now().Add(time.Hour)

	require.NoError(t, repo.SetRefreshToken(context.Background(), "user-1", "token-a", expiry))

	found, err := repo.GetByID(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, "token-a", found.RefreshToken)
	require.True(t, found.RefreshTokenExpiry.Equal(expiry))

	err = repo.SetRefreshToken(context.Background(), "no-such-user", "token-a", expiry)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRotateRefreshToken(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	storeTestUser(t, repo)
	expiry := time.Now().Add(time.Hour)
	require.NoError(t, repo.SetRefreshToken(context.Background(), "user-1", "token-a", expiry))

	// Rotation succeeds only when the caller presents the current token.
	err := repo.RotateRefreshToken(context.Background(), "user-1", "token-a", "token-b", expiry)
	require.NoError(t, err)

	// The superseded token no longer rotates.
	err = repo.RotateRefreshToken(context.Background(), "user-1", "token-a", "token-c", expiry)
	require.ErrorIs(t, err, apperrors.ErrConflict)

	found, err := repo.GetByID(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, "token-b", found.RefreshToken)

	err = repo.RotateRefreshToken(context.Background(), "no-such-user", "token-b", "token-c", expiry)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRotateRefreshTokenSingleWinner(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	storeTestUser(t, repo)
	expiry := time.Now().Add(time.Hour)
	require.NoError(t, repo.SetRefreshToken(context.Background(), "user-1", "token-a", expiry))

	const racers = 16
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			errs[slot] = repo.RotateRefreshToken(context.Background(), "user-1", "token-a", fmt.Sprintf("token-%d", slot), expiry)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		require.ErrorIs(t, err, apperrors.ErrConflict)
	}
	require.Equal(t, 1, winners)
}

func TestCancelledContextIsRejected(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	storeTestUser(t, repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.GetByID(ctx, "user-1")
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, repo.Upsert(ctx, &users.User{}), context.Canceled)
	require.ErrorIs(t, repo.SetRefreshToken(ctx, "user-1", "x", time.Time{}), context.Canceled)
	require.ErrorIs(t, repo.RotateRefreshToken(ctx, "user-1", "x", "y", time.Time{}), context.Canceled)
}
