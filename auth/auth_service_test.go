package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-login-service/auth"
	"github.com/jrsteele09/go-login-service/directory"
	"github.com/jrsteele09/go-login-service/directory/clientfake"
	"github.com/jrsteele09/go-login-service/internal/rate"
	"github.com/jrsteele09/go-login-service/internal/utils"
	"github.com/jrsteele09/go-login-service/tenants"
	tenantrepofakes "github.com/jrsteele09/go-login-service/tenants/repofakes"
	"github.com/jrsteele09/go-login-service/token"
	"github.com/jrsteele09/go-login-service/users"
	fakeuserrepo "github.com/jrsteele09/go-login-service/users/repofake"
)

const (
	testSigningKey   = "test-signing-key-1234"
	testTenantID     = "tenant-1"
	testUserID       = "user-1"
	testUserEmail    = "john.doe@example.com"
	testUsername     = "johndoe"
	testUserPassword = "Password123!"
	testIPAddress    = "203.0.113.7"
)

// testFixture holds all test dependencies
type testFixture struct {
	userRepo   users.UserRepo
	tenantRepo tenants.Repo
	dir        *clientfake.FakeDirectoryClient
	issuer     *token.Issuer
	service    *auth.Service
}

// testUser represents a test user with common fields
type testUser struct {
	ID             string
	Email          string
	Username       string
	Password       string
	TenantID       string
	FirstName      string
	LastName       string
	Active         bool
	EmailConfirmed bool
	TFAEnabled     bool
}

// setupTestFixture creates a new test fixture with all dependencies
func setupTestFixture(t *testing.T, options ...auth.ServiceOption) *testFixture {
	t.Helper()

	ur := fakeuserrepo.NewFakeUserRepo()
	tr := tenantrepofakes.NewFakeTenantRepo()
	dir := clientfake.NewFakeDirectoryClient()

	signer, err := token.NewHMACSigner(testSigningKey, token.DefaultAlgorithm)
	require.NoError(t, err)
	issuer, err := token.NewIssuer(signer)
	require.NoError(t, err)

	opts := append([]auth.ServiceOption{auth.WithDirectory(dir)}, options...)
	service, err := auth.NewService(auth.Repos{Users: ur, Tenants: tr}, issuer, opts...)
	require.NoError(t, err)

	return &testFixture{
		userRepo:   ur,
		tenantRepo: tr,
		dir:        dir,
		issuer:     issuer,
		service:    service,
	}
}

// createTestUser creates and stores a test user
func (f *testFixture) createTestUser(t *testing.T, user testUser) {
	t.Helper()

	passwordHash, err := users.HashPassword(user.Password)
	require.NoError(t, err)

	err = f.userRepo.Upsert(context.Background(), &users.User{
		ID:             user.ID,
		TenantID:       user.TenantID,
		Email:          user.Email,
		Username:       user.Username,
		PasswordHash:   passwordHash,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		Active:         user.Active,
		EmailConfirmed: user.EmailConfirmed,
		TFAEnabled:     user.TFAEnabled,
	})
	require.NoError(t, err)
}

// createTestTenant creates and stores a test tenant
func (f *testFixture) createTestTenant(t *testing.T, id, name string, active bool, validUntil *time.Time) {
	t.Helper()

	err := f.tenantRepo.Upsert(context.Background(), &tenants.Tenant{
		ID:         id,
		Name:       name,
		Active:     active,
		ValidUntil: validUntil,
	})
	require.NoError(t, err)
}

// defaultTestUser returns an active, confirmed user without two-factor
func defaultTestUser() testUser {
	return testUser{
		ID:             testUserID,
		Email:          testUserEmail,
		Username:       testUsername,
		Password:       testUserPassword,
		TenantID:       testTenantID,
		FirstName:      "John",
		LastName:       "Doe",
		Active:         true,
		EmailConfirmed: true,
		TFAEnabled:     false,
	}
}

// localLogin returns a login request with local email credentials
func localLogin() auth.LoginRequest {
	return auth.LoginRequest{
		Credentials: auth.LocalCredentials{Email: testUserEmail, Password: testUserPassword},
		TenantID:    testTenantID,
		IPAddress:   testIPAddress,
	}
}

// directoryEntry returns a directory search entry with the given account name
func directoryEntry(accountName string) directory.Entry {
	return directory.Entry{
		DN: "cn=" + accountName + ",dc=example,dc=test",
		Attributes: map[string][]string{
			directory.AttributeAccountName: {accountName},
			directory.AttributeMail:        {accountName + "@example.test"},
		},
	}
}

// frozenIssueClock pins the issuer clock for the duration of the test
func frozenIssueClock(t *testing.T, at time.Time) {
	t.Helper()
	previous := token.NowTimeFunc
	token.NowTimeFunc = func() time.Time { return at }
	t.Cleanup(func() { token.NowTimeFunc = previous })
}

// TestNewService_Validation tests constructor dependency checks
func TestNewService_Validation(t *testing.T) {
	ur := fakeuserrepo.NewFakeUserRepo()
	tr := tenantrepofakes.NewFakeTenantRepo()
	signer, err := token.NewHMACSigner(testSigningKey, token.DefaultAlgorithm)
	require.NoError(t, err)
	issuer, err := token.NewIssuer(signer)
	require.NoError(t, err)

	_, err = auth.NewService(auth.Repos{Tenants: tr}, issuer)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Users repo is required")

	_, err = auth.NewService(auth.Repos{Users: ur}, issuer)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Tenants repo is required")

	_, err = auth.NewService(auth.Repos{Users: ur, Tenants: tr}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "issuer is required")
}

// TestLogin_Success tests a local login issuing a token pair and storing the
// refresh token on the user record
func TestLogin_Success(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	result, err := f.service.Login(context.Background(), localLogin())

	require.NoError(t, err)
	require.Equal(t, testUserID, result.UserID)
	require.False(t, result.TwoFactorRequired)
	require.NotNil(t, result.Tokens)
	require.NotEmpty(t, result.Tokens.AccessToken)
	require.NotEmpty(t, result.Tokens.RefreshToken)

	stored, err := f.userRepo.GetByID(context.Background(), testUserID)
	require.NoError(t, err)
	require.Equal(t, result.Tokens.RefreshToken, stored.RefreshToken)
	require.WithinDuration(t, result.Tokens.RefreshTokenExpiry, stored.RefreshTokenExpiry, time.Second)
}

// TestLogin_ClaimsRoundTrip tests that the issued access token carries the
// user, tenant and address claims of the issuing request
func TestLogin_ClaimsRoundTrip(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	result, err := f.service.Login(context.Background(), localLogin())
	require.NoError(t, err)

	principal, err := f.issuer.DecodeExpired(result.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, testUserID, principal.UserID)
	require.Equal(t, testUserEmail, principal.Email)
	require.Equal(t, testTenantID, principal.TenantID)
	require.Equal(t, testIPAddress, principal.IPAddress)
	require.Equal(t, "John Doe", principal.FullName)
	require.Equal(t, "John", principal.GivenName)
	require.Equal(t, "Doe", principal.Surname)
}

// TestLogin_ByUsername tests lookup by username when no email is supplied
func TestLogin_ByUsername(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	request := localLogin()
	request.Credentials = auth.LocalCredentials{Username: "  JohnDoe ", Password: testUserPassword}

	result, err := f.service.Login(context.Background(), request)

	require.NoError(t, err)
	require.Equal(t, testUserID, result.UserID)
}

// TestLogin_NormalizesEmail tests that email lookup trims and lowercases
func TestLogin_NormalizesEmail(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	request := localLogin()
	request.Credentials = auth.LocalCredentials{Email: " John.Doe@Example.COM ", Password: testUserPassword}

	result, err := f.service.Login(context.Background(), request)

	require.NoError(t, err)
	require.Equal(t, testUserID, result.UserID)
}

// TestLogin_UnknownUser tests that unknown users are indistinguishable from
// wrong passwords
func TestLogin_UnknownUser(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)

	request := localLogin()
	request.Credentials = auth.LocalCredentials{Email: "nobody@example.com", Password: testUserPassword}

	_, err := f.service.Login(context.Background(), request)

	require.ErrorIs(t, err, auth.AuthenticationFailedErr)
}

// TestLogin_WrongPassword tests password rejection
func TestLogin_WrongPassword(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	request := localLogin()
	request.Credentials = auth.LocalCredentials{Email: testUserEmail, Password: "wrong-password"}

	_, err := f.service.Login(context.Background(), request)

	require.ErrorIs(t, err, auth.AuthenticationFailedErr)
}

// TestLogin_MissingCredentials tests empty credential fields
func TestLogin_MissingCredentials(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	request := localLogin()
	request.Credentials = auth.LocalCredentials{Password: testUserPassword}
	_, err := f.service.Login(context.Background(), request)
	require.ErrorIs(t, err, auth.AuthenticationFailedErr)

	request.Credentials = auth.LocalCredentials{Email: testUserEmail}
	_, err = f.service.Login(context.Background(), request)
	require.ErrorIs(t, err, auth.AuthenticationFailedErr)

	request.Credentials = nil
	_, err = f.service.Login(context.Background(), request)
	require.ErrorIs(t, err, auth.AuthenticationFailedErr)
}

// TestLogin_MissingTenantContext tests that an absent tenant context is an
// authentication failure, not a tenant error
func TestLogin_MissingTenantContext(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	request := localLogin()
	request.TenantID = ""

	_, err := f.service.Login(context.Background(), request)

	require.ErrorIs(t, err, auth.AuthenticationFailedErr)
}

// TestLogin_WrongTenant tests a user logging into a tenant they do not
// belong to
func TestLogin_WrongTenant(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestTenant(t, "tenant-2", "Other Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	request := localLogin()
	request.TenantID = "tenant-2"

	_, err := f.service.Login(context.Background(), request)

	require.ErrorIs(t, err, auth.AuthenticationFailedErr)
}

// TestLogin_InactiveUser tests rejection of disabled accounts
func TestLogin_InactiveUser(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	user := defaultTestUser()
	user.Active = false
	f.createTestUser(t, user)

	_, err := f.service.Login(context.Background(), localLogin())

	require.ErrorIs(t, err, auth.UserInactiveErr)
}

// TestLogin_UnconfirmedEmail tests rejection of unconfirmed addresses
func TestLogin_UnconfirmedEmail(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	user := defaultTestUser()
	user.EmailConfirmed = false
	f.createTestUser(t, user)

	_, err := f.service.Login(context.Background(), localLogin())

	require.ErrorIs(t, err, auth.EmailNotConfirmedErr)
}

// TestLogin_UnconfirmedEmailAllowed tests the confirmation requirement can
// be switched off
func TestLogin_UnconfirmedEmailAllowed(t *testing.T) {
	f := setupTestFixture(t, auth.WithRequireConfirmedEmail(false))
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	user := defaultTestUser()
	user.EmailConfirmed = false
	f.createTestUser(t, user)

	result, err := f.service.Login(context.Background(), localLogin())

	require.NoError(t, err)
	require.NotNil(t, result.Tokens)
}

// TestLogin_InactiveTenant tests rejection when the tenant is disabled even
// with fully correct credentials
func TestLogin_InactiveTenant(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", false, nil)
	f.createTestUser(t, defaultTestUser())

	_, err := f.service.Login(context.Background(), localLogin())

	require.ErrorIs(t, err, auth.TenantInactiveErr)
}

// TestLogin_ExpiredTenant tests rejection when the tenant validity window
// has closed
func TestLogin_ExpiredTenant(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, utils.Ptr(time.Now().Add(-time.Hour)))
	f.createTestUser(t, defaultTestUser())

	_, err := f.service.Login(context.Background(), localLogin())

	require.ErrorIs(t, err, auth.TenantExpiredErr)
}

// TestLogin_UnknownTenant tests that a tenant missing from the store is
// treated as inactive
func TestLogin_UnknownTenant(t *testing.T) {
	f := setupTestFixture(t)
	user := defaultTestUser()
	user.TenantID = "ghost-tenant"
	f.createTestUser(t, user)

	request := localLogin()
	request.TenantID = "ghost-tenant"

	_, err := f.service.Login(context.Background(), request)

	require.ErrorIs(t, err, auth.TenantInactiveErr)
}

// TestLogin_RootTenantExempt tests the root tenant bypasses standing checks
func TestLogin_RootTenantExempt(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, auth.DefaultRootTenantID, "Root", false, utils.Ptr(time.Now().Add(-time.Hour)))
	user := defaultTestUser()
	user.TenantID = auth.DefaultRootTenantID
	f.createTestUser(t, user)

	request := localLogin()
	request.TenantID = auth.DefaultRootTenantID

	result, err := f.service.Login(context.Background(), request)

	require.NoError(t, err)
	require.NotNil(t, result.Tokens)
}

// TestLogin_TwoFactorDeferral tests that two-factor users get no tokens and
// keep their stored refresh token untouched
func TestLogin_TwoFactorDeferral(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	user := defaultTestUser()
	user.TFAEnabled = true
	f.createTestUser(t, user)

	result, err := f.service.Login(context.Background(), localLogin())

	require.NoError(t, err)
	require.True(t, result.TwoFactorRequired)
	require.Nil(t, result.Tokens)

	stored, err := f.userRepo.GetByID(context.Background(), testUserID)
	require.NoError(t, err)
	require.Empty(t, stored.RefreshToken, "deferred login must not touch the refresh token")
}

// TestLogin_RotationSupersedes tests that a second login unconditionally
// replaces the stored refresh token
func TestLogin_RotationSupersedes(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	first, err := f.service.Login(context.Background(), localLogin())
	require.NoError(t, err)
	second, err := f.service.Login(context.Background(), localLogin())
	require.NoError(t, err)
	require.NotEqual(t, first.Tokens.RefreshToken, second.Tokens.RefreshToken)

	stored, err := f.userRepo.GetByID(context.Background(), testUserID)
	require.NoError(t, err)
	require.Equal(t, second.Tokens.RefreshToken, stored.RefreshToken)

	// The superseded token no longer refreshes.
	_, err = f.service.Refresh(context.Background(), auth.RefreshRequest{
		AccessToken:  first.Tokens.AccessToken,
		RefreshToken: first.Tokens.RefreshToken,
		IPAddress:    testIPAddress,
	})
	require.ErrorIs(t, err, auth.InvalidRefreshTokenErr)
}

// TestLogin_AttemptLimit tests the login limiter rejects over-limit
// attempts with the coarse authentication failure
func TestLogin_AttemptLimit(t *testing.T) {
	f := setupTestFixture(t, auth.WithLoginLimiter(rate.NewMemoryLimiter(2, time.Minute)))
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	badRequest := localLogin()
	badRequest.Credentials = auth.LocalCredentials{Email: testUserEmail, Password: "wrong-password"}

	for i := 0; i < 2; i++ {
		_, err := f.service.Login(context.Background(), badRequest)
		require.ErrorIs(t, err, auth.AuthenticationFailedErr)
	}

	// Third attempt is over the limit even with the correct password.
	_, err := f.service.Login(context.Background(), localLogin())
	require.ErrorIs(t, err, auth.AuthenticationFailedErr)
}

// TestLogin_DirectorySuccess tests the directory path mapping the matched
// account name onto a local user
func TestLogin_DirectorySuccess(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	f.dir.AddCredentials("jdoe", "directory-password")
	f.dir.SetEntries(directoryEntry(testUsername))

	result, err := f.service.Login(context.Background(), auth.LoginRequest{
		Credentials: auth.DirectoryCredentials{Username: "jdoe", Password: "directory-password"},
		TenantID:    testTenantID,
		IPAddress:   testIPAddress,
	})

	require.NoError(t, err)
	require.Equal(t, testUserID, result.UserID)
	require.NotNil(t, result.Tokens)
	require.Equal(t, "jdoe", f.dir.LastBind())
	require.Contains(t, f.dir.LastSearch().Filter, "jdoe")
}

// TestLogin_DirectoryNoLocalMapping tests that directory identities without
// a local account are rejected, never provisioned
func TestLogin_DirectoryNoLocalMapping(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)

	f.dir.AddCredentials("jdoe", "directory-password")
	f.dir.SetEntries(directoryEntry("jdoe"))

	_, err := f.service.Login(context.Background(), auth.LoginRequest{
		Credentials: auth.DirectoryCredentials{Username: "jdoe", Password: "directory-password"},
		TenantID:    testTenantID,
		IPAddress:   testIPAddress,
	})

	require.ErrorIs(t, err, auth.AuthenticationFailedErr)
}

// TestLogin_DirectoryBindFailure tests wrong directory credentials
func TestLogin_DirectoryBindFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	f.dir.AddCredentials("jdoe", "directory-password")
	f.dir.SetEntries(directoryEntry(testUsername))

	_, err := f.service.Login(context.Background(), auth.LoginRequest{
		Credentials: auth.DirectoryCredentials{Username: "jdoe", Password: "wrong-password"},
		TenantID:    testTenantID,
		IPAddress:   testIPAddress,
	})

	require.ErrorIs(t, err, auth.AuthenticationFailedErr)
}

// TestLogin_DirectoryUnavailable tests that connectivity failures are
// distinguished from bad credentials
func TestLogin_DirectoryUnavailable(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	request := auth.LoginRequest{
		Credentials: auth.DirectoryCredentials{Username: "jdoe", Password: "directory-password"},
		TenantID:    testTenantID,
		IPAddress:   testIPAddress,
	}

	f.dir.FailBindWith(directory.UnavailableErr)
	_, err := f.service.Login(context.Background(), request)
	require.ErrorIs(t, err, auth.DirectoryUnavailableErr)

	f.dir.FailBindWith(nil)
	f.dir.AddCredentials("jdoe", "directory-password")
	f.dir.FailSearchWith(directory.UnavailableErr)
	_, err = f.service.Login(context.Background(), request)
	require.ErrorIs(t, err, auth.DirectoryUnavailableErr)
}

// TestLogin_DirectoryMultipleMatches tests the documented tie-break: the
// first search result wins
func TestLogin_DirectoryMultipleMatches(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	f.dir.AddCredentials("jdoe", "directory-password")
	f.dir.SetEntries(directoryEntry(testUsername), directoryEntry("someone-else"))

	result, err := f.service.Login(context.Background(), auth.LoginRequest{
		Credentials: auth.DirectoryCredentials{Username: "jdoe", Password: "directory-password"},
		TenantID:    testTenantID,
		IPAddress:   testIPAddress,
	})

	require.NoError(t, err)
	require.Equal(t, testUserID, result.UserID)
}

// TestLogin_DirectoryNotConfigured tests directory credentials against a
// service with no directory wired
func TestLogin_DirectoryNotConfigured(t *testing.T) {
	ur := fakeuserrepo.NewFakeUserRepo()
	tr := tenantrepofakes.NewFakeTenantRepo()
	signer, err := token.NewHMACSigner(testSigningKey, token.DefaultAlgorithm)
	require.NoError(t, err)
	issuer, err := token.NewIssuer(signer)
	require.NoError(t, err)
	service, err := auth.NewService(auth.Repos{Users: ur, Tenants: tr}, issuer)
	require.NoError(t, err)

	_, err = service.Login(context.Background(), auth.LoginRequest{
		Credentials: auth.DirectoryCredentials{Username: "jdoe", Password: "directory-password"},
		TenantID:    testTenantID,
		IPAddress:   testIPAddress,
	})

	require.ErrorIs(t, err, auth.AuthenticationFailedErr)
}

// TestRefresh_Success tests full rotation: new pair issued, old token gone
func TestRefresh_Success(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	login, err := f.service.Login(context.Background(), localLogin())
	require.NoError(t, err)

	refreshed, err := f.service.Refresh(context.Background(), auth.RefreshRequest{
		AccessToken:  login.Tokens.AccessToken,
		RefreshToken: login.Tokens.RefreshToken,
		IPAddress:    "198.51.100.9",
	})

	require.NoError(t, err)
	require.NotEqual(t, login.Tokens.RefreshToken, refreshed.Tokens.RefreshToken)

	stored, err := f.userRepo.GetByID(context.Background(), testUserID)
	require.NoError(t, err)
	require.Equal(t, refreshed.Tokens.RefreshToken, stored.RefreshToken)

	// The reissued access token carries the refresh call's address and the
	// original tenant.
	principal, err := f.issuer.DecodeExpired(refreshed.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "198.51.100.9", principal.IPAddress)
	require.Equal(t, testTenantID, principal.TenantID)
	require.Equal(t, testUserEmail, principal.Email)
}

// TestRefresh_AfterAccessTokenExpiry tests that an expired access token
// still refreshes: decode skips expiry validation
func TestRefresh_AfterAccessTokenExpiry(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	frozenIssueClock(t, time.Now().Add(-time.Hour))
	login, err := f.service.Login(context.Background(), localLogin())
	require.NoError(t, err)
	frozenIssueClock(t, time.Now())

	refreshed, err := f.service.Refresh(context.Background(), auth.RefreshRequest{
		AccessToken:  login.Tokens.AccessToken,
		RefreshToken: login.Tokens.RefreshToken,
		IPAddress:    testIPAddress,
	})

	require.NoError(t, err)
	principal, err := f.issuer.DecodeExpired(refreshed.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, testUserID, principal.UserID)
	require.Equal(t, testTenantID, principal.TenantID)
}

// TestRefresh_WrongRefreshToken tests mismatch rejection
func TestRefresh_WrongRefreshToken(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	login, err := f.service.Login(context.Background(), localLogin())
	require.NoError(t, err)

	_, err = f.service.Refresh(context.Background(), auth.RefreshRequest{
		AccessToken:  login.Tokens.AccessToken,
		RefreshToken: "not-the-stored-token",
		IPAddress:    testIPAddress,
	})

	require.ErrorIs(t, err, auth.InvalidRefreshTokenErr)
}

// TestRefresh_ExpiredRefreshToken tests expiry rejection
func TestRefresh_ExpiredRefreshToken(t *testing.T) {
	future := time.Now().Add(31 * 24 * time.Hour)
	f := setupTestFixture(t, auth.WithNowTime(func() time.Time { return future }))
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	login, err := f.service.Login(context.Background(), localLogin())
	require.NoError(t, err)

	_, err = f.service.Refresh(context.Background(), auth.RefreshRequest{
		AccessToken:  login.Tokens.AccessToken,
		RefreshToken: login.Tokens.RefreshToken,
		IPAddress:    testIPAddress,
	})

	require.ErrorIs(t, err, auth.InvalidRefreshTokenErr)
}

// TestRefresh_TamperedToken tests signature enforcement on the expired
// decode path
func TestRefresh_TamperedToken(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	login, err := f.service.Login(context.Background(), localLogin())
	require.NoError(t, err)

	tampered := login.Tokens.AccessToken + "x"
	_, err = f.service.Refresh(context.Background(), auth.RefreshRequest{
		AccessToken:  tampered,
		RefreshToken: login.Tokens.RefreshToken,
		IPAddress:    testIPAddress,
	})

	require.ErrorIs(t, err, token.InvalidTokenErr)
}

// TestRefresh_AlgorithmSubstitution tests the algorithm pinning: tokens
// claiming a different MAC variant or "none" are rejected outright
func TestRefresh_AlgorithmSubstitution(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	login, err := f.service.Login(context.Background(), localLogin())
	require.NoError(t, err)

	claims := jwtlib.MapClaims{
		"sub":   testUserID,
		"email": testUserEmail,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}

	// Same key, different MAC variant.
	hs384, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS384, claims).SignedString([]byte(testSigningKey))
	require.NoError(t, err)
	_, err = f.service.Refresh(context.Background(), auth.RefreshRequest{
		AccessToken:  hs384,
		RefreshToken: login.Tokens.RefreshToken,
		IPAddress:    testIPAddress,
	})
	require.ErrorIs(t, err, token.InvalidTokenErr)

	// Unsigned token.
	unsigned, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = f.service.Refresh(context.Background(), auth.RefreshRequest{
		AccessToken:  unsigned,
		RefreshToken: login.Tokens.RefreshToken,
		IPAddress:    testIPAddress,
	})
	require.ErrorIs(t, err, token.InvalidTokenErr)
}

// TestRefresh_UnknownUser tests a valid token naming a user that no longer
// exists
func TestRefresh_UnknownUser(t *testing.T) {
	f := setupTestFixture(t)

	ghost := &users.User{
		ID:    "ghost-user",
		Email: "ghost@example.com",
	}
	pair, err := f.issuer.Issue(ghost, testTenantID, testIPAddress)
	require.NoError(t, err)

	_, err = f.service.Refresh(context.Background(), auth.RefreshRequest{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		IPAddress:    testIPAddress,
	})

	require.ErrorIs(t, err, auth.AuthenticationFailedErr)
}

// TestRefresh_ConcurrentRotation tests that exactly one of two concurrent
// rotations of the same refresh token succeeds
func TestRefresh_ConcurrentRotation(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	login, err := f.service.Login(context.Background(), localLogin())
	require.NoError(t, err)

	request := auth.RefreshRequest{
		AccessToken:  login.Tokens.AccessToken,
		RefreshToken: login.Tokens.RefreshToken,
		IPAddress:    testIPAddress,
	}

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, errs[slot] = f.service.Refresh(context.Background(), request)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		require.ErrorIs(t, err, auth.InvalidRefreshTokenErr)
	}
	require.Equal(t, 1, successes, "exactly one concurrent rotation must win")
}

// TestLogout_InvalidatesRefreshToken tests that logout clears the stored
// token so refresh fails afterwards
func TestLogout_InvalidatesRefreshToken(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestTenant(t, testTenantID, "Test Tenant", true, nil)
	f.createTestUser(t, defaultTestUser())

	login, err := f.service.Login(context.Background(), localLogin())
	require.NoError(t, err)

	err = f.service.Logout(context.Background(), testUserID)
	require.NoError(t, err)

	_, err = f.service.Refresh(context.Background(), auth.RefreshRequest{
		AccessToken:  login.Tokens.AccessToken,
		RefreshToken: login.Tokens.RefreshToken,
		IPAddress:    testIPAddress,
	})
	require.ErrorIs(t, err, auth.InvalidRefreshTokenErr)
}
