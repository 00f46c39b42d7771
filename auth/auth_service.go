package auth

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-login-service/directory"
	apperrors "github.com/jrsteele09/go-login-service/internal/errors"
	"github.com/jrsteele09/go-login-service/internal/metrics"
	"github.com/jrsteele09/go-login-service/internal/rate"
	"github.com/jrsteele09/go-login-service/tenants"
	"github.com/jrsteele09/go-login-service/token"
	"github.com/jrsteele09/go-login-service/users"
)

// DefaultRootTenantID is the tenant exempt from standing checks unless the
// service is configured with a different one.
const DefaultRootTenantID = "root"

// LoginRequest carries one credential set plus the tenant and client address
// context of the call.
type LoginRequest struct {
	Credentials Credentials // Local or directory credentials
	TenantID    string      // Tenant context of the request
	IPAddress   string      // Client address, recorded as a token claim
}

// RefreshRequest presents an expired access token together with the refresh
// token issued alongside it.
type RefreshRequest struct {
	AccessToken  string // Expired access token, still signature-checked
	RefreshToken string // Opaque rotating refresh token
	IPAddress    string // Client address for the reissued claims
}

// LoginResult is the outcome of a Login or Refresh call that was not
// rejected. When TwoFactorRequired is set the credentials were accepted but
// no tokens are issued until the second factor completes.
type LoginResult struct {
	UserID            string           `json:"user_id"`
	TwoFactorRequired bool             `json:"two_factor_required"`
	Tokens            *token.TokenPair `json:"tokens,omitempty"`
}

// Repos holds the repository dependencies for the Service.
type Repos struct {
	Users   users.UserRepo // Repository for user records
	Tenants tenants.Repo   // Repository for tenant records
}

// Service coordinates credential verification, tenant gating, two-factor
// deferral and token issuance.
type Service struct {
	repos                 Repos
	issuer                *token.Issuer    // Token signing and refresh generation
	gate                  *TenantGate      // Tenant standing checks
	dir                   directory.Client // Optional directory for DirectoryCredentials
	limiter               rate.Limiter     // Optional login attempt limiter
	rootTenantID          string
	requireConfirmedEmail bool
	nowTime               func() time.Time // nowTime function (injectable for testing)
	log                   zerolog.Logger
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithDirectory enables the directory login path.
func WithDirectory(client directory.Client) ServiceOption {
	return func(s *Service) {
		s.dir = client
	}
}

// WithLoginLimiter bounds login attempts per identifier and address.
func WithLoginLimiter(limiter rate.Limiter) ServiceOption {
	return func(s *Service) {
		s.limiter = limiter
	}
}

// WithRequireConfirmedEmail controls whether unconfirmed email addresses are
// rejected with EmailNotConfirmedErr. Enabled by default.
func WithRequireConfirmedEmail(required bool) ServiceOption {
	return func(s *Service) {
		s.requireConfirmedEmail = required
	}
}

// WithRootTenant overrides the tenant exempt from standing checks.
func WithRootTenant(tenantID string) ServiceOption {
	return func(s *Service) {
		s.rootTenantID = tenantID
	}
}

// WithLogger sets the service logger. Defaults to a no-op logger.
func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// NewService initializes a new Service with required dependencies.
// Optional configuration can be provided via options (e.g., WithDirectory
// to enable directory logins, WithNowTime for testing).
func NewService(
	repos Repos,
	issuer *token.Issuer,
	options ...ServiceOption,
) (*Service, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewService] Users repo is required")
	}
	if repos.Tenants == nil {
		return nil, errors.New("[NewService] Tenants repo is required")
	}
	if issuer == nil {
		return nil, errors.New("[NewService] issuer is required")
	}

	service := &Service{
		repos:                 repos,
		issuer:                issuer,
		rootTenantID:          DefaultRootTenantID,
		requireConfirmedEmail: true,
		nowTime:               time.Now,
		log:                   zerolog.Nop(),
	}

	for _, opt := range options {
		opt(service)
	}

	gate, err := NewTenantGate(repos.Tenants, service.rootTenantID)
	if err != nil {
		return nil, err
	}
	service.gate = gate

	return service, nil
}

// Login verifies the supplied credentials, checks the tenant's standing and,
// unless the user has two-factor enabled, issues a token pair and stores the
// new refresh token on the user record.
func (s *Service) Login(ctx context.Context, request LoginRequest) (*LoginResult, error) {
	if request.Credentials == nil {
		return nil, AuthenticationFailedErr
	}
	source := request.Credentials.kind()

	// Tenant context must be present before anything else runs.
	if strings.TrimSpace(request.TenantID) == "" {
		metrics.LoginAttempts.WithLabelValues(source, "rejected").Inc()
		return nil, AuthenticationFailedErr
	}

	// Attempt limiting
	if err := s.allowAttempt(ctx, request); err != nil {
		metrics.LoginAttempts.WithLabelValues(source, "rejected").Inc()
		return nil, err
	}

	// Verify credentials
	user, err := s.verify(ctx, request)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues(source, "rejected").Inc()
		return nil, err
	}

	// User standing
	if !user.Active {
		metrics.LoginAttempts.WithLabelValues(source, "rejected").Inc()
		return nil, UserInactiveErr
	}
	if s.requireConfirmedEmail && !user.EmailConfirmed {
		metrics.LoginAttempts.WithLabelValues(source, "rejected").Inc()
		return nil, EmailNotConfirmedErr
	}

	// Tenant standing
	if err := s.gate.Check(ctx, request.TenantID, s.nowTime()); err != nil {
		metrics.LoginAttempts.WithLabelValues(source, "rejected").Inc()
		return nil, err
	}

	// Two-factor decision: credentials are good but issuance is deferred
	// until the second factor completes.
	if user.TFAEnabled {
		metrics.LoginAttempts.WithLabelValues(source, "two_factor_required").Inc()
		return &LoginResult{UserID: user.ID, TwoFactorRequired: true}, nil
	}

	// Issue tokens and store the new refresh token.
	pair, err := s.issuer.Issue(user, request.TenantID, request.IPAddress)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login] issue")
	}
	if err := s.repos.Users.SetRefreshToken(ctx, user.ID, pair.RefreshToken, pair.RefreshTokenExpiry); err != nil {
		return nil, errors.Wrap(err, "[Service.Login] update refresh token")
	}

	metrics.LoginAttempts.WithLabelValues(source, "success").Inc()
	metrics.TokensIssued.Inc()
	s.log.Info().
		Str("user_id", user.ID).
		Str("tenant_id", request.TenantID).
		Str("source", source).
		Msg("login succeeded")

	return &LoginResult{UserID: user.ID, Tokens: pair}, nil
}

// Refresh rotates a refresh token. The expired access token is decoded with
// its signature and algorithm still enforced, the presented refresh token is
// compared against the stored one, and a fresh pair is issued carrying the
// caller's address. Exactly one of two concurrent rotations of the same
// token succeeds; the loser observes InvalidRefreshTokenErr.
func (s *Service) Refresh(ctx context.Context, request RefreshRequest) (*LoginResult, error) {
	principal, err := s.issuer.DecodeExpired(request.AccessToken)
	if err != nil {
		return nil, err
	}

	// Look up the user named by the token's email claim.
	user, err := s.repos.Users.GetByEmail(ctx, users.NormalizeEmail(principal.Email))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, AuthenticationFailedErr
		}
		return nil, errors.Wrap(err, "[Service.Refresh] user lookup")
	}

	// The presented refresh token must match the stored one and be unexpired.
	if !user.RefreshTokenMatches(request.RefreshToken, s.nowTime()) {
		return nil, InvalidRefreshTokenErr
	}

	pair, err := s.issuer.Issue(user, principal.TenantID, request.IPAddress)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Refresh] issue")
	}

	// Rotate: the update only lands if the stored token is still the one
	// presented, so a concurrent rotation of the same token loses here.
	if err := s.repos.Users.RotateRefreshToken(ctx, user.ID, request.RefreshToken, pair.RefreshToken, pair.RefreshTokenExpiry); err != nil {
		if apperrors.IsConflict(err) {
			metrics.RefreshConflicts.Inc()
			return nil, InvalidRefreshTokenErr
		}
		return nil, errors.Wrap(err, "[Service.Refresh] rotate refresh token")
	}

	metrics.RefreshRotations.Inc()
	metrics.TokensIssued.Inc()
	s.log.Info().
		Str("user_id", user.ID).
		Str("tenant_id", principal.TenantID).
		Msg("refresh token rotated")

	return &LoginResult{UserID: user.ID, Tokens: pair}, nil
}

// Logout clears the user's stored refresh token so any outstanding refresh
// token is rejected on its next use.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.repos.Users.SetRefreshToken(ctx, userID, "", time.Time{}); err != nil {
		return errors.Wrap(err, "[Service.Logout] clear refresh token")
	}
	return nil
}

func (s *Service) allowAttempt(ctx context.Context, request LoginRequest) error {
	if s.limiter == nil {
		return nil
	}
	key := "login:" + request.Credentials.limiterKey() + "|" + request.IPAddress
	result, err := s.limiter.Allow(ctx, key)
	if err != nil {
		// A broken limiter must not lock every account out.
		s.log.Warn().Err(err).Msg("login limiter unavailable")
		return nil
	}
	if !result.Allowed {
		s.log.Warn().
			Str("source", request.Credentials.kind()).
			Int64("hits", result.CurrentHits).
			Dur("retry_after", result.RetryAfter).
			Msg("login attempts over limit")
		return AuthenticationFailedErr
	}
	return nil
}

func (s *Service) verify(ctx context.Context, request LoginRequest) (*users.User, error) {
	var user *users.User
	var err error

	switch creds := request.Credentials.(type) {
	case LocalCredentials:
		user, err = s.verifyLocal(ctx, creds)
	case DirectoryCredentials:
		user, err = s.verifyDirectory(ctx, creds)
	default:
		return nil, AuthenticationFailedErr
	}
	if err != nil {
		return nil, err
	}

	// The resolved user must belong to the tenant context of the request.
	if user.TenantID != request.TenantID {
		return nil, AuthenticationFailedErr
	}
	return user, nil
}

// verifyLocal resolves a user by email or username and checks the password.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (s *Service) verifyLocal(ctx context.Context, creds LocalCredentials) (*users.User, error) {
	if creds.Password == "" {
		return nil, AuthenticationFailedErr
	}

	var user *users.User
	var err error
	switch {
	case strings.TrimSpace(creds.Email) != "":
		user, err = s.repos.Users.GetByEmail(ctx, users.NormalizeEmail(creds.Email))
	case strings.TrimSpace(creds.Username) != "":
		user, err = s.repos.Users.GetByUsername(ctx, users.NormalizeUsername(creds.Username))
	default:
		return nil, AuthenticationFailedErr
	}
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, AuthenticationFailedErr
		}
		return nil, errors.Wrap(err, "[Service.verifyLocal] user lookup")
	}

	if !user.CheckPassword(creds.Password) {
		return nil, AuthenticationFailedErr
	}
	return user, nil
}

// verifyDirectory binds to the directory as the supplied identity, searches
// for the matching account and maps its account name to a local user. Local
// accounts are never created from directory results.
func (s *Service) verifyDirectory(ctx context.Context, creds DirectoryCredentials) (*users.User, error) {
	if s.dir == nil {
		return nil, AuthenticationFailedErr
	}
	username := strings.TrimSpace(creds.Username)
	if username == "" || creds.Password == "" {
		return nil, AuthenticationFailedErr
	}

	conn, err := s.dir.Bind(ctx, username, creds.Password)
	if err != nil {
		if errors.Is(err, directory.UnavailableErr) {
			metrics.DirectoryUnavailable.Inc()
			s.log.Warn().Err(err).Msg("directory unreachable during bind")
			return nil, DirectoryUnavailableErr
		}
		return nil, AuthenticationFailedErr
	}
	defer func() { _ = conn.Close() }()

	entries, err := conn.Search(ctx, directory.AccountSearch(s.dir.SearchBase(), username))
	if err != nil {
		metrics.DirectoryUnavailable.Inc()
		s.log.Warn().Err(err).Msg("directory search failed")
		return nil, DirectoryUnavailableErr
	}
	if len(entries) == 0 {
		return nil, AuthenticationFailedErr
	}
	if len(entries) > 1 {
		// Known tie-break: directory search order decides, first entry wins.
		s.log.Warn().
			Str("username", username).
			Int("matches", len(entries)).
			Msg("directory search matched multiple entries, using first")
	}

	accountName := entries[0].GetAttributeValue(directory.AttributeAccountName)
	if accountName == "" {
		return nil, AuthenticationFailedErr
	}

	user, err := s.repos.Users.GetByUsername(ctx, users.NormalizeUsername(accountName))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, AuthenticationFailedErr
		}
		return nil, errors.Wrap(err, "[Service.verifyDirectory] user lookup")
	}
	return user, nil
}
