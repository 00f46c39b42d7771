package token

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-login-service/users"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// InvalidTokenErr is returned when an access token fails signature or
// algorithm verification on decode.
var InvalidTokenErr = errors.New("invalid token")

const (
	// DefaultAccessTokenExpiry is used when no access token lifetime is configured
	DefaultAccessTokenExpiry = 15 * time.Minute

	// DefaultRefreshTokenExpiry is used when no refresh token lifetime is configured
	DefaultRefreshTokenExpiry = 30 * 24 * time.Hour

	refreshTokenBytes = 32
)

// TokenPair carries a freshly issued access/refresh token pair.
type TokenPair struct {
	AccessToken        string    `json:"access_token"`
	AccessTokenExpiry  time.Time `json:"access_token_expiry"`
	RefreshToken       string    `json:"refresh_token"`
	RefreshTokenExpiry time.Time `json:"refresh_token_expiry"`
}

// Issuer mints signed access tokens and opaque refresh tokens, and decodes
// expired-but-otherwise-valid access tokens for the refresh flow.
type Issuer struct {
	signer        Signer
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// IssuerOption configures an Issuer
type IssuerOption func(*Issuer)

// WithAccessTokenExpiry sets the access token lifetime
func WithAccessTokenExpiry(expiry time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.accessExpiry = expiry
	}
}

// WithRefreshTokenExpiry sets the refresh token lifetime
func WithRefreshTokenExpiry(expiry time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.refreshExpiry = expiry
	}
}

// NewIssuer creates an Issuer around the given signer
func NewIssuer(signer Signer, options ...IssuerOption) (*Issuer, error) {
	if signer == nil {
		return nil, errors.New("[NewIssuer] signer is required")
	}
	issuer := &Issuer{
		signer:        signer,
		accessExpiry:  DefaultAccessTokenExpiry,
		refreshExpiry: DefaultRefreshTokenExpiry,
	}
	for _, option := range options {
		option(issuer)
	}
	if issuer.accessExpiry <= 0 || issuer.refreshExpiry <= 0 {
		return nil, errors.New("[NewIssuer] token lifetimes must be positive")
	}
	return issuer, nil
}

// Issue mints a TokenPair for the user within the given tenant context. The
// access token carries the identity claims plus iat/exp; the refresh token
// is random text with its own expiry. Storage of the refresh token on the
// user record is the caller's job.
func (i *Issuer) Issue(user *users.User, tenantID, ipAddress string) (*TokenPair, error) {
	now := NowTimeFunc()

	claims := Claims(user, tenantID, ipAddress)
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(i.accessExpiry).Unix()

	accessToken, err := i.signer.Sign(claims)
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.Issue] Sign")
	}

	refreshToken, err := NewRefreshToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.Issue] NewRefreshToken")
	}

	return &TokenPair{
		AccessToken:        accessToken,
		AccessTokenExpiry:  now.Add(i.accessExpiry),
		RefreshToken:       refreshToken,
		RefreshTokenExpiry: now.Add(i.refreshExpiry),
	}, nil
}

// DecodeExpired verifies the token's signature and algorithm but skips
// expiry validation. It exists solely to recover the identity from an
// access token presented on the refresh path; any signature or algorithm
// mismatch, including a token claiming an asymmetric or "none" algorithm,
// fails with InvalidTokenErr.
func (i *Issuer) DecodeExpired(rawToken string) (*Principal, error) {
	parser := jwtlib.NewParser(jwtlib.WithoutClaimsValidation())
	parsedToken, err := parser.Parse(rawToken, i.signer.GetVerificationKey)
	if err != nil || !parsedToken.Valid {
		return nil, InvalidTokenErr
	}

	claims, ok := parsedToken.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, InvalidTokenErr
	}

	principal := principalFromClaims(claims)
	if principal.UserID == "" || principal.Email == "" {
		return nil, InvalidTokenErr
	}
	return principal, nil
}

// NewRefreshToken returns 32 bytes from a cryptographically secure random
// source, Base64 encoded.
func NewRefreshToken() (string, error) {
	tokenBytes := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "failed to generate random bytes")
	}
	return base64.StdEncoding.EncodeToString(tokenBytes), nil
}
