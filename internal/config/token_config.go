package config

import (
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultSigningAlgorithm   = "HS256"
	DefaultAccessTokenMinutes = 15
	DefaultRefreshTokenDays   = 30
)

// TokenConfig controls token signing and lifetimes. SigningKey is a secret
// and must never appear in logs or error messages.
type TokenConfig struct {
	SigningKey         string `yaml:"signing_key"`
	SigningAlgorithm   string `yaml:"signing_algorithm"`
	AccessTokenMinutes int    `yaml:"access_token_minutes"`
	RefreshTokenDays   int    `yaml:"refresh_token_days"`
}

func (t TokenConfig) AccessTokenExpiry() time.Duration {
	return time.Duration(t.AccessTokenMinutes) * time.Minute
}

func (t TokenConfig) RefreshTokenExpiry() time.Duration {
	return time.Duration(t.RefreshTokenDays) * 24 * time.Hour
}

func (t TokenConfig) validate() error {
	if t.SigningKey == "" {
		return errors.New("[config.Validate] SIGNING_KEY is required")
	}
	if t.AccessTokenMinutes <= 0 {
		return errors.New("[config.Validate] access token lifetime must be positive")
	}
	if t.RefreshTokenDays <= 0 {
		return errors.New("[config.Validate] refresh token lifetime must be positive")
	}
	return nil
}
