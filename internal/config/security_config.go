package config

import (
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultRootTenantID         = "root"
	DefaultLimiterMaxAttempts   = 10
	DefaultLimiterWindowSeconds = 60
)

// SecurityConfig holds account and tenant policy settings.
type SecurityConfig struct {
	RequireConfirmedEmail bool   `yaml:"require_confirmed_email"`
	RootTenantID          string `yaml:"root_tenant_id"`
}

// LimiterConfig controls login attempt limiting. With Enabled set and no
// Redis address the service falls back to an in-process window.
type LimiterConfig struct {
	Enabled       bool   `yaml:"enabled"`
	MaxAttempts   int    `yaml:"max_attempts"`
	WindowSeconds int    `yaml:"window_seconds"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
}

func (l LimiterConfig) Window() time.Duration {
	return time.Duration(l.WindowSeconds) * time.Second
}

func (l LimiterConfig) validate() error {
	if !l.Enabled {
		return nil
	}
	if l.MaxAttempts <= 0 {
		return errors.New("[config.Validate] limiter max attempts must be positive")
	}
	if l.WindowSeconds <= 0 {
		return errors.New("[config.Validate] limiter window must be positive")
	}
	return nil
}
