package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config carries every setting the login service consumes. Values come from
// an optional YAML file, overridden by environment variables, with sensible
// defaults for anything left unset.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Token     TokenConfig     `yaml:"token"`
	Directory DirectoryConfig `yaml:"directory"`
	Security  SecurityConfig  `yaml:"security"`
	Limiter   LimiterConfig   `yaml:"limiter"`
	Storage   StorageConfig   `yaml:"storage"`
}

// AppConfig identifies the running service.
type AppConfig struct {
	Name string `yaml:"name"`
	Env  string `yaml:"env"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // "memory" or "postgres"
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Load reads the YAML file at path (if path is non-empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "[config.Load] read %q", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "[config.Load] parse %q", path)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config populated with defaults only. Tests and the
// in-memory CLI mode start from here.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name: "go-login-service",
			Env:  "DEV",
		},
		Token: TokenConfig{
			SigningAlgorithm:   DefaultSigningAlgorithm,
			AccessTokenMinutes: DefaultAccessTokenMinutes,
			RefreshTokenDays:   DefaultRefreshTokenDays,
		},
		Directory: DirectoryConfig{
			Port:           DefaultDirectoryPort,
			TimeoutSeconds: DefaultDirectoryTimeoutSeconds,
		},
		Security: SecurityConfig{
			RequireConfirmedEmail: true,
			RootTenantID:          DefaultRootTenantID,
		},
		Limiter: LimiterConfig{
			MaxAttempts:   DefaultLimiterMaxAttempts,
			WindowSeconds: DefaultLimiterWindowSeconds,
		},
		Storage: StorageConfig{
			Driver: "memory",
		},
	}
}

func (c *Config) applyEnv() {
	c.App.Name = GetEnv("APP_NAME", c.App.Name)
	c.App.Env = GetEnv("ENV", c.App.Env)

	c.Token.SigningKey = GetEnv("SIGNING_KEY", c.Token.SigningKey)
	c.Token.SigningAlgorithm = GetEnv("SIGNING_ALGORITHM", c.Token.SigningAlgorithm)
	c.Token.AccessTokenMinutes = GetEnvInt("ACCESS_TOKEN_MINUTES", c.Token.AccessTokenMinutes)
	c.Token.RefreshTokenDays = GetEnvInt("REFRESH_TOKEN_DAYS", c.Token.RefreshTokenDays)

	c.Directory.Host = GetEnv("DIRECTORY_HOST", c.Directory.Host)
	c.Directory.Port = GetEnvInt("DIRECTORY_PORT", c.Directory.Port)
	c.Directory.Domain = GetEnv("DIRECTORY_DOMAIN", c.Directory.Domain)
	c.Directory.SearchBase = GetEnv("DIRECTORY_SEARCH_BASE", c.Directory.SearchBase)
	c.Directory.TimeoutSeconds = GetEnvInt("DIRECTORY_TIMEOUT_SECONDS", c.Directory.TimeoutSeconds)

	c.Security.RequireConfirmedEmail = GetEnvBool("REQUIRE_CONFIRMED_EMAIL", c.Security.RequireConfirmedEmail)
	c.Security.RootTenantID = GetEnv("ROOT_TENANT_ID", c.Security.RootTenantID)

	c.Limiter.Enabled = GetEnvBool("LIMITER_ENABLED", c.Limiter.Enabled)
	c.Limiter.MaxAttempts = GetEnvInt("LIMITER_MAX_ATTEMPTS", c.Limiter.MaxAttempts)
	c.Limiter.WindowSeconds = GetEnvInt("LIMITER_WINDOW_SECONDS", c.Limiter.WindowSeconds)
	c.Limiter.RedisAddr = GetEnv("REDIS_ADDR", c.Limiter.RedisAddr)
	c.Limiter.RedisPassword = GetEnv("REDIS_PASSWORD", c.Limiter.RedisPassword)

	c.Storage.Driver = GetEnv("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.PostgresDSN = GetEnv("POSTGRES_DSN", c.Storage.PostgresDSN)
}

// Validate reports the first configuration problem found. Error messages
// never include secret values.
func (c *Config) Validate() error {
	if err := c.Token.validate(); err != nil {
		return err
	}
	if err := c.Directory.validate(); err != nil {
		return err
	}
	if err := c.Limiter.validate(); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("[config.Validate] postgres driver requires POSTGRES_DSN")
		}
	default:
		return errors.Errorf("[config.Validate] unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}
