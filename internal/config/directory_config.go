package config

import (
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultDirectoryPort           = 389
	DefaultDirectoryTimeoutSeconds = 10
)

// DirectoryConfig points the service at an LDAP directory. Leaving Host
// empty disables the directory fall-back entirely.
type DirectoryConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Domain         string `yaml:"domain"`
	SearchBase     string `yaml:"search_base"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Enabled reports whether a directory has been configured.
func (d DirectoryConfig) Enabled() bool {
	return d.Host != ""
}

func (d DirectoryConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

func (d DirectoryConfig) validate() error {
	if !d.Enabled() {
		return nil
	}
	if d.Port <= 0 || d.Port > 65535 {
		return errors.Errorf("[config.Validate] directory port %d out of range", d.Port)
	}
	if d.SearchBase == "" {
		return errors.New("[config.Validate] DIRECTORY_SEARCH_BASE is required when a directory host is set")
	}
	if d.TimeoutSeconds <= 0 {
		return errors.New("[config.Validate] directory timeout must be positive")
	}
	return nil
}
