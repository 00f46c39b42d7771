package auth

import (
	"strings"

	"github.com/jrsteele09/go-login-service/users"
)

// Credentials selects the verification path for a login attempt. The two
// variants are LocalCredentials and DirectoryCredentials.
type Credentials interface {
	// kind labels the credential source ("local" or "directory").
	kind() string
	// limiterKey identifies the account being attempted, for rate limiting.
	limiterKey() string
}

// LocalCredentials authenticate against the local user store. Lookup runs by
// normalized email when Email is set, otherwise by normalized username.
type LocalCredentials struct {
	Email    string
	Username string
	Password string
}

func (c LocalCredentials) kind() string { return "local" }

func (c LocalCredentials) limiterKey() string {
	if strings.TrimSpace(c.Email) != "" {
		return users.NormalizeEmail(c.Email)
	}
	return users.NormalizeUsername(c.Username)
}

// DirectoryCredentials bind to the external directory as the supplied
// identity. The matched directory account is then mapped to a local user.
type DirectoryCredentials struct {
	Username string
	Password string
}

func (c DirectoryCredentials) kind() string { return "directory" }

func (c DirectoryCredentials) limiterKey() string {
	return users.NormalizeUsername(c.Username)
}
