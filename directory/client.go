package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/pkg/errors"
)

var (
	// UnavailableErr indicates the directory could not be reached or did not
	// answer within the configured timeout. Kept distinct from credential
	// failures so operators can tell outages from bad logins.
	UnavailableErr = errors.New("directory unavailable")

	// BindFailedErr indicates the directory rejected the bind credentials.
	BindFailedErr = errors.New("directory bind failed")
)

// Scope selects how deep a directory search descends from its base.
type Scope int

const (
	ScopeBaseObject Scope = iota
	ScopeSingleLevel
	ScopeWholeSubtree
)

// Directory attribute names requested by the account search. Only the
// external id and account name are consumed; the rest ride along for
// diagnostic value.
const (
	AttributeObjectGUID  = "objectGUID"
	AttributeAccountName = "sAMAccountName"
	AttributeDisplayName = "displayName"
	AttributeMail        = "mail"
	AttributeWhenCreated = "whenCreated"
	AttributeMemberOf    = "memberOf"
)

// SearchRequest describes a directory search.
type SearchRequest struct {
	BaseDN     string
	Filter     string
	Scope      Scope
	Attributes []string
}

// Entry is a single directory search result.
type Entry struct {
	DN         string
	Attributes map[string][]string
}

// GetAttributeValue returns the first value of the named attribute, or the
// empty string when the attribute is absent.
func (e *Entry) GetAttributeValue(name string) string {
	values := e.Attributes[name]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Client is the directory capability used by the directory login path.
// Bind authenticates a new connection with the supplied credentials and
// hands it back for searching; implementations apply the configured network
// timeout to every operation.
type Client interface {
	Bind(ctx context.Context, username, password string) (Conn, error)
	SearchBase() string
}

// Conn is a bound directory connection. Callers must Close it.
type Conn interface {
	Search(ctx context.Context, req SearchRequest) ([]Entry, error)
	Close() error
}

// QualifyUsername prefixes the username with the directory domain
// (DOMAIN\username) unless the caller already supplied a qualified or
// principal-name formatted identity.
func QualifyUsername(domain, username string) string {
	if domain == "" || strings.Contains(username, `\`) || strings.Contains(username, "@") {
		return username
	}
	return domain + `\` + username
}

// AccountFilter builds the search filter matching a login identifier against
// either the account name or the principal name.
func AccountFilter(username string) string {
	escaped := ldap.EscapeFilter(username)
	return fmt.Sprintf("(|(%s=%s)(userPrincipalName=%s))", AttributeAccountName, escaped, escaped)
}

// AccountSearch builds the search request used to resolve a bound user's
// directory entry under the configured base.
func AccountSearch(baseDN, username string) SearchRequest {
	return SearchRequest{
		BaseDN: baseDN,
		Filter: AccountFilter(username),
		Scope:  ScopeWholeSubtree,
		Attributes: []string{
			AttributeObjectGUID,
			AttributeAccountName,
			AttributeDisplayName,
			AttributeMail,
			AttributeWhenCreated,
			AttributeMemberOf,
		},
	}
}
