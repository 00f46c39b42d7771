package directory

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/pkg/errors"
)

// DefaultTimeout bounds directory dial, bind and search operations when
// configuration does not set one.
const DefaultTimeout = 10 * time.Second

const defaultPort = 389

// Config holds the connection settings for an LDAP directory.
type Config struct {
	Host       string
	Port       int
	Domain     string
	SearchBase string
	Timeout    time.Duration
}

// LDAPClient implements Client against an LDAP directory. Every Bind opens
// its own connection, so a single client is safe for concurrent use.
type LDAPClient struct {
	config Config
}

var _ Client = (*LDAPClient)(nil)

// NewLDAPClient creates a directory client for the configured server.
func NewLDAPClient(config Config) (*LDAPClient, error) {
	if config.Host == "" {
		return nil, errors.New("[NewLDAPClient] directory host is required")
	}
	if config.Port == 0 {
		config.Port = defaultPort
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &LDAPClient{config: config}, nil
}

// SearchBase returns the configured search base DN.
func (c *LDAPClient) SearchBase() string {
	return c.config.SearchBase
}

// Bind dials the directory and authenticates with the supplied credentials,
// qualifying the username with the configured domain. Transport failures
// surface as UnavailableErr; rejected credentials as BindFailedErr. The
// password is never included in a returned error.
func (c *LDAPClient) Bind(ctx context.Context, username, password string) (Conn, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, errors.Wrap(UnavailableErr, err.Error())
	}

	bindName := QualifyUsername(c.config.Domain, username)
	if err := conn.Bind(bindName, password); err != nil {
		_ = conn.Close()
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return nil, BindFailedErr
		}
		return nil, errors.Wrapf(UnavailableErr, "bind %q", bindName)
	}

	return &ldapConn{conn: conn}, nil
}

func (c *LDAPClient) dial(ctx context.Context) (*ldap.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: c.config.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	address := fmt.Sprintf("ldap://%s", net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port)))
	conn, err := ldap.DialURL(address, ldap.DialWithDialer(dialer))
	if err != nil {
		return nil, err
	}
	conn.SetTimeout(c.config.Timeout)
	return conn, nil
}

type ldapConn struct {
	conn *ldap.Conn
}

func (l *ldapConn) Search(ctx context.Context, req SearchRequest) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	searchRequest := ldap.NewSearchRequest(
		req.BaseDN,
		ldapScope(req.Scope),
		ldap.NeverDerefAliases,
		0, 0, false,
		req.Filter,
		req.Attributes,
		nil,
	)

	result, err := l.conn.Search(searchRequest)
	if err != nil {
		return nil, errors.Wrap(UnavailableErr, err.Error())
	}

	entries := make([]Entry, 0, len(result.Entries))
	for _, found := range result.Entries {
		attributes := make(map[string][]string, len(found.Attributes))
		for _, attribute := range found.Attributes {
			attributes[attribute.Name] = attribute.Values
		}
		entries = append(entries, Entry{DN: found.DN, Attributes: attributes})
	}
	return entries, nil
}

func (l *ldapConn) Close() error {
	return l.conn.Close()
}

func ldapScope(scope Scope) int {
	switch scope {
	case ScopeBaseObject:
		return ldap.ScopeBaseObject
	case ScopeSingleLevel:
		return ldap.ScopeSingleLevel
	default:
		return ldap.ScopeWholeSubtree
	}
}
