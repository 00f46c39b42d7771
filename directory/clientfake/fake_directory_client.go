package clientfake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-login-service/directory"
)

var _ directory.Client = (*FakeDirectoryClient)(nil)

// FakeDirectoryClient is an in-memory directory for tests: credentials added
// with AddCredentials bind successfully, and every search on a bound
// connection returns the configured entries.
type FakeDirectoryClient struct {
	lock          sync.Mutex
	searchBase    string
	credentials   map[string]string
	searchEntries []directory.Entry
	bindErr       error
	searchErr     error
	lastBind      string
	lastSearch    directory.SearchRequest
}

func NewFakeDirectoryClient() *FakeDirectoryClient {
	return &FakeDirectoryClient{
		searchBase:  "dc=example,dc=test",
		credentials: make(map[string]string),
	}
}

// SearchBase returns the configured search base.
func (fd *FakeDirectoryClient) SearchBase() string {
	fd.lock.Lock()
	defer fd.lock.Unlock()
	return fd.searchBase
}

// SetSearchBase overrides the search base returned by SearchBase.
func (fd *FakeDirectoryClient) SetSearchBase(base string) {
	fd.lock.Lock()
	defer fd.lock.Unlock()
	fd.searchBase = base
}

// AddCredentials registers a username/password pair that binds successfully.
func (fd *FakeDirectoryClient) AddCredentials(username, password string) {
	fd.lock.Lock()
	defer fd.lock.Unlock()
	fd.credentials[username] = password
}

// SetEntries sets the entries every search returns.
func (fd *FakeDirectoryClient) SetEntries(entries ...directory.Entry) {
	fd.lock.Lock()
	defer fd.lock.Unlock()
	fd.searchEntries = entries
}

// FailBindWith forces every Bind to fail with err.
func (fd *FakeDirectoryClient) FailBindWith(err error) {
	fd.lock.Lock()
	defer fd.lock.Unlock()
	fd.bindErr = err
}

// FailSearchWith forces every Search to fail with err.
func (fd *FakeDirectoryClient) FailSearchWith(err error) {
	fd.lock.Lock()
	defer fd.lock.Unlock()
	fd.searchErr = err
}

// LastBind returns the username presented on the most recent bind.
func (fd *FakeDirectoryClient) LastBind() string {
	fd.lock.Lock()
	defer fd.lock.Unlock()
	return fd.lastBind
}

// LastSearch returns the most recent search request.
func (fd *FakeDirectoryClient) LastSearch() directory.SearchRequest {
	fd.lock.Lock()
	defer fd.lock.Unlock()
	return fd.lastSearch
}

func (fd *FakeDirectoryClient) Bind(ctx context.Context, username, password string) (directory.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fd.lock.Lock()
	defer fd.lock.Unlock()

	if fd.bindErr != nil {
		return nil, fd.bindErr
	}
	stored, ok := fd.credentials[username]
	if !ok || stored != password {
		return nil, directory.BindFailedErr
	}
	fd.lastBind = username
	return &fakeConn{client: fd}, nil
}

type fakeConn struct {
	client *FakeDirectoryClient
}

func (fc *fakeConn) Search(ctx context.Context, req directory.SearchRequest) ([]directory.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fc.client.lock.Lock()
	defer fc.client.lock.Unlock()

	if fc.client.searchErr != nil {
		return nil, fc.client.searchErr
	}
	fc.client.lastSearch = req
	return append([]directory.Entry(nil), fc.client.searchEntries...), nil
}

func (fc *fakeConn) Close() error {
	return nil
}
