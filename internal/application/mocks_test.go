package application_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/ericfisherdev/storepanel/internal/application"
	"github.com/ericfisherdev/storepanel/internal/domain/model"
	"github.com/ericfisherdev/storepanel/internal/domain/port/driven"
)

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- mockAPI ---

// mockAPI implements driven.StorefrontAPI. Unset funcs return zero values.
// Every call is recorded by method name along with the credential it carried.
type mockAPI struct {
	mu    sync.Mutex
	calls []apiCall

	login          func(ctx context.Context, email, password string) (model.Credential, error)
	register       func(ctx context.Context, name, email, password string) error
	currentUser    func(ctx context.Context, cred model.Credential) (*model.Identity, error)
	listUsers      func(ctx context.Context, cred model.Credential) ([]model.Identity, error)
	updateUserRole func(ctx context.Context, cred model.Credential, userID string, role model.Role) error
	listProducts   func(ctx context.Context, cred model.Credential) ([]model.Product, error)
	updateProduct  func(ctx context.Context, cred model.Credential, productID string, patch model.ProductPatch) error
	listFavorites  func(ctx context.Context, cred model.Credential) ([]model.Product, error)
	listOrders     func(ctx context.Context, cred model.Credential) ([]model.Order, error)
	trending       func(ctx context.Context) ([]model.Product, error)
}

var _ driven.StorefrontAPI = (*mockAPI)(nil)

type apiCall struct {
	Method string
	Cred   model.Credential
}

func (m *mockAPI) record(method string, cred model.Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, apiCall{Method: method, Cred: cred})
}

func (m *mockAPI) Calls() []apiCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]apiCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *mockAPI) CallCount(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *mockAPI) Login(ctx context.Context, email, password string) (model.Credential, error) {
	m.record("Login", model.Credential{})
	if m.login == nil {
		return model.Credential{}, nil
	}
	return m.login(ctx, email, password)
}

func (m *mockAPI) Register(ctx context.Context, name, email, password string) error {
	m.record("Register", model.Credential{})
	if m.register == nil {
		return nil
	}
	return m.register(ctx, name, email, password)
}

func (m *mockAPI) CurrentUser(ctx context.Context, cred model.Credential) (*model.Identity, error) {
	m.record("CurrentUser", cred)
	if m.currentUser == nil {
		return nil, nil
	}
	return m.currentUser(ctx, cred)
}

func (m *mockAPI) ListUsers(ctx context.Context, cred model.Credential) ([]model.Identity, error) {
	m.record("ListUsers", cred)
	if m.listUsers == nil {
		return nil, nil
	}
	return m.listUsers(ctx, cred)
}

func (m *mockAPI) UpdateUserRole(ctx context.Context, cred model.Credential, userID string, role model.Role) error {
	m.record("UpdateUserRole", cred)
	if m.updateUserRole == nil {
		return nil
	}
	return m.updateUserRole(ctx, cred, userID, role)
}

func (m *mockAPI) ListProducts(ctx context.Context, cred model.Credential) ([]model.Product, error) {
	m.record("ListProducts", cred)
	if m.listProducts == nil {
		return nil, nil
	}
	return m.listProducts(ctx, cred)
}

func (m *mockAPI) UpdateProduct(ctx context.Context, cred model.Credential, productID string, patch model.ProductPatch) error {
	m.record("UpdateProduct", cred)
	if m.updateProduct == nil {
		return nil
	}
	return m.updateProduct(ctx, cred, productID, patch)
}

func (m *mockAPI) ListFavorites(ctx context.Context, cred model.Credential) ([]model.Product, error) {
	m.record("ListFavorites", cred)
	if m.listFavorites == nil {
		return nil, nil
	}
	return m.listFavorites(ctx, cred)
}

func (m *mockAPI) ListOrders(ctx context.Context, cred model.Credential) ([]model.Order, error) {
	m.record("ListOrders", cred)
	if m.listOrders == nil {
		return nil, nil
	}
	return m.listOrders(ctx, cred)
}

func (m *mockAPI) TrendingProducts(ctx context.Context) ([]model.Product, error) {
	m.record("TrendingProducts", model.Credential{})
	if m.trending == nil {
		return nil, nil
	}
	return m.trending(ctx)
}

// --- mockCredentialStore ---

type mockCredentialStore struct {
	mu       sync.Mutex
	cred     model.Credential
	loadErr  error
	saveErr  error
	clearErr error
	saves    int
	clears   int
}

var _ driven.CredentialStore = (*mockCredentialStore)(nil)

func (m *mockCredentialStore) Load(_ context.Context) (model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return model.Credential{}, m.loadErr
	}
	return m.cred, nil
}

func (m *mockCredentialStore) Save(_ context.Context, cred model.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.cred = cred
	return nil
}

func (m *mockCredentialStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	if m.clearErr != nil {
		return m.clearErr
	}
	m.cred = model.Credential{}
	return nil
}

func (m *mockCredentialStore) Stored() model.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred
}

// --- fixtures ---

var (
	aliceCred = model.Credential{Token: "alice-token"}
	alice     = model.Identity{ID: "1", Name: "alice", Email: "alice@example.com", Role: model.RoleCustomer}
	rootCred  = model.Credential{Token: "root-token"}
	root      = model.Identity{ID: "9", Name: "root", Email: "root@example.com", Role: model.RoleAdmin}
)

// identities returns a currentUser func resolving each known token.
func identities(byToken map[string]model.Identity) func(context.Context, model.Credential) (*model.Identity, error) {
	return func(_ context.Context, cred model.Credential) (*model.Identity, error) {
		id, ok := byToken[cred.Token]
		if !ok {
			return nil, driven.ErrUnauthorized
		}
		return &id, nil
	}
}

// staticSession is a SessionSource returning a fixed snapshot.
type staticSession struct {
	mu      sync.Mutex
	sess    application.Session
	fetches int
}

func (s *staticSession) Current() application.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

func (s *staticSession) FetchIdentity(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
}

func (s *staticSession) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}
