package application_test

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/storepanel/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/storepanel/internal/adapter/driven/storefront"
	"github.com/ericfisherdev/storepanel/internal/application"
	"github.com/ericfisherdev/storepanel/internal/domain/model"
	"github.com/ericfisherdev/storepanel/internal/testutil/fakebackend"
)

var scenarioKey = []byte("0123456789abcdef0123456789abcdef")

// stack wires the real storefront client and sqlite credential repo against
// a fake backend.
type stack struct {
	backend *fakebackend.Backend
	repo    *sqlite.CredentialRepo
	client  *storefront.Client
	dbPath  string
}

func newStack(t *testing.T) *stack {
	t.Helper()

	backend := fakebackend.New(t)
	client, err := storefront.NewClientWithHTTPClient(backend.Client(), backend.URL(), discardLogger())
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "storepanel.db")
	return &stack{
		backend: backend,
		repo:    openRepo(t, dbPath),
		client:  client,
		dbPath:  dbPath,
	}
}

func openRepo(t *testing.T, dbPath string) *sqlite.CredentialRepo {
	t.Helper()

	db, err := sqlite.NewDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = sqlite.RunMigrations(db.Writer)
	require.NoError(t, err)

	return sqlite.NewCredentialRepo(db, scenarioKey)
}

func (s *stack) session() *application.SessionStore {
	return application.NewSessionStore(s.client, s.repo, discardLogger())
}

func TestScenario_FreshStartAdminFallback(t *testing.T) {
	s := newStack(t)
	store := s.session()

	store.Initialize(context.Background())
	require.False(t, store.Current().Authenticated())

	console := application.NewAdminConsole(store, s.client, discardLogger())
	_, decision, err := console.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, application.DeniedUnauthenticated, decision)
	assert.Empty(t, s.backend.Requests())
}

func TestScenario_LoginThenFavoritesCarryBearer(t *testing.T) {
	s := newStack(t)
	id := s.backend.AddUser("a", "a@b.com", "pw", model.RoleCustomer)
	store := s.session()

	require.NoError(t, store.Login(context.Background(), "a@b.com", "pw"))

	sess := store.Current()
	require.True(t, sess.Authenticated())
	assert.Equal(t, id, sess.Identity.ID)
	assert.Equal(t, model.RoleCustomer, sess.Identity.Role)

	dashboard := application.NewCustomerDashboard(store, s.client, discardLogger())
	_, decision, err := dashboard.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, application.Allowed, decision)

	reqs := s.backend.RequestsTo(http.MethodGet, "/api/favorites")
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer "+sess.Credential.Token, reqs[0].Authorization)
}

func TestScenario_CustomerDeniedAdminView(t *testing.T) {
	s := newStack(t)
	s.backend.AddUser("a", "a@b.com", "pw", model.RoleCustomer)
	store := s.session()
	require.NoError(t, store.Login(context.Background(), "a@b.com", "pw"))

	console := application.NewAdminConsole(store, s.client, discardLogger())
	_, decision, err := console.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, application.DeniedInsufficientRole, decision)
	assert.Empty(t, s.backend.RequestsTo(http.MethodGet, "/api/users"))
	assert.Empty(t, s.backend.RequestsTo(http.MethodGet, "/api/products"))
}

func TestScenario_ExpiredTokenUnwinds(t *testing.T) {
	s := newStack(t)
	s.backend.AddUser("a", "a@b.com", "pw", model.RoleCustomer)
	store := s.session()
	require.NoError(t, store.Login(context.Background(), "a@b.com", "pw"))

	s.backend.RevokeTokens()
	store.FetchIdentity(context.Background())

	assert.False(t, store.Current().Authenticated())
	stored, err := s.repo.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, stored.IsZero())

	// Requests constructed after logout carry no header.
	dashboard := application.NewCustomerDashboard(store, s.client, discardLogger())
	_, decision, err := dashboard.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, application.DeniedUnauthenticated, decision)
	_, _ = application.NewCatalog(s.client).Trending(context.Background())
	reqs := s.backend.RequestsTo(http.MethodGet, "/api/products/trending")
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].Authorization)
}

func TestScenario_RegisterLogsInAsCustomer(t *testing.T) {
	s := newStack(t)
	store := s.session()

	require.NoError(t, store.Register(context.Background(), "bob", "bob@x.com", "pw"))

	sess := store.Current()
	require.True(t, sess.Authenticated())
	assert.Equal(t, "bob", sess.Identity.Name)
	assert.Equal(t, "bob@x.com", sess.Identity.Email)
	assert.Equal(t, model.RoleCustomer, sess.Identity.Role)
	assert.Len(t, s.backend.RequestsTo(http.MethodPost, "/api/login"), 1)
}

func TestScenario_SessionSurvivesRestart(t *testing.T) {
	s := newStack(t)
	s.backend.AddUser("a", "a@b.com", "pw", model.RoleAdmin)
	require.NoError(t, s.session().Login(context.Background(), "a@b.com", "pw"))

	// A second store over a fresh connection to the same database file.
	restarted := application.NewSessionStore(s.client, openRepo(t, s.dbPath), discardLogger())
	restarted.Initialize(context.Background())

	sess := restarted.Current()
	require.True(t, sess.Authenticated())
	assert.Equal(t, model.RoleAdmin, sess.Identity.Role)
}

func TestScenario_RevokedTokenAtStartupClearsSlot(t *testing.T) {
	s := newStack(t)
	s.backend.AddUser("a", "a@b.com", "pw", model.RoleCustomer)
	require.NoError(t, s.session().Login(context.Background(), "a@b.com", "pw"))
	s.backend.RevokeTokens()

	restarted := s.session()
	restarted.Initialize(context.Background())

	assert.False(t, restarted.Current().Authenticated())
	stored, err := s.repo.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, stored.IsZero())
}

func TestScenario_AdminChangesRole(t *testing.T) {
	s := newStack(t)
	s.backend.AddUser("root", "root@x.com", "pw", model.RoleAdmin)
	bob := s.backend.AddUser("bob", "bob@x.com", "pw", model.RoleCustomer)
	store := s.session()
	require.NoError(t, store.Login(context.Background(), "root@x.com", "pw"))

	console := application.NewAdminConsole(store, s.client, discardLogger())
	decision, err := console.ChangeRole(context.Background(), bob, model.RoleWorker)
	require.NoError(t, err)
	assert.Equal(t, application.Allowed, decision)

	data, _, err := console.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, data.Users, 2)
	assert.Equal(t, model.RoleWorker, data.Users[1].Role)
}
