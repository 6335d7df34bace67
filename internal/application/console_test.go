package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/storepanel/internal/application"
	"github.com/ericfisherdev/storepanel/internal/domain/model"
	"github.com/ericfisherdev/storepanel/internal/domain/port/driven"
)

func sessionAs(identity model.Identity, cred model.Credential) *staticSession {
	return &staticSession{sess: application.Session{Identity: &identity, Credential: cred}}
}

func TestAdminConsole_Load(t *testing.T) {
	users := []model.Identity{alice, root}
	products := []model.Product{{ID: "p1", Name: "Lamp", Price: 10}}
	api := &mockAPI{
		listUsers:    func(context.Context, model.Credential) ([]model.Identity, error) { return users, nil },
		listProducts: func(context.Context, model.Credential) ([]model.Product, error) { return products, nil },
	}
	console := application.NewAdminConsole(sessionAs(root, rootCred), api, discardLogger())

	data, decision, err := console.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, application.Allowed, decision)
	assert.Equal(t, users, data.Users)
	assert.Equal(t, products, data.Products)
	for _, c := range api.Calls() {
		assert.Equal(t, rootCred, c.Cred)
	}
}

func TestAdminConsole_CustomerDeniedWithoutRequest(t *testing.T) {
	api := &mockAPI{}
	console := application.NewAdminConsole(sessionAs(alice, aliceCred), api, discardLogger())

	_, decision, err := console.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, application.DeniedInsufficientRole, decision)

	decision, err = console.ChangeRole(context.Background(), "1", model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, application.DeniedInsufficientRole, decision)

	name := "x"
	decision, err = console.UpdateProduct(context.Background(), "p1", model.ProductPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, application.DeniedInsufficientRole, decision)

	assert.Empty(t, api.Calls())
}

func TestAdminConsole_UnauthenticatedDenied(t *testing.T) {
	api := &mockAPI{}
	console := application.NewAdminConsole(&staticSession{}, api, discardLogger())

	_, decision, err := console.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, application.DeniedUnauthenticated, decision)
	assert.Empty(t, api.Calls())
}

func TestAdminConsole_ChangeRole(t *testing.T) {
	var gotUser string
	var gotRole model.Role
	api := &mockAPI{updateUserRole: func(_ context.Context, _ model.Credential, userID string, role model.Role) error {
		gotUser, gotRole = userID, role
		return nil
	}}
	session := sessionAs(root, rootCred)
	console := application.NewAdminConsole(session, api, discardLogger())

	decision, err := console.ChangeRole(context.Background(), "1", model.RoleWorker)

	require.NoError(t, err)
	assert.Equal(t, application.Allowed, decision)
	assert.Equal(t, "1", gotUser)
	assert.Equal(t, model.RoleWorker, gotRole)
	assert.Zero(t, session.Fetches())
}

func TestAdminConsole_ChangeOwnRoleRevalidates(t *testing.T) {
	session := sessionAs(root, rootCred)
	console := application.NewAdminConsole(session, &mockAPI{}, discardLogger())

	_, err := console.ChangeRole(context.Background(), root.ID, model.RoleCustomer)

	require.NoError(t, err)
	assert.Equal(t, 1, session.Fetches())
}

func TestAdminConsole_ChangeRoleRejectsInvalidRole(t *testing.T) {
	api := &mockAPI{}
	console := application.NewAdminConsole(sessionAs(root, rootCred), api, discardLogger())

	_, err := console.ChangeRole(context.Background(), "1", model.Role(0))

	var ve *application.ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Empty(t, api.Calls())
}

func TestAdminConsole_UpdateProductValidation(t *testing.T) {
	api := &mockAPI{}
	console := application.NewAdminConsole(sessionAs(root, rootCred), api, discardLogger())

	price := -1.0
	_, err := console.UpdateProduct(context.Background(), "p1", model.ProductPatch{Price: &price})

	var ve *application.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "price must be at least 0")
	assert.Empty(t, api.Calls())
}

func TestAdminConsole_UpdateProduct(t *testing.T) {
	var got model.ProductPatch
	api := &mockAPI{updateProduct: func(_ context.Context, _ model.Credential, _ string, patch model.ProductPatch) error {
		got = patch
		return nil
	}}
	console := application.NewAdminConsole(sessionAs(root, rootCred), api, discardLogger())

	desc := "new"
	decision, err := console.UpdateProduct(context.Background(), "p1", model.ProductPatch{Description: &desc})

	require.NoError(t, err)
	assert.Equal(t, application.Allowed, decision)
	require.NotNil(t, got.Description)
	assert.Equal(t, "new", *got.Description)
}

func TestAdminConsole_UnauthorizedBackendRevalidates(t *testing.T) {
	api := &mockAPI{listUsers: func(context.Context, model.Credential) ([]model.Identity, error) {
		return nil, driven.ErrUnauthorized
	}}
	session := sessionAs(root, rootCred)
	console := application.NewAdminConsole(session, api, discardLogger())

	_, _, err := console.Load(context.Background())

	assert.True(t, errors.Is(err, driven.ErrUnauthorized))
	assert.Equal(t, 1, session.Fetches())
}

func TestCustomerDashboard_Load(t *testing.T) {
	favorites := []model.Product{{ID: "p2", Name: "Desk", Price: 99}}
	orders := []model.Order{{ID: "o1", Date: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), Total: 99, Status: "shipped"}}
	api := &mockAPI{
		listFavorites: func(context.Context, model.Credential) ([]model.Product, error) { return favorites, nil },
		listOrders:    func(context.Context, model.Credential) ([]model.Order, error) { return orders, nil },
	}
	dashboard := application.NewCustomerDashboard(sessionAs(alice, aliceCred), api, discardLogger())

	data, decision, err := dashboard.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, application.Allowed, decision)
	assert.Equal(t, alice, data.Identity)
	assert.Equal(t, favorites, data.Favorites)
	assert.Equal(t, orders, data.Orders)
}

func TestCustomerDashboard_AnyRoleAllowed(t *testing.T) {
	for _, role := range model.Roles {
		identity := alice
		identity.Role = role
		dashboard := application.NewCustomerDashboard(sessionAs(identity, aliceCred), &mockAPI{}, discardLogger())

		_, decision, err := dashboard.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, application.Allowed, decision, role.String())
	}
}

func TestCustomerDashboard_UnauthenticatedDenied(t *testing.T) {
	api := &mockAPI{}
	dashboard := application.NewCustomerDashboard(&staticSession{}, api, discardLogger())

	_, decision, err := dashboard.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, application.DeniedUnauthenticated, decision)
	assert.Empty(t, api.Calls())
}

func TestCustomerDashboard_BackendError(t *testing.T) {
	api := &mockAPI{listOrders: func(context.Context, model.Credential) ([]model.Order, error) {
		return nil, errBoom
	}}
	session := sessionAs(alice, aliceCred)
	dashboard := application.NewCustomerDashboard(session, api, discardLogger())

	_, _, err := dashboard.Load(context.Background())

	assert.True(t, errors.Is(err, errBoom))
	assert.Zero(t, session.Fetches())
}

func TestCatalog_Trending(t *testing.T) {
	products := []model.Product{{ID: "p1", Name: "Lamp"}}
	api := &mockAPI{trending: func(context.Context) ([]model.Product, error) { return products, nil }}

	got, err := application.NewCatalog(api).Trending(context.Background())

	require.NoError(t, err)
	assert.Equal(t, products, got)
	calls := api.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Cred.IsZero())
}
