package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/ericfisherdev/storepanel/internal/domain/model"
	"github.com/ericfisherdev/storepanel/internal/domain/port/driven"
	"github.com/ericfisherdev/storepanel/internal/metrics"
)

// SessionSource is the read side of the SessionStore used by gated services.
type SessionSource interface {
	Current() Session
	FetchIdentity(ctx context.Context)
}

// AdminData is everything the admin console shows.
type AdminData struct {
	Users    []model.Identity
	Products []model.Product
}

// CustomerData is everything the customer dashboard shows.
type CustomerData struct {
	Identity  model.Identity
	Favorites []model.Product
	Orders    []model.Order
}

// AdminConsole serves the admin-only views. Every operation evaluates the
// authorization gate against the current session first; a denied decision
// returns without contacting the backend.
type AdminConsole struct {
	session  SessionSource
	api      driven.StorefrontAPI
	logger   *slog.Logger
	validate *validator.Validate
}

// NewAdminConsole creates an AdminConsole.
func NewAdminConsole(session SessionSource, api driven.StorefrontAPI, logger *slog.Logger) *AdminConsole {
	return &AdminConsole{session: session, api: api, logger: logger, validate: newValidator()}
}

var adminRequirement = RequireRole(model.RoleAdmin)

// Load fetches the account list and the product catalog.
func (c *AdminConsole) Load(ctx context.Context) (AdminData, Decision, error) {
	sess, decision := gate(c.session, adminRequirement, "admin")
	if decision != Allowed {
		return AdminData{}, decision, nil
	}

	users, err := c.api.ListUsers(ctx, sess.Credential)
	if err != nil {
		return AdminData{}, decision, c.backendError(ctx, "list users", err)
	}
	products, err := c.api.ListProducts(ctx, sess.Credential)
	if err != nil {
		return AdminData{}, decision, c.backendError(ctx, "list products", err)
	}
	return AdminData{Users: users, Products: products}, decision, nil
}

// ChangeRole assigns role to the account identified by userID.
func (c *AdminConsole) ChangeRole(ctx context.Context, userID string, role model.Role) (Decision, error) {
	sess, decision := gate(c.session, adminRequirement, "admin")
	if decision != Allowed {
		return decision, nil
	}
	if userID == "" || !role.Valid() {
		return decision, &ValidationError{Fields: []string{"user and a valid role are required"}}
	}

	if err := c.api.UpdateUserRole(ctx, sess.Credential, userID, role); err != nil {
		return decision, c.backendError(ctx, "update role", err)
	}
	c.logger.Info("user role changed", "user_id", userID, "role", role, "by", sess.Identity.ID)

	// Changing our own role alters what the gate allows next.
	if userID == sess.Identity.ID {
		c.session.FetchIdentity(ctx)
	}
	return decision, nil
}

// UpdateProduct applies patch to the product identified by productID.
func (c *AdminConsole) UpdateProduct(ctx context.Context, productID string, patch model.ProductPatch) (Decision, error) {
	sess, decision := gate(c.session, adminRequirement, "admin")
	if decision != Allowed {
		return decision, nil
	}
	if productID == "" {
		return decision, &ValidationError{Fields: []string{"product is required"}}
	}
	if err := validateInput(c.validate, productInput(patch)); err != nil {
		return decision, err
	}

	if err := c.api.UpdateProduct(ctx, sess.Credential, productID, patch); err != nil {
		return decision, c.backendError(ctx, "update product", err)
	}
	c.logger.Info("product updated", "product_id", productID, "by", sess.Identity.ID)
	return decision, nil
}

func (c *AdminConsole) backendError(ctx context.Context, op string, err error) error {
	return backendError(ctx, c.session, c.logger, op, err)
}

// CustomerDashboard serves the "My Account" view to any authenticated identity.
type CustomerDashboard struct {
	session SessionSource
	api     driven.StorefrontAPI
	logger  *slog.Logger
}

// NewCustomerDashboard creates a CustomerDashboard.
func NewCustomerDashboard(session SessionSource, api driven.StorefrontAPI, logger *slog.Logger) *CustomerDashboard {
	return &CustomerDashboard{session: session, api: api, logger: logger}
}

// Load fetches the favorites and order history of the current identity.
func (d *CustomerDashboard) Load(ctx context.Context) (CustomerData, Decision, error) {
	sess, decision := gate(d.session, RequireAuthenticated(), "account")
	if decision != Allowed {
		return CustomerData{}, decision, nil
	}

	favorites, err := d.api.ListFavorites(ctx, sess.Credential)
	if err != nil {
		return CustomerData{}, decision, backendError(ctx, d.session, d.logger, "list favorites", err)
	}
	orders, err := d.api.ListOrders(ctx, sess.Credential)
	if err != nil {
		return CustomerData{}, decision, backendError(ctx, d.session, d.logger, "list orders", err)
	}
	return CustomerData{Identity: *sess.Identity, Favorites: favorites, Orders: orders}, decision, nil
}

// Catalog serves public storefront data. It never sends a credential.
type Catalog struct {
	api driven.StorefrontAPI
}

// NewCatalog creates a Catalog.
func NewCatalog(api driven.StorefrontAPI) *Catalog {
	return &Catalog{api: api}
}

// Trending returns the public trending product list.
func (c *Catalog) Trending(ctx context.Context) ([]model.Product, error) {
	products, err := c.api.TrendingProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("trending products: %w", err)
	}
	return products, nil
}

// gate snapshots the session once and evaluates req against it. The same
// snapshot's credential is used for the backend calls that follow.
func gate(src SessionSource, req Requirement, view string) (Session, Decision) {
	sess := src.Current()
	decision := Authorize(sess.Identity, req)
	metrics.GateDecisionsTotal.WithLabelValues(view, decision.String()).Inc()
	return sess, decision
}

// backendError wraps err and, when the backend rejected the credential,
// revalidates the session so an expired token unwinds to Unauthenticated.
func backendError(ctx context.Context, src SessionSource, logger *slog.Logger, op string, err error) error {
	if errors.Is(err, driven.ErrUnauthorized) {
		logger.Warn("backend rejected credential, revalidating session", "op", op)
		src.FetchIdentity(ctx)
	}
	return fmt.Errorf("%s: %w", op, err)
}
