package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/storepanel/internal/domain/model"
)

// Sentinel errors returned (wrapped) by StorefrontAPI implementations. Callers
// compare with errors.Is.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// StorefrontAPI is the driven port for the remote storefront backend.
// Protected operations take the credential explicitly; implementations attach
// it to that request only and keep no default authorization state.
type StorefrontAPI interface {
	Login(ctx context.Context, email, password string) (model.Credential, error)
	Register(ctx context.Context, name, email, password string) error
	CurrentUser(ctx context.Context, cred model.Credential) (*model.Identity, error)

	ListUsers(ctx context.Context, cred model.Credential) ([]model.Identity, error)
	UpdateUserRole(ctx context.Context, cred model.Credential, userID string, role model.Role) error
	ListProducts(ctx context.Context, cred model.Credential) ([]model.Product, error)
	UpdateProduct(ctx context.Context, cred model.Credential, productID string, patch model.ProductPatch) error

	ListFavorites(ctx context.Context, cred model.Credential) ([]model.Product, error)
	ListOrders(ctx context.Context, cred model.Credential) ([]model.Order, error)

	TrendingProducts(ctx context.Context) ([]model.Product, error)
}
