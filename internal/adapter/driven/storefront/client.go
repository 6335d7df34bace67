// Package storefront implements the StorefrontAPI port against the storefront
// REST backend.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/storepanel/internal/domain/model"
	"github.com/ericfisherdev/storepanel/internal/domain/port/driven"
	"github.com/ericfisherdev/storepanel/internal/metrics"
)

// maxResponseBytes caps how much of a backend response body is read.
const maxResponseBytes = 4 << 20

// Compile-time interface satisfaction check.
var _ driven.StorefrontAPI = (*Client)(nil)

// Client implements the driven.StorefrontAPI port. It holds no authorization
// state: protected calls receive the credential as an argument and attach it
// to that single request.
type Client struct {
	baseURL *url.URL
	api     *http.Client // session and protected requests; never cached
	catalog *http.Client // public catalog reads; ETag/max-age cached
	logger  *slog.Logger
}

// NewClient creates a backend client with the following transport stacks:
//
//	api:     retry (429/503, Retry-After) -> prometheus instrumentation -> net/http
//	catalog: httpcache -> retry -> prometheus instrumentation -> net/http
//
// Only unauthenticated catalog reads go through the cache so a response
// fetched under one session can never be replayed to another.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	u, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	retrying := newRetryTransport(metrics.InstrumentRoundTripper(http.DefaultTransport), logger)

	api := &http.Client{Transport: retrying, Timeout: timeout}

	cacheTransport := httpcache.NewMemoryCacheTransport()
	cacheTransport.Transport = retrying
	catalog := &http.Client{Transport: cacheTransport, Timeout: timeout}

	return &Client{
		baseURL: u,
		api:     api,
		catalog: catalog,
		logger:  logger,
	}, nil
}

// NewClientWithHTTPClient creates a Client that sends every request through
// httpClient. Intended for tests against an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string, logger *slog.Logger) (*Client, error) {
	u, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: u,
		api:     httpClient,
		catalog: httpClient,
		logger:  logger,
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parsing base URL: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parsing base URL: missing host")
	}
	return u, nil
}

// Login exchanges an email/password pair for a credential.
func (c *Client) Login(ctx context.Context, email, password string) (model.Credential, error) {
	var resp loginResponse
	err := c.do(ctx, c.api, http.MethodPost, model.Credential{}, loginRequest{Email: email, Password: password}, &resp, "api", "login")
	if err != nil {
		return model.Credential{}, err
	}
	if resp.Token == "" {
		return model.Credential{}, errors.New("POST /api/login: response carried no token")
	}
	return model.Credential{Token: resp.Token}, nil
}

// Register creates an account. It never establishes a session.
func (c *Client) Register(ctx context.Context, name, email, password string) error {
	body := registerRequest{Username: name, Email: email, Password: password}
	return c.do(ctx, c.api, http.MethodPost, model.Credential{}, body, nil, "api", "register")
}

// CurrentUser fetches the identity bound to cred.
func (c *Client) CurrentUser(ctx context.Context, cred model.Credential) (*model.Identity, error) {
	var u userJSON
	if err := c.do(ctx, c.api, http.MethodGet, cred, nil, &u, "api", "user"); err != nil {
		return nil, err
	}
	identity, err := mapIdentity(u)
	if err != nil {
		return nil, fmt.Errorf("GET /api/user: %w", err)
	}
	return &identity, nil
}

// ListUsers returns every account. Admin only.
func (c *Client) ListUsers(ctx context.Context, cred model.Credential) ([]model.Identity, error) {
	var users []userJSON
	if err := c.do(ctx, c.api, http.MethodGet, cred, nil, &users, "api", "users"); err != nil {
		return nil, err
	}
	out := make([]model.Identity, 0, len(users))
	for _, u := range users {
		identity, err := mapIdentity(u)
		if err != nil {
			return nil, fmt.Errorf("GET /api/users: %w", err)
		}
		out = append(out, identity)
	}
	return out, nil
}

// UpdateUserRole changes the role of the given account. Admin only.
func (c *Client) UpdateUserRole(ctx context.Context, cred model.Credential, userID string, role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("update role of %s: %w", userID, driven.ErrInvalidInput)
	}
	return c.do(ctx, c.api, http.MethodPut, cred, roleRequest{Role: role}, nil, "api", "users", userID, "role")
}

// ListProducts returns the full catalog. Admin only.
func (c *Client) ListProducts(ctx context.Context, cred model.Credential) ([]model.Product, error) {
	var products []productJSON
	if err := c.do(ctx, c.api, http.MethodGet, cred, nil, &products, "api", "products"); err != nil {
		return nil, err
	}
	return mapProducts(products), nil
}

// UpdateProduct applies a partial update to a product. Admin only.
func (c *Client) UpdateProduct(ctx context.Context, cred model.Credential, productID string, patch model.ProductPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	body := productPatchJSON{Name: patch.Name, Price: patch.Price, Description: patch.Description}
	return c.do(ctx, c.api, http.MethodPut, cred, body, nil, "api", "products", productID)
}

// ListFavorites returns the authenticated customer's favorite products.
func (c *Client) ListFavorites(ctx context.Context, cred model.Credential) ([]model.Product, error) {
	var products []productJSON
	if err := c.do(ctx, c.api, http.MethodGet, cred, nil, &products, "api", "favorites"); err != nil {
		return nil, err
	}
	return mapProducts(products), nil
}

// ListOrders returns the authenticated customer's order history.
func (c *Client) ListOrders(ctx context.Context, cred model.Credential) ([]model.Order, error) {
	var orders []orderJSON
	if err := c.do(ctx, c.api, http.MethodGet, cred, nil, &orders, "api", "orders"); err != nil {
		return nil, err
	}
	out := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, mapOrder(o))
	}
	return out, nil
}

// TrendingProducts returns the public trending list. It never carries a credential.
func (c *Client) TrendingProducts(ctx context.Context) ([]model.Product, error) {
	var products []productJSON
	if err := c.do(ctx, c.catalog, http.MethodGet, model.Credential{}, nil, &products, "api", "products", "trending"); err != nil {
		return nil, err
	}
	return mapProducts(products), nil
}

// do builds, authorizes and sends one request, then decodes a JSON response
// into out (when non-nil). Path segments are escaped individually.
func (c *Client) do(ctx context.Context, hc *http.Client, method string, cred model.Credential, in, out any, segments ...string) error {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := c.baseURL.JoinPath(escaped...)
	path := u.EscapedPath()
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s %s: encode request: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s %s: build request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	authorize(req, cred)

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("storefront api call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"cached", resp.Header.Get(httpcache.XFromCache) != "",
		"duration", time.Since(start).Round(time.Millisecond),
	)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s %s: read response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// authorize attaches the bearer header for cred, or strips it when cred is empty.
func authorize(req *http.Request, cred model.Credential) {
	if h := cred.AuthorizationHeader(); h != "" {
		req.Header.Set("Authorization", h)
		return
	}
	req.Header.Del("Authorization")
}

// errorMessage extracts a human-readable message from an error body.
func errorMessage(data []byte) string {
	var e errorJSON
	if err := json.Unmarshal(data, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
