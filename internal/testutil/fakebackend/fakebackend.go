// Package fakebackend runs an in-process storefront REST backend for tests.
// It implements the endpoints storepanel consumes with real bearer tokens
// (HS256 JWTs) and bcrypt password checks, and records every request so tests
// can assert on what reached the backend.
package fakebackend

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ericfisherdev/storepanel/internal/domain/model"
)

// Request is one request observed by the backend.
type Request struct {
	Method        string
	Path          string
	Authorization string
}

type user struct {
	ID           string
	Username     string
	Email        string
	PasswordHash []byte
	Role         string
}

type product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
}

type order struct {
	ID     string  `json:"id"`
	Date   string  `json:"date"`
	Total  float64 `json:"total"`
	Status string  `json:"status"`
}

// Backend is a running fake storefront backend.
type Backend struct {
	server *httptest.Server
	secret []byte

	mu         sync.Mutex
	users      map[string]*user
	products   []*product
	trending   []string
	favorites  map[string][]string
	orders     map[string][]order
	tokenEpoch int
	failures   map[string]int
	requests   []Request
}

// New starts a backend and registers its shutdown with t.Cleanup.
func New(t testing.TB) *Backend {
	t.Helper()

	gin.SetMode(gin.TestMode)

	b := &Backend{
		secret:    []byte(uuid.NewString()),
		users:     make(map[string]*user),
		favorites: make(map[string][]string),
		orders:    make(map[string][]order),
		failures:  make(map[string]int),
	}

	router := gin.New()
	router.Use(gin.Recovery(), b.record(), b.injectFailures())
	b.registerRoutes(router)

	b.server = httptest.NewServer(router)
	t.Cleanup(b.server.Close)

	return b
}

// URL returns the backend base URL.
func (b *Backend) URL() string {
	return b.server.URL
}

// Client returns an HTTP client wired to the backend.
func (b *Backend) Client() *http.Client {
	return b.server.Client()
}

// AddUser creates an account and returns its id.
func (b *Backend) AddUser(username, email, password string, role model.Role) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("fakebackend: hash password: %v", err))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := "u" + strconv.Itoa(len(b.users)+1)
	b.users[id] = &user{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role.String(),
	}
	return id
}

// SetRole overwrites the role string of a user, including values outside
// the valid role set.
func (b *Backend) SetRole(userID, role string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if u, ok := b.users[userID]; ok {
		u.Role = role
	}
}

// Role returns the stored role string of a user.
func (b *Backend) Role(userID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if u, ok := b.users[userID]; ok {
		return u.Role
	}
	return ""
}

// UserIDByEmail returns the id of the account registered with email.
func (b *Backend) UserIDByEmail(email string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := b.userByEmailLocked(email)
	if u == nil {
		return "", false
	}
	return u.ID, true
}

// AddProduct adds p to the catalog, optionally marking it as trending.
func (b *Backend) AddProduct(p model.Product, trending bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.products = append(b.products, &product{
		ID:          p.ID,
		Name:        p.Name,
		Price:       p.Price,
		Description: p.Description,
		Image:       p.Image,
	})
	if trending {
		b.trending = append(b.trending, p.ID)
	}
}

// Product returns the current catalog entry for id.
func (b *Backend) Product(id string) (model.Product, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.productLocked(id)
	if p == nil {
		return model.Product{}, false
	}
	return model.Product{ID: p.ID, Name: p.Name, Price: p.Price, Description: p.Description, Image: p.Image}, true
}

// AddFavorite marks productID as a favorite of userID.
func (b *Backend) AddFavorite(userID, productID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.favorites[userID] = append(b.favorites[userID], productID)
}

// AddOrder appends o to the order history of userID.
func (b *Backend) AddOrder(userID string, o model.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders[userID] = append(b.orders[userID], order{
		ID:     o.ID,
		Date:   o.Date.UTC().Format(time.RFC3339),
		Total:  o.Total,
		Status: o.Status,
	})
}

// IssueToken mints a valid bearer token for userID without a login round trip.
func (b *Backend) IssueToken(userID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueTokenLocked(userID)
}

// RevokeTokens invalidates every token issued so far; later requests carrying
// them receive 401 as if they had expired.
func (b *Backend) RevokeTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokenEpoch++
}

// FailNext makes the next request matching method and path return status.
func (b *Backend) FailNext(method, path string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[method+" "+path] = status
}

// Requests returns every request observed so far.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Request, len(b.requests))
	copy(out, b.requests)
	return out
}

// RequestsTo returns the observed requests matching method and path.
func (b *Backend) RequestsTo(method, path string) []Request {
	var out []Request
	for _, r := range b.Requests() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (b *Backend) record() gin.HandlerFunc {
	return func(c *gin.Context) {
		b.mu.Lock()
		b.requests = append(b.requests, Request{
			Method:        c.Request.Method,
			Path:          c.Request.URL.Path,
			Authorization: c.GetHeader("Authorization"),
		})
		b.mu.Unlock()
		c.Next()
	}
}

func (b *Backend) injectFailures() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Request.Method + " " + c.Request.URL.Path
		b.mu.Lock()
		status, ok := b.failures[key]
		if ok {
			delete(b.failures, key)
		}
		b.mu.Unlock()

		if ok {
			c.AbortWithStatusJSON(status, gin.H{"error": http.StatusText(status)})
			return
		}
		c.Next()
	}
}

func (b *Backend) registerRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.POST("/login", b.login)
		api.POST("/register", b.register)
		api.GET("/products/trending", b.trendingProducts)

		authed := api.Group("", b.requireAuth())
		authed.GET("/user", b.currentUser)
		authed.GET("/favorites", b.listFavorites)
		authed.GET("/orders", b.listOrders)

		admin := api.Group("", b.requireAuth(), requireAdmin())
		admin.GET("/users", b.listUsers)
		admin.PUT("/users/:id/role", b.updateRole)
		admin.GET("/products", b.listProducts)
		admin.PUT("/products/:id", b.updateProduct)
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type roleRequest struct {
	Role string `json:"role" binding:"required"`
}

type productPatch struct {
	Name        *string  `json:"name"`
	Price       *float64 `json:"price"`
	Description *string  `json:"description"`
}

func (b *Backend) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	u := b.userByEmailLocked(req.Email)
	if u == nil || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": b.issueTokenLocked(u.ID)})
}

func (b *Backend) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b.mu.Lock()
	exists := b.userByEmailLocked(req.Email) != nil
	b.mu.Unlock()
	if exists {
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		return
	}

	id := b.AddUser(req.Username, req.Email, req.Password, model.RoleCustomer)
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (b *Backend) currentUser(c *gin.Context) {
	u := c.MustGet("user").(user)
	c.JSON(http.StatusOK, userResponse(u))
}

func (b *Backend) listUsers(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	resp := make([]gin.H, 0, len(b.users))
	for i := 1; i <= len(b.users); i++ {
		if u, ok := b.users["u"+strconv.Itoa(i)]; ok {
			resp = append(resp, userResponse(*u))
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (b *Backend) updateRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := model.ParseRole(req.Role); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	u.Role = req.Role
	c.Status(http.StatusNoContent)
}

func (b *Backend) listProducts(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	resp := make([]product, 0, len(b.products))
	for _, p := range b.products {
		resp = append(resp, *p)
	}
	c.JSON(http.StatusOK, resp)
}

func (b *Backend) updateProduct(c *gin.Context) {
	var patch productPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.productLocked(c.Param("id"))
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	c.JSON(http.StatusOK, *p)
}

func (b *Backend) trendingProducts(c *gin.Context) {
	b.mu.Lock()
	resp := make([]product, 0, len(b.trending))
	for _, id := range b.trending {
		if p := b.productLocked(id); p != nil {
			resp = append(resp, *p)
		}
	}
	b.mu.Unlock()

	c.Header("Cache-Control", "public, max-age=300")
	c.JSON(http.StatusOK, resp)
}

func (b *Backend) listFavorites(c *gin.Context) {
	u := c.MustGet("user").(user)

	b.mu.Lock()
	defer b.mu.Unlock()
	resp := make([]product, 0)
	for _, id := range b.favorites[u.ID] {
		if p := b.productLocked(id); p != nil {
			resp = append(resp, *p)
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (b *Backend) listOrders(c *gin.Context) {
	u := c.MustGet("user").(user)

	b.mu.Lock()
	defer b.mu.Unlock()
	resp := append([]order{}, b.orders[u.ID]...)
	c.JSON(http.StatusOK, resp)
}

// requireAuth validates the bearer token and stores a copy of the user under "user".
func (b *Backend) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return b.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		b.mu.Lock()
		epoch := strconv.Itoa(b.tokenEpoch)
		u, found := b.users[claims.Subject]
		var snapshot user
		if found {
			snapshot = *u
		}
		b.mu.Unlock()

		if claims.ID != epoch || !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token expired"})
			return
		}

		c.Set("user", snapshot)
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := c.MustGet("user").(user)
		if u.Role != model.RoleAdmin.String() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

func (b *Backend) issueTokenLocked(userID string) string {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        strconv.Itoa(b.tokenEpoch),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		panic(fmt.Sprintf("fakebackend: sign token: %v", err))
	}
	return signed
}

func (b *Backend) userByEmailLocked(email string) *user {
	for _, u := range b.users {
		if strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return nil
}

func (b *Backend) productLocked(id string) *product {
	for _, p := range b.products {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func userResponse(u user) gin.H {
	return gin.H{
		"id":       u.ID,
		"username": u.Username,
		"email":    u.Email,
		"role":     u.Role,
	}
}
