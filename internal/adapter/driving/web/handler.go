// Package web implements the HTML GUI driving adapter using templ components.
package web

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/ericfisherdev/storepanel/internal/adapter/driving/web/templates"
	vm "github.com/ericfisherdev/storepanel/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/storepanel/internal/application"
	"github.com/ericfisherdev/storepanel/internal/domain/model"
	"github.com/ericfisherdev/storepanel/internal/domain/port/driven"
)

// maxFormBytes caps form submissions.
const maxFormBytes = 64 << 10

// Handler is the web GUI driving adapter that serves HTML via templ components.
type Handler struct {
	session *application.SessionStore
	catalog *application.Catalog
	admin   *application.AdminConsole
	account *application.CustomerDashboard
	logger  *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	session *application.SessionStore,
	catalog *application.Catalog,
	admin *application.AdminConsole,
	account *application.CustomerDashboard,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		session: session,
		catalog: catalog,
		admin:   admin,
		account: account,
		logger:  logger,
	}
}

// Home renders the landing page with the trending products.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	page := vm.HomeViewModel{TrendingAvailable: true}
	products, err := h.catalog.Trending(r.Context())
	if err != nil {
		h.logger.Warn("trending products unavailable", "error", err)
		page.TrendingAvailable = false
	} else {
		page.Trending = toProductCardViewModels(products)
	}
	h.render(w, r, http.StatusOK, "Home", templates.Home(page))
}

// LoginPage renders the sign-in form. Signed-in users go to the home page.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if h.session.Current().Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	form := vm.AuthFormViewModel{CSRFToken: csrfToken(w, r)}
	h.render(w, r, http.StatusOK, "Login", templates.Login(form))
}

// LoginSubmit signs in with the submitted email and password.
func (h *Handler) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	if !h.checkForm(w, r) {
		return
	}
	form := vm.AuthFormViewModel{
		Email:     strings.TrimSpace(r.PostFormValue("email")),
		CSRFToken: csrfToken(w, r),
	}

	err := h.session.Login(r.Context(), form.Email, r.PostFormValue("password"))
	if status, msg := h.sessionFailure(err, "login"); status != 0 {
		form.Error = msg
		h.render(w, r, status, "Login", templates.Login(form))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// RegisterPage renders the account creation form.
func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if h.session.Current().Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	form := vm.AuthFormViewModel{CSRFToken: csrfToken(w, r)}
	h.render(w, r, http.StatusOK, "Register", templates.Register(form))
}

// RegisterSubmit creates an account and signs into it.
func (h *Handler) RegisterSubmit(w http.ResponseWriter, r *http.Request) {
	if !h.checkForm(w, r) {
		return
	}
	form := vm.AuthFormViewModel{
		Name:      strings.TrimSpace(r.PostFormValue("name")),
		Email:     strings.TrimSpace(r.PostFormValue("email")),
		CSRFToken: csrfToken(w, r),
	}

	err := h.session.Register(r.Context(), form.Name, form.Email, r.PostFormValue("password"))
	if status, msg := h.sessionFailure(err, "register"); status != 0 {
		form.Error = msg
		h.render(w, r, status, "Register", templates.Register(form))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout ends the session and returns to the home page.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if !h.checkForm(w, r) {
		return
	}
	h.session.Logout(r.Context())
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Account renders the customer dashboard.
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	data, decision, err := h.account.Load(r.Context())
	if h.denied(w, r, decision) {
		return
	}
	if err != nil {
		h.backendFailure(w, r, "account", err)
		return
	}
	h.render(w, r, http.StatusOK, "My Account", templates.Account(toAccountViewModel(data)))
}

// Admin renders the admin console. The tab query parameter selects users or
// products.
func (h *Handler) Admin(w http.ResponseWriter, r *http.Request) {
	page, ok := h.loadAdmin(w, r, r.URL.Query().Get("tab"))
	if !ok {
		return
	}
	if r.URL.Query().Get("saved") != "" {
		page.Flash = "Changes saved."
	}
	h.render(w, r, http.StatusOK, "Admin Panel", templates.Admin(page))
}

// ChangeRole assigns the submitted role to the user in the path.
func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	if !h.checkForm(w, r) {
		return
	}
	// An unknown role parses to the zero Role, which the console rejects.
	role, _ := model.ParseRole(r.PostFormValue("role"))

	decision, err := h.admin.ChangeRole(r.Context(), r.PathValue("id"), role)
	h.afterAdminWrite(w, r, "users", decision, err)
}

// UpdateProduct applies the submitted fields to the product in the path.
// Fields absent from the form are left unchanged.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	if !h.checkForm(w, r) {
		return
	}
	patch, err := productPatchFromForm(r.PostForm)
	if err != nil {
		h.afterAdminWrite(w, r, "products", application.Allowed, err)
		return
	}

	decision, err := h.admin.UpdateProduct(r.Context(), r.PathValue("id"), patch)
	h.afterAdminWrite(w, r, "products", decision, err)
}

// afterAdminWrite redirects back to the tab on success or re-renders it with
// the error.
func (h *Handler) afterAdminWrite(w http.ResponseWriter, r *http.Request, tab string, decision application.Decision, err error) {
	if h.denied(w, r, decision) {
		return
	}
	if err == nil {
		http.Redirect(w, r, "/admin?tab="+tab+"&saved=1", http.StatusSeeOther)
		return
	}

	status, msg := http.StatusBadRequest, ""
	var ve *application.ValidationError
	switch {
	case errors.As(err, &ve):
		msg = strings.Join(ve.Fields, "; ")
	case errors.Is(err, driven.ErrUnauthorized):
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	case errors.Is(err, driven.ErrForbidden):
		status, msg = http.StatusForbidden, "The store refused this change."
	case errors.Is(err, driven.ErrNotFound):
		status, msg = http.StatusNotFound, "That record no longer exists."
	case errors.Is(err, driven.ErrInvalidInput):
		msg = "The store rejected the submitted values."
	default:
		h.logger.Error("admin update failed", "tab", tab, "error", err)
		status, msg = http.StatusBadGateway, "The store is unavailable. Please try again later."
	}

	page, ok := h.loadAdmin(w, r, tab)
	if !ok {
		return
	}
	page.Error = msg
	h.render(w, r, status, "Admin Panel", templates.Admin(page))
}

// loadAdmin loads the admin view model, writing the fallback response when
// the gate denies or the backend fails.
func (h *Handler) loadAdmin(w http.ResponseWriter, r *http.Request, tab string) (vm.AdminViewModel, bool) {
	data, decision, err := h.admin.Load(r.Context())
	if h.denied(w, r, decision) {
		return vm.AdminViewModel{}, false
	}
	if err != nil {
		h.backendFailure(w, r, "admin", err)
		return vm.AdminViewModel{}, false
	}
	return toAdminViewModel(data, tab, csrfToken(w, r)), true
}

func productPatchFromForm(form url.Values) (model.ProductPatch, error) {
	var patch model.ProductPatch
	if form.Has("name") {
		name := strings.TrimSpace(form.Get("name"))
		patch.Name = &name
	}
	if form.Has("price") {
		raw := strings.TrimSpace(form.Get("price"))
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsInf(price, 0) || math.IsNaN(price) {
			return model.ProductPatch{}, &application.ValidationError{Fields: []string{"price must be a number"}}
		}
		patch.Price = &price
	}
	if form.Has("description") {
		description := form.Get("description")
		patch.Description = &description
	}
	return patch, nil
}

// checkForm parses a bounded form body and validates its CSRF token, writing
// a 403 when the token does not match.
func (h *Handler) checkForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, "Bad Request", templates.Message("Bad Request", "The form could not be read."))
		return false
	}
	if !validateCSRF(r) {
		h.logger.Warn("csrf validation failed", "path", r.URL.Path)
		h.render(w, r, http.StatusForbidden, "Forbidden", templates.Message("Forbidden", "Your form expired. Reload the page and try again."))
		return false
	}
	return true
}

// denied writes the gate fallback for a denied decision and reports whether
// it did. Visitors are sent to the sign-in page; signed-in users without the
// role get a 403 page.
func (h *Handler) denied(w http.ResponseWriter, r *http.Request, decision application.Decision) bool {
	switch decision {
	case application.Allowed:
		return false
	case application.DeniedInsufficientRole:
		h.render(w, r, http.StatusForbidden, "Access Denied",
			templates.Message("Access Denied", "You do not have permission to view this page."))
	default:
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
	return true
}

// sessionFailure maps a Login or Register outcome to a status and form
// message. A zero status means the session is now authenticated.
func (h *Handler) sessionFailure(err error, op string) (int, string) {
	var ve *application.ValidationError
	switch {
	case err == nil:
		if h.session.Current().Authenticated() {
			return 0, ""
		}
		return http.StatusBadGateway, "Signed in, but your account could not be loaded. Please try again."
	case errors.As(err, &ve):
		return http.StatusBadRequest, strings.Join(ve.Fields, "; ")
	case errors.Is(err, driven.ErrUnauthorized):
		return http.StatusUnauthorized, "Invalid email or password."
	case errors.Is(err, driven.ErrConflict):
		return http.StatusConflict, "An account with this email already exists."
	case errors.Is(err, driven.ErrInvalidInput):
		return http.StatusBadRequest, "The store rejected the submitted details."
	case errors.Is(err, application.ErrSessionSuperseded):
		return http.StatusConflict, "You were signed out while signing in. Please try again."
	case errors.Is(err, driven.ErrEncryptionKeyNotSet):
		return http.StatusServiceUnavailable, "Sign-in is unavailable: credential storage is not configured."
	default:
		h.logger.Error("session operation failed", "op", op, "error", err)
		return http.StatusBadGateway, "The store is unavailable. Please try again later."
	}
}

// backendFailure renders the fallback for a failed gated load. A rejected
// credential has already ended the session, so the visitor signs in again.
func (h *Handler) backendFailure(w http.ResponseWriter, r *http.Request, view string, err error) {
	if errors.Is(err, driven.ErrUnauthorized) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	h.logger.Error("loading view data failed", "view", view, "error", err)
	h.render(w, r, http.StatusBadGateway, "Unavailable",
		templates.Message("Store Unavailable", "The store could not be reached. Please try again later."))
}

// render wraps body in the layout with a header built from the current session.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, title string, body templ.Component) {
	header := toHeaderViewModel(h.session.Current(), csrfToken(w, r))
	page := templates.Layout(title, header, body)
	templ.Handler(page, templ.WithStatus(status), templ.WithErrorHandler(func(r *http.Request, err error) http.Handler {
		h.logger.Error("failed to render page", "title", title, "error", err)
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "internal server error", http.StatusInternalServerError)
		})
	})).ServeHTTP(w, r)
}
