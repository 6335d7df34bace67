// Package httphandler is the JSON driving adapter: session control, gated
// account/admin data, health and metrics.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ericfisherdev/storepanel/internal/application"
	"github.com/ericfisherdev/storepanel/internal/domain/port/driven"
	"github.com/ericfisherdev/storepanel/internal/metrics"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	session     *application.SessionStore
	revalidator *application.SessionRevalidator
	admin       *application.AdminConsole
	account     *application.CustomerDashboard
	health      *application.HealthService
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	session *application.SessionStore,
	revalidator *application.SessionRevalidator,
	admin *application.AdminConsole,
	account *application.CustomerDashboard,
	health *application.HealthService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		session:     session,
		revalidator: revalidator,
		admin:       admin,
		account:     account,
		health:      health,
		logger:      logger,
	}
}

// RegisterRoutes registers the JSON API routes and /metrics on mux.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/session", h.GetSession)
	mux.HandleFunc("POST /api/v1/session/login", h.Login)
	mux.HandleFunc("POST /api/v1/session/register", h.Register)
	mux.HandleFunc("DELETE /api/v1/session", h.Logout)
	mux.HandleFunc("POST /api/v1/session/revalidate", h.Revalidate)
	mux.HandleFunc("GET /api/v1/account", h.Account)
	mux.HandleFunc("GET /api/v1/admin", h.Admin)
	mux.Handle("GET /metrics", metrics.Handler())
}

// Wrap applies the logging and recovery middleware to next.
func Wrap(next http.Handler, logger *slog.Logger) http.Handler {
	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, next)
	wrapped = loggingMiddleware(logger, wrapped)
	return wrapped
}

// NewServeMux creates an http.Handler with the JSON routes registered and
// wrapped with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, h)
	return Wrap(mux, logger)
}

// Health reports local process health. It never contacts the backend.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// GetSession returns the published session snapshot.
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toSessionResponse(h.session.Current()))
}

// Login authenticates with email and password.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.session.Login(r.Context(), strings.TrimSpace(req.Email), req.Password); err != nil {
		h.writeSessionError(w, "login", err)
		return
	}

	sess := h.session.Current()
	if !sess.Authenticated() {
		writeError(w, http.StatusBadGateway, "signed in but the account could not be loaded")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

// Register creates an account and logs into it.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.session.Register(r.Context(), strings.TrimSpace(req.Name), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		h.writeSessionError(w, "register", err)
		return
	}

	sess := h.session.Current()
	if !sess.Authenticated() {
		writeError(w, http.StatusBadGateway, "account created but the account could not be loaded")
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

// Logout ends the session. It always succeeds.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.session.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Revalidate re-fetches the identity and returns the resulting session.
func (h *Handler) Revalidate(w http.ResponseWriter, r *http.Request) {
	sess, err := h.revalidator.Revalidate(r.Context())
	if err != nil {
		h.logger.Error("revalidation did not complete", "error", err)
		writeError(w, http.StatusServiceUnavailable, "revalidation unavailable")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

// Account returns the customer dashboard data.
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	data, decision, err := h.account.Load(r.Context())
	if writeDenied(w, decision) {
		return
	}
	if err != nil {
		h.writeBackendError(w, "account", err)
		return
	}

	writeJSON(w, http.StatusOK, AccountResponse{
		User:      toUserResponse(data.Identity),
		Favorites: toProductResponses(data.Favorites),
		Orders:    toOrderResponses(data.Orders),
	})
}

// Admin returns the admin console data.
func (h *Handler) Admin(w http.ResponseWriter, r *http.Request) {
	data, decision, err := h.admin.Load(r.Context())
	if writeDenied(w, decision) {
		return
	}
	if err != nil {
		h.writeBackendError(w, "admin", err)
		return
	}

	users := make([]UserResponse, 0, len(data.Users))
	for _, u := range data.Users {
		users = append(users, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, AdminResponse{
		Users:    users,
		Products: toProductResponses(data.Products),
	})
}

// decodeBody decodes a bounded JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeDenied writes the gate fallback for a denied decision and reports
// whether it did.
func writeDenied(w http.ResponseWriter, decision application.Decision) bool {
	switch decision {
	case application.Allowed:
		return false
	case application.DeniedInsufficientRole:
		writeError(w, http.StatusForbidden, "insufficient role")
	default:
		writeError(w, http.StatusUnauthorized, "not signed in")
	}
	return true
}

func (h *Handler) writeSessionError(w http.ResponseWriter, op string, err error) {
	var ve *application.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, strings.Join(ve.Fields, "; "))
	case errors.Is(err, driven.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, driven.ErrConflict):
		writeError(w, http.StatusConflict, "an account with this email already exists")
	case errors.Is(err, driven.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "the storefront rejected the submitted details")
	case errors.Is(err, application.ErrSessionSuperseded):
		writeError(w, http.StatusConflict, "the session changed while signing in")
	case errors.Is(err, driven.ErrEncryptionKeyNotSet):
		writeError(w, http.StatusServiceUnavailable, "credential storage is not configured")
	default:
		h.logger.Error("session operation failed", "op", op, "error", err)
		writeError(w, http.StatusBadGateway, "storefront unavailable")
	}
}

func (h *Handler) writeBackendError(w http.ResponseWriter, view string, err error) {
	switch {
	case errors.Is(err, driven.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "session expired")
	case errors.Is(err, driven.ErrForbidden):
		writeError(w, http.StatusForbidden, "insufficient role")
	default:
		h.logger.Error("loading view data failed", "view", view, "error", err)
		writeError(w, http.StatusBadGateway, "storefront unavailable")
	}
}
