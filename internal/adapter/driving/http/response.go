package httphandler

import (
	"encoding/json"
	"net/http"

	"github.com/ericfisherdev/storepanel/internal/application"
	"github.com/ericfisherdev/storepanel/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// LoginRequest is the JSON body of POST /api/v1/session/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the JSON body of POST /api/v1/session/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse describes the published session. The credential itself is
// never exposed.
type SessionResponse struct {
	Authenticated bool          `json:"authenticated"`
	User          *UserResponse `json:"user,omitempty"`
}

// UserResponse is the JSON representation of an identity.
type UserResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ProductResponse is the JSON representation of a product.
type ProductResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Image       string  `json:"image,omitempty"`
}

// OrderResponse is the JSON representation of an order.
type OrderResponse struct {
	ID     string  `json:"id"`
	Date   string  `json:"date"`
	Total  float64 `json:"total"`
	Status string  `json:"status"`
}

// AccountResponse is the body of GET /api/v1/account.
type AccountResponse struct {
	User      UserResponse      `json:"user"`
	Favorites []ProductResponse `json:"favorites"`
	Orders    []OrderResponse   `json:"orders"`
}

// AdminResponse is the body of GET /api/v1/admin.
type AdminResponse struct {
	Users    []UserResponse    `json:"users"`
	Products []ProductResponse `json:"products"`
}

func toSessionResponse(s application.Session) SessionResponse {
	if !s.Authenticated() {
		return SessionResponse{}
	}
	u := toUserResponse(*s.Identity)
	return SessionResponse{Authenticated: true, User: &u}
}

func toUserResponse(i model.Identity) UserResponse {
	return UserResponse{
		ID:    i.ID,
		Name:  i.Name,
		Email: i.Email,
		Role:  i.Role.String(),
	}
}

func toProductResponses(products []model.Product) []ProductResponse {
	out := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, ProductResponse{
			ID:          p.ID,
			Name:        p.Name,
			Price:       p.Price,
			Description: p.Description,
			Image:       p.Image,
		})
	}
	return out
}

func toOrderResponses(orders []model.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		date := ""
		if !o.Date.IsZero() {
			date = o.Date.Format("2006-01-02")
		}
		out = append(out, OrderResponse{
			ID:     o.ID,
			Date:   date,
			Total:  o.Total,
			Status: o.Status,
		})
	}
	return out
}
