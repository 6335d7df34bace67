package storefront

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/storepanel/internal/domain/model"
)

// flexID accepts identifiers encoded either as JSON strings or numbers.
type flexID string

func (id *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = flexID(n.String())
	return nil
}

// wireDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
type wireDate time.Time

func (d *wireDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*d = wireDate(time.Time{})
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			*d = wireDate(t)
			return nil
		}
	}
	return fmt.Errorf("unrecognised date %q", s)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userJSON is the wire form of an identity. Role decoding rejects anything
// outside the closed role set.
type userJSON struct {
	ID       flexID     `json:"id"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Role     model.Role `json:"role"`
}

type roleRequest struct {
	Role model.Role `json:"role"`
}

type productJSON struct {
	ID          flexID  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
}

type productPatchJSON struct {
	Name        *string  `json:"name,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Description *string  `json:"description,omitempty"`
}

type orderJSON struct {
	ID     flexID   `json:"id"`
	Date   wireDate `json:"date"`
	Total  float64  `json:"total"`
	Status string   `json:"status"`
}

type errorJSON struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// mapIdentity converts a wire user into a domain Identity. The id and role
// are mandatory; a record without them is not an identity.
func mapIdentity(u userJSON) (model.Identity, error) {
	if u.ID == "" {
		return model.Identity{}, fmt.Errorf("user record has no id")
	}
	if !u.Role.Valid() {
		return model.Identity{}, fmt.Errorf("user %s has no role", u.ID)
	}
	return model.Identity{
		ID:    string(u.ID),
		Name:  u.Username,
		Email: u.Email,
		Role:  u.Role,
	}, nil
}

func mapProduct(p productJSON) model.Product {
	return model.Product{
		ID:          string(p.ID),
		Name:        p.Name,
		Price:       p.Price,
		Description: p.Description,
		Image:       p.Image,
	}
}

func mapProducts(in []productJSON) []model.Product {
	out := make([]model.Product, 0, len(in))
	for _, p := range in {
		out = append(out, mapProduct(p))
	}
	return out
}

func mapOrder(o orderJSON) model.Order {
	return model.Order{
		ID:     string(o.ID),
		Date:   time.Time(o.Date),
		Total:  o.Total,
		Status: o.Status,
	}
}
