// Package viewmodel defines presentation-ready structs for templ components.
// View models decouple template rendering from domain model types.
package viewmodel

// HeaderViewModel drives the navigation bar.
type HeaderViewModel struct {
	Authenticated bool
	Name          string
	ShowAdmin     bool
	CSRFToken     string
}

// ProductCardViewModel holds presentation-ready data for a product tile.
type ProductCardViewModel struct {
	ID    string
	Name  string
	Price string
	Image string
	// DescriptionHTML is sanitized HTML rendered from markdown.
	DescriptionHTML string
}

// OrderRowViewModel is one line of the order history table.
type OrderRowViewModel struct {
	ID     string
	Date   string
	Total  string
	Status string
}

// RoleOption is one entry of a role select.
type RoleOption struct {
	Value    string
	Selected bool
}

// UserRowViewModel is one row of the admin users table.
type UserRowViewModel struct {
	ID          string
	Name        string
	Email       string
	Role        string
	RoleOptions []RoleOption
}

// ProductEditViewModel is one editable row of the admin products table.
type ProductEditViewModel struct {
	ID          string
	Name        string
	Price       string
	Description string
}

// HomeViewModel holds the landing page data.
type HomeViewModel struct {
	Trending          []ProductCardViewModel
	TrendingAvailable bool
}

// AuthFormViewModel backs the login and registration forms.
type AuthFormViewModel struct {
	Name      string
	Email     string
	Error     string
	CSRFToken string
}

// AccountViewModel holds the customer dashboard.
type AccountViewModel struct {
	Name      string
	Email     string
	Role      string
	Favorites []ProductCardViewModel
	Orders    []OrderRowViewModel
}

// AdminViewModel holds the admin console. Tab is "users" or "products".
type AdminViewModel struct {
	Tab       string
	Users     []UserRowViewModel
	Products  []ProductEditViewModel
	Flash     string
	Error     string
	CSRFToken string
}
