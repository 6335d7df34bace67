package model

import "time"

// Product is a catalog entry. Description is markdown.
type Product struct {
	ID          string
	Name        string
	Price       float64
	Description string
	Image       string
}

// ProductPatch carries a partial product update; nil fields are left unchanged.
type ProductPatch struct {
	Name        *string
	Price       *float64
	Description *string
}

// IsEmpty reports whether the patch changes nothing.
func (p ProductPatch) IsEmpty() bool {
	return p.Name == nil && p.Price == nil && p.Description == nil
}

// Order is a customer's past order.
type Order struct {
	ID     string
	Date   time.Time
	Total  float64
	Status string
}
