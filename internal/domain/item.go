package domain

import "github.com/shopspring/decimal"

// Author is the seller who owns a template listing.
type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CatalogItem is a template listing as supplied by the catalog backend.
// The store treats it as read-only.
type CatalogItem struct {
	ID          string          `json:"id" validate:"required,max=128"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image"`
	Author      Author          `json:"author"`
	Rating      float64         `json:"rating" validate:"gte=0,lte=5"`
	Sales       int             `json:"sales" validate:"gte=0"`
}

// PriceValid reports whether the price is non-negative.
func (i CatalogItem) PriceValid() bool {
	return !i.Price.IsNegative()
}

// Wishlist is an ordered set of catalog items keyed by ID.
type Wishlist []CatalogItem

// IndexOf returns the position of the entry with the given ID, or -1.
func (w Wishlist) IndexOf(id string) int {
	for i := range w {
		if w[i].ID == id {
			return i
		}
	}
	return -1
}

// Contains reports whether the wishlist holds an entry with the given ID.
func (w Wishlist) Contains(id string) bool {
	return w.IndexOf(id) >= 0
}

// Clone returns an independent copy.
func (w Wishlist) Clone() Wishlist {
	out := make(Wishlist, len(w))
	copy(out, w)
	return out
}
