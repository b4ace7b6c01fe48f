package domain

import "github.com/shopspring/decimal"

// CartLine is a catalog item together with the number of copies in the cart.
type CartLine struct {
	CatalogItem
	Quantity int `json:"quantity" validate:"min=1"`
}

// Subtotal returns price times quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the ordered list of cart lines. Line IDs are unique.
type Cart []CartLine

// IndexOf returns the position of the line with the given item ID, or -1.
func (c Cart) IndexOf(id string) int {
	for i := range c {
		if c[i].ID == id {
			return i
		}
	}
	return -1
}

// Count returns the sum of quantities across all lines.
func (c Cart) Count() int {
	var n int
	for _, l := range c {
		n += l.Quantity
	}
	return n
}

// Total returns the sum of line subtotals.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Clone returns an independent copy.
func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	copy(out, c)
	return out
}
