package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/utafrali/templamart/pkg/validator"
)

// Snapshot is a consistent read of both containers and their derived counts.
type Snapshot struct {
	Cart          Cart            `json:"cart"`
	Wishlist      Wishlist        `json:"wishlist"`
	CartCount     int             `json:"cartCount"`
	WishlistCount int             `json:"wishlistCount"`
	CartTotal     decimal.Decimal `json:"cartTotal"`
}

// NewSnapshot copies the containers and computes the derived values.
func NewSnapshot(cart Cart, wishlist Wishlist) Snapshot {
	return Snapshot{
		Cart:          cart.Clone(),
		Wishlist:      wishlist.Clone(),
		CartCount:     cart.Count(),
		WishlistCount: len(wishlist),
		CartTotal:     cart.Total(),
	}
}

type cartShape struct {
	Lines Cart `validate:"dive"`
}

type wishlistShape struct {
	Entries Wishlist `validate:"dive"`
}

// ValidateCart checks a decoded cart snapshot: every line well-formed,
// prices non-negative and no duplicate IDs.
func ValidateCart(c Cart) error {
	if err := validator.Validate(cartShape{Lines: c}); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c))
	for _, l := range c {
		if !l.PriceValid() {
			return fmt.Errorf("cart line %s: negative price", l.ID)
		}
		if _, dup := seen[l.ID]; dup {
			return fmt.Errorf("cart line %s: duplicate id", l.ID)
		}
		seen[l.ID] = struct{}{}
	}
	return nil
}

// ValidateWishlist checks a decoded wishlist snapshot the same way.
func ValidateWishlist(w Wishlist) error {
	if err := validator.Validate(wishlistShape{Entries: w}); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(w))
	for _, e := range w {
		if !e.PriceValid() {
			return fmt.Errorf("wishlist entry %s: negative price", e.ID)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("wishlist entry %s: duplicate id", e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

// ValidateItem checks a catalog item before it enters either container.
func ValidateItem(i CatalogItem) error {
	if err := validator.Validate(i); err != nil {
		return err
	}
	if !i.PriceValid() {
		return fmt.Errorf("item %s: negative price", i.ID)
	}
	return nil
}
