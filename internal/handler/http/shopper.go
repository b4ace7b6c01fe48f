package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/templamart/internal/domain"
	"github.com/utafrali/templamart/internal/notify"
	"github.com/utafrali/templamart/internal/service"
	"github.com/utafrali/templamart/pkg/httputil"
	"github.com/utafrali/templamart/pkg/validator"
)

// ShopperHandler handles HTTP requests for cart and wishlist endpoints.
type ShopperHandler struct {
	service *service.ShopperService
	logger  *slog.Logger
}

// NewShopperHandler creates a new shopper HTTP handler.
func NewShopperHandler(svc *service.ShopperService, logger *slog.Logger) *ShopperHandler {
	return &ShopperHandler{
		service: svc,
		logger:  logger,
	}
}

// AddToCartRequest is the JSON body of POST /api/v1/shopper/cart/items.
type AddToCartRequest struct {
	ItemID string `json:"item_id" validate:"required,max=128"`
}

// ToggleResponse reports wishlist membership after a toggle.
type ToggleResponse struct {
	InWishlist bool             `json:"in_wishlist"`
	Shopper    *domain.Snapshot `json:"shopper,omitempty"`
}

// NoticesResponse carries the drained notice queue.
type NoticesResponse struct {
	Notices []notify.Notice `json:"notices"`
}

// GetShopper handles GET /api/v1/shopper
func (h *ShopperHandler) GetShopper(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), sessionIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, snap)
}

// Forget handles DELETE /api/v1/shopper
func (h *ShopperHandler) Forget(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Forget(r.Context(), sessionIDFromContext(r.Context())); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddToCart handles POST /api/v1/shopper/cart/items
func (h *ShopperHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)

	var req AddToCartRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	snap, err := h.service.AddToCart(r.Context(), sessionIDFromContext(r.Context()), req.ItemID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, snap)
}

// RemoveFromCart handles DELETE /api/v1/shopper/cart/items/{itemId}
func (h *ShopperHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.RemoveFromCart(r.Context(), sessionIDFromContext(r.Context()), chi.URLParam(r, "itemId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, snap)
}

// ClearCart handles DELETE /api/v1/shopper/cart
func (h *ShopperHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.ClearCart(r.Context(), sessionIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, snap)
}

// ToggleWishlist handles POST /api/v1/shopper/wishlist/{itemId}/toggle
func (h *ShopperHandler) ToggleWishlist(w http.ResponseWriter, r *http.Request) {
	added, snap, err := h.service.ToggleWishlist(r.Context(), sessionIDFromContext(r.Context()), chi.URLParam(r, "itemId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, ToggleResponse{InWishlist: added, Shopper: &snap})
}

// IsInWishlist handles GET /api/v1/shopper/wishlist/{itemId}
func (h *ShopperHandler) IsInWishlist(w http.ResponseWriter, r *http.Request) {
	in, err := h.service.IsInWishlist(r.Context(), sessionIDFromContext(r.Context()), chi.URLParam(r, "itemId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, ToggleResponse{InWishlist: in})
}

// Notices handles GET /api/v1/shopper/notices
func (h *ShopperHandler) Notices(w http.ResponseWriter, r *http.Request) {
	notices, err := h.service.Notices(r.Context(), sessionIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, NoticesResponse{Notices: notices})
}
