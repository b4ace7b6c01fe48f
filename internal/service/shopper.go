package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/utafrali/templamart/internal/domain"
	"github.com/utafrali/templamart/internal/notify"
	"github.com/utafrali/templamart/internal/storage"
	apperrors "github.com/utafrali/templamart/pkg/errors"
)

// MaxSessionIDLength bounds the X-Session-ID value.
const MaxSessionIDLength = 128

// ItemResolver looks up catalog listings by ID.
type ItemResolver interface {
	GetItem(ctx context.Context, id string) (domain.CatalogItem, error)
}

// NotifierFactory builds the extra notifier attached to a session's store,
// e.g. a Kafka publisher keyed by the session. It may return nil.
type NotifierFactory func(sessionID string) notify.Notifier

// ShopperService serves cart and wishlist operations for many shopper
// sessions, each backed by its own store over a namespaced slot view.
type ShopperService struct {
	slots     storage.Storage
	catalog   ItemResolver
	notifiers NotifierFactory
	logger    *slog.Logger

	idleTTL     time.Duration
	maxSessions int
	now         func() time.Time

	mu        sync.RWMutex
	sessions  map[string]*session
	lastSweep time.Time
	opening   singleflight.Group
}

// NewShopperService creates a new shopper service.
func NewShopperService(slots storage.Storage, catalog ItemResolver, notifiers NotifierFactory, logger *slog.Logger, opts ...Option) *ShopperService {
	s := &ShopperService{
		slots:       slots,
		catalog:     catalog,
		notifiers:   notifiers,
		logger:      logger,
		idleTTL:     DefaultSessionIdleTTL,
		maxSessions: DefaultMaxSessions,
		now:         time.Now,
		sessions:    make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateSessionID accepts 1 to MaxSessionIDLength characters from
// [A-Za-z0-9_-]. The charset keeps namespaced slot keys unambiguous.
func ValidateSessionID(id string) error {
	if id == "" {
		return apperrors.Unauthorized("session id is required")
	}
	if len(id) > MaxSessionIDLength {
		return apperrors.InvalidInput(fmt.Sprintf("session id must not exceed %d characters", MaxSessionIDLength))
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return apperrors.InvalidInput("session id contains invalid characters")
		}
	}
	return nil
}

// Snapshot returns the session's cart, wishlist and derived counts.
func (s *ShopperService) Snapshot(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer release()

	if err := refresh(ctx, sess); err != nil {
		return domain.Snapshot{}, err
	}
	return sess.store.Snapshot(), nil
}

// AddToCart adds one copy of the item. Items already in the cart are not
// looked up again since the stored line keeps its fields.
func (s *ShopperService) AddToCart(ctx context.Context, sessionID, itemID string) (domain.Snapshot, error) {
	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer release()

	if err := refresh(ctx, sess); err != nil {
		return domain.Snapshot{}, err
	}
	item, err := s.resolve(ctx, itemID, func() (domain.CatalogItem, bool) {
		cart := sess.store.Cart()
		if i := cart.IndexOf(itemID); i >= 0 {
			return cart[i].CatalogItem, true
		}
		return domain.CatalogItem{}, false
	})
	if err != nil {
		return domain.Snapshot{}, err
	}

	if err := sess.store.AddToCart(ctx, item); err != nil {
		return domain.Snapshot{}, fmt.Errorf("add to cart: %w", err)
	}

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("session_id", sessionID),
		slog.String("item_id", itemID),
	)
	return sess.store.Snapshot(), nil
}

// RemoveFromCart removes the item's line. Unknown items are ignored.
func (s *ShopperService) RemoveFromCart(ctx context.Context, sessionID, itemID string) (domain.Snapshot, error) {
	if itemID == "" {
		return domain.Snapshot{}, apperrors.InvalidInput("item id is required")
	}

	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer release()

	if err := sess.store.RemoveFromCart(ctx, itemID); err != nil {
		return domain.Snapshot{}, fmt.Errorf("remove from cart: %w", err)
	}

	s.logger.InfoContext(ctx, "item removed from cart",
		slog.String("session_id", sessionID),
		slog.String("item_id", itemID),
	)
	return sess.store.Snapshot(), nil
}

// ClearCart empties the session's cart.
func (s *ShopperService) ClearCart(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer release()

	if err := sess.store.ClearCart(ctx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("clear cart: %w", err)
	}

	s.logger.InfoContext(ctx, "cart cleared", slog.String("session_id", sessionID))
	return sess.store.Snapshot(), nil
}

// ToggleWishlist flips the item's wishlist membership and reports the new state.
func (s *ShopperService) ToggleWishlist(ctx context.Context, sessionID, itemID string) (bool, domain.Snapshot, error) {
	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return false, domain.Snapshot{}, err
	}
	defer release()

	if err := refresh(ctx, sess); err != nil {
		return false, domain.Snapshot{}, err
	}
	item, err := s.resolve(ctx, itemID, func() (domain.CatalogItem, bool) {
		wl := sess.store.Wishlist()
		if i := wl.IndexOf(itemID); i >= 0 {
			return wl[i], true
		}
		return domain.CatalogItem{}, false
	})
	if err != nil {
		return false, domain.Snapshot{}, err
	}

	added, err := sess.store.ToggleWishlist(ctx, item)
	if err != nil {
		return false, domain.Snapshot{}, fmt.Errorf("toggle wishlist: %w", err)
	}

	s.logger.InfoContext(ctx, "wishlist toggled",
		slog.String("session_id", sessionID),
		slog.String("item_id", itemID),
		slog.Bool("in_wishlist", added),
	)
	return added, sess.store.Snapshot(), nil
}

// IsInWishlist reports whether the item is in the session's wishlist.
func (s *ShopperService) IsInWishlist(ctx context.Context, sessionID, itemID string) (bool, error) {
	if itemID == "" {
		return false, apperrors.InvalidInput("item id is required")
	}

	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return false, err
	}
	defer release()

	if err := refresh(ctx, sess); err != nil {
		return false, err
	}
	return sess.store.IsInWishlist(itemID), nil
}

// Notices drains the confirmation notices queued for the session.
func (s *ShopperService) Notices(ctx context.Context, sessionID string) ([]notify.Notice, error) {
	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()
	return sess.notices.Drain(), nil
}

// Forget deletes the session's cart and wishlist slots and discards its
// queued notices.
func (s *ShopperService) Forget(ctx context.Context, sessionID string) error {
	sess, release, err := s.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	if err := sess.store.Forget(ctx); err != nil {
		return fmt.Errorf("forget session: %w", err)
	}
	sess.notices.Drain()

	s.logger.InfoContext(ctx, "shopper session forgotten", slog.String("session_id", sessionID))
	return nil
}

// refresh picks up writes other replicas made to shared slots.
func refresh(ctx context.Context, sess *session) error {
	if err := sess.store.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh shopper store: %w", err)
	}
	return nil
}

// resolve returns the locally held copy of the item when present, otherwise
// fetches it from the catalog.
func (s *ShopperService) resolve(ctx context.Context, itemID string, local func() (domain.CatalogItem, bool)) (domain.CatalogItem, error) {
	if itemID == "" {
		return domain.CatalogItem{}, apperrors.InvalidInput("item id is required")
	}
	if item, ok := local(); ok {
		return item, nil
	}

	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.CatalogItem{}, apperrors.NotFound("template", itemID)
		}
		return domain.CatalogItem{}, fmt.Errorf("resolve item %s: %w", itemID, err)
	}
	return item, nil
}
