// Package store holds a shopper's cart and wishlist in memory and keeps both
// containers mirrored in durable slots.
//
// Every mutation writes its own slot before it returns. A failed write leaves
// the in-memory container untouched, so readers never observe state that a
// restart would lose. Notices and subscriber callbacks run after the store's
// lock is released, one mutation at a time in the order the mutations were
// applied. They may read the store but must not mutate it.
//
// When the slots support compare-and-swap the store assumes other processes
// write the same slots. Each mutation then re-reads its slot, applies the
// change and swaps the result in, retrying on conflict.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/utafrali/templamart/internal/domain"
	"github.com/utafrali/templamart/internal/notify"
	"github.com/utafrali/templamart/internal/storage"
	apperrors "github.com/utafrali/templamart/pkg/errors"
	"github.com/utafrali/templamart/pkg/tracing"
)

var tracer = tracing.Tracer("store")

const (
	maxSwapAttempts = 10
	swapBackoff     = 2 * time.Millisecond
)

// Store is safe for concurrent use.
type Store struct {
	slots    storage.Storage
	swap     storage.Swapper
	notifier notify.Notifier
	logger   *slog.Logger

	mu       sync.RWMutex
	cart     domain.Cart
	wishlist domain.Wishlist
	seq      uint64

	turnMu    sync.Mutex
	turn      *sync.Cond
	delivered uint64

	subMu   sync.Mutex
	subs    map[uint64]func(domain.Snapshot)
	nextSub uint64
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for hydration warnings and notifier failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithNotifier sets where confirmation notices go.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// Open creates a store and hydrates both containers from slots. A missing
// slot yields an empty container. A slot holding malformed JSON or an invalid
// container is logged and treated as empty. Storage errors are returned.
func Open(ctx context.Context, slots storage.Storage, opts ...Option) (*Store, error) {
	s := &Store{
		slots:    slots,
		notifier: notify.Nop,
		logger:   slog.Default(),
		cart:     domain.Cart{},
		wishlist: domain.Wishlist{},
		subs:     make(map[uint64]func(domain.Snapshot)),
	}
	s.turn = sync.NewCond(&s.turnMu)
	if sw, ok := slots.(storage.Swapper); ok {
		s.swap = sw
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, span := tracer.Start(ctx, "store.Open")
	defer span.End()

	if err := s.reload(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return s, nil
}

// Shared reports whether the slots may be written by other processes.
func (s *Store) Shared() bool { return s.swap != nil }

// Refresh reloads both containers from shared slots so reads reflect writes
// made elsewhere. It does nothing when the slots are private to this store.
func (s *Store) Refresh(ctx context.Context) error {
	if s.swap == nil {
		return nil
	}
	ctx, span := tracer.Start(ctx, "store.Refresh")
	defer span.End()

	if err := s.reload(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *Store) reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, cart, err := load(ctx, s, storage.SlotCart, domain.ValidateCart)
	if err != nil {
		return err
	}
	_, wishlist, err := load(ctx, s, storage.SlotWishlist, domain.ValidateWishlist)
	if err != nil {
		return err
	}
	s.cart, s.wishlist = cart, wishlist
	return nil
}

// load reads a slot and decodes it. raw is the stored value, nil when the
// slot is absent. An unreadable or invalid value decodes as empty.
func load[T ~[]E, E any](ctx context.Context, s *Store, slot string, validate func(T) error) (raw []byte, out T, err error) {
	out = make(T, 0)

	raw, err = s.slots.Get(ctx, slot)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, out, nil
	}
	if err != nil {
		return nil, out, fmt.Errorf("load %s slot: %w", slot, err)
	}

	var decoded T
	if err := json.Unmarshal(raw, &decoded); err != nil {
		s.logger.WarnContext(ctx, "discarding unreadable slot",
			slog.String("slot", slot),
			slog.String("error", err.Error()),
		)
		hydrationDiscards.WithLabelValues(slot).Inc()
		return raw, out, nil
	}
	if err := validate(decoded); err != nil {
		s.logger.WarnContext(ctx, "discarding invalid slot",
			slog.String("slot", slot),
			slog.String("error", err.Error()),
		)
		hydrationDiscards.WithLabelValues(slot).Inc()
		return raw, out, nil
	}
	if decoded != nil {
		out = decoded
	}
	return raw, out, nil
}

// AddToCart increments the quantity of an existing line or appends a new line
// with quantity 1. An existing line keeps its stored fields.
func (s *Store) AddToCart(ctx context.Context, item domain.CatalogItem) error {
	if err := domain.ValidateItem(item); err != nil {
		return apperrors.InvalidInput(err.Error())
	}

	return s.mutateCart(ctx, "AddToCart", item.ID, func(cart domain.Cart) (domain.Cart, notify.Notice, bool) {
		if i := cart.IndexOf(item.ID); i >= 0 {
			cart[i].Quantity++
			return cart, notify.New(notify.KindCartAdded, item.ID, cart[i].Title), true
		}
		cart = append(cart, domain.CartLine{CatalogItem: item, Quantity: 1})
		return cart, notify.New(notify.KindCartAdded, item.ID, item.Title), true
	})
}

// RemoveFromCart drops the line with the given ID. An unknown ID changes
// nothing and is not an error.
func (s *Store) RemoveFromCart(ctx context.Context, id string) error {
	return s.mutateCart(ctx, "RemoveFromCart", id, func(cart domain.Cart) (domain.Cart, notify.Notice, bool) {
		i := cart.IndexOf(id)
		if i < 0 {
			return cart, notify.New(notify.KindCartRemoved, id, ""), false
		}
		title := cart[i].Title
		cart = append(cart[:i], cart[i+1:]...)
		return cart, notify.New(notify.KindCartRemoved, id, title), true
	})
}

// ClearCart empties the cart. The wishlist is untouched.
func (s *Store) ClearCart(ctx context.Context) error {
	return s.mutateCart(ctx, "ClearCart", "", func(domain.Cart) (domain.Cart, notify.Notice, bool) {
		return domain.Cart{}, notify.New(notify.KindCartCleared, "", ""), true
	})
}

// ToggleWishlist removes the item when present and appends it otherwise.
// It reports whether the item is in the wishlist afterwards.
func (s *Store) ToggleWishlist(ctx context.Context, item domain.CatalogItem) (bool, error) {
	if err := domain.ValidateItem(item); err != nil {
		return false, apperrors.InvalidInput(err.Error())
	}

	ctx, span := tracer.Start(ctx, "store.ToggleWishlist")
	defer span.End()
	span.SetAttributes(attribute.String("item.id", item.ID))

	added := false
	s.mu.Lock()
	next, n, _, err := apply(ctx, s, storage.SlotWishlist, s.wishlist, domain.ValidateWishlist,
		func(w domain.Wishlist) (domain.Wishlist, notify.Notice, bool) {
			if i := w.IndexOf(item.ID); i >= 0 {
				added = false
				removed := notify.New(notify.KindWishlistRemoved, item.ID, w[i].Title)
				return append(w[:i], w[i+1:]...), removed, true
			}
			added = true
			return append(w, item), notify.New(notify.KindWishlistAdded, item.ID, item.Title), true
		})
	if err != nil {
		s.mu.Unlock()
		span.SetStatus(codes.Error, err.Error())
		mutations.WithLabelValues("ToggleWishlist", resultError).Inc()
		return false, err
	}
	s.wishlist = next
	seq, snap := s.commitLocked()
	s.mu.Unlock()

	mutations.WithLabelValues("ToggleWishlist", resultOK).Inc()
	s.deliver(ctx, seq, &n, snap)
	return added, nil
}

// mutateCart applies fn to a copy of the cart. When fn reports a change the
// copy is persisted and installed. The notice is published either way.
func (s *Store) mutateCart(ctx context.Context, op, itemID string, fn func(domain.Cart) (domain.Cart, notify.Notice, bool)) error {
	ctx, span := tracer.Start(ctx, "store."+op)
	defer span.End()
	if itemID != "" {
		span.SetAttributes(attribute.String("item.id", itemID))
	}

	s.mu.Lock()
	next, n, changed, err := apply(ctx, s, storage.SlotCart, s.cart, domain.ValidateCart, fn)
	if err != nil {
		s.mu.Unlock()
		span.SetStatus(codes.Error, err.Error())
		mutations.WithLabelValues(op, resultError).Inc()
		return err
	}
	s.cart = next
	seq, snap := s.commitLocked()
	s.mu.Unlock()

	result := resultOK
	if !changed {
		result = resultNoop
	}
	mutations.WithLabelValues(op, result).Inc()

	s.deliver(ctx, seq, &n, snap)
	return nil
}

// apply runs fn on a copy of the container held for slot and persists the
// result when fn reports a change. With shared slots the copy comes from a
// fresh read and the write is a compare-and-swap, retried on conflict. The
// returned container is the one to install. Callers hold s.mu.
func apply[T ~[]E, E any](
	ctx context.Context,
	s *Store,
	slot string,
	held T,
	validate func(T) error,
	fn func(T) (T, notify.Notice, bool),
) (T, notify.Notice, bool, error) {
	if s.swap == nil {
		next, n, changed := fn(clone(held))
		if !changed {
			return held, n, false, nil
		}
		if err := s.persist(ctx, slot, next); err != nil {
			return held, n, false, err
		}
		return next, n, true, nil
	}

	var n notify.Notice
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		if attempt > 0 {
			if err := pause(ctx, attempt); err != nil {
				return held, n, false, err
			}
		}

		raw, cur, err := load(ctx, s, slot, validate)
		if err != nil {
			return held, n, false, err
		}
		next, notice, changed := fn(clone(cur))
		n = notice
		if !changed {
			return cur, n, false, nil
		}

		data, err := json.Marshal(next)
		if err != nil {
			return held, n, false, fmt.Errorf("encode %s slot: %w", slot, err)
		}
		swapped, err := s.swap.CompareAndSwap(ctx, slot, raw, data)
		if err != nil {
			return held, n, false, fmt.Errorf("persist %s slot: %w", slot, err)
		}
		if swapped {
			return next, n, true, nil
		}
		swapConflicts.WithLabelValues(slot).Inc()
	}

	s.logger.WarnContext(ctx, "gave up swapping contended slot",
		slog.String("slot", slot),
		slog.Int("attempts", maxSwapAttempts),
	)
	return held, n, false, apperrors.Conflict(fmt.Sprintf("%s changed concurrently, try again", slot))
}

func pause(ctx context.Context, attempt int) error {
	d := swapBackoff*time.Duration(attempt) + rand.N(swapBackoff)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func clone[T ~[]E, E any](v T) T {
	out := make(T, len(v))
	copy(out, v)
	return out
}

func (s *Store) persist(ctx context.Context, slot string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s slot: %w", slot, err)
	}
	if err := s.slots.Set(ctx, slot, data); err != nil {
		return fmt.Errorf("persist %s slot: %w", slot, err)
	}
	return nil
}

// Forget deletes both slots and empties the store. Subscribers receive the
// empty snapshot; no notice is emitted.
func (s *Store) Forget(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "store.Forget")
	defer span.End()

	s.mu.Lock()
	if err := s.slots.Delete(ctx, storage.SlotCart); err != nil {
		s.mu.Unlock()
		span.SetStatus(codes.Error, err.Error())
		mutations.WithLabelValues("Forget", resultError).Inc()
		return fmt.Errorf("delete %s slot: %w", storage.SlotCart, err)
	}
	s.cart = domain.Cart{}
	if err := s.slots.Delete(ctx, storage.SlotWishlist); err != nil {
		seq, snap := s.commitLocked()
		s.mu.Unlock()
		span.SetStatus(codes.Error, err.Error())
		mutations.WithLabelValues("Forget", resultError).Inc()
		s.deliver(ctx, seq, nil, snap)
		return fmt.Errorf("delete %s slot: %w", storage.SlotWishlist, err)
	}
	s.wishlist = domain.Wishlist{}
	seq, snap := s.commitLocked()
	s.mu.Unlock()

	mutations.WithLabelValues("Forget", resultOK).Inc()
	s.deliver(ctx, seq, nil, snap)
	return nil
}

// commitLocked takes the next delivery turn and the snapshot that goes with it.
func (s *Store) commitLocked() (uint64, domain.Snapshot) {
	seq := s.seq
	s.seq++
	return seq, s.snapshotLocked()
}

// deliver waits for turn seq, then hands n to the notifier and snap to every
// subscriber. A nil n skips the notifier.
func (s *Store) deliver(ctx context.Context, seq uint64, n *notify.Notice, snap domain.Snapshot) {
	s.turnMu.Lock()
	for s.delivered != seq {
		s.turn.Wait()
	}
	s.turnMu.Unlock()

	defer func() {
		s.turnMu.Lock()
		s.delivered++
		s.turn.Broadcast()
		s.turnMu.Unlock()
	}()

	if n != nil {
		if err := s.notifier.Notify(ctx, *n); err != nil {
			s.logger.WarnContext(ctx, "failed to deliver notice",
				slog.String("kind", string(n.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}

	s.subMu.Lock()
	fns := make([]func(domain.Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Subscribe registers fn to receive a snapshot after every mutation. The
// returned function unregisters it.
func (s *Store) Subscribe(fn func(domain.Snapshot)) (cancel func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// IsInWishlist reports whether an entry with id is in the wishlist.
func (s *Store) IsInWishlist(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wishlist.Contains(id)
}

// CartCount is the sum of quantities over all cart lines.
func (s *Store) CartCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Count()
}

// WishlistCount is the number of wishlist entries.
func (s *Store) WishlistCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wishlist)
}

// Cart returns a copy of the cart lines.
func (s *Store) Cart() domain.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Clone()
}

// Wishlist returns a copy of the wishlist entries.
func (s *Store) Wishlist() domain.Wishlist {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wishlist.Clone()
}

// Snapshot returns both containers and their derived values from a single
// consistent read.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() domain.Snapshot {
	return domain.NewSnapshot(s.cart, s.wishlist)
}
