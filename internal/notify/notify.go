// Package notify carries the confirmation notices emitted after every
// successful cart or wishlist mutation.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Kind identifies which mutation produced a notice.
type Kind string

const (
	KindCartAdded       Kind = "cart.added"
	KindCartRemoved     Kind = "cart.removed"
	KindCartCleared     Kind = "cart.cleared"
	KindWishlistAdded   Kind = "wishlist.added"
	KindWishlistRemoved Kind = "wishlist.removed"
)

// Container returns the container part of the kind: "cart" or "wishlist".
func (k Kind) Container() string {
	container, _, _ := strings.Cut(string(k), ".")
	return container
}

// Notice is a user-facing confirmation.
type Notice struct {
	Kind    Kind      `json:"kind"`
	ItemID  string    `json:"item_id,omitempty"`
	Title   string    `json:"title,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// New builds the notice for kind with the standard message.
func New(kind Kind, itemID, title string) Notice {
	return Notice{
		Kind:    kind,
		ItemID:  itemID,
		Title:   title,
		Message: message(kind, title),
		At:      time.Now().UTC(),
	}
}

func message(kind Kind, title string) string {
	if title == "" {
		title = "Item"
	}
	switch kind {
	case KindCartAdded:
		return fmt.Sprintf("%s added to cart", title)
	case KindCartRemoved:
		return "Item removed from cart"
	case KindCartCleared:
		return "Cart cleared"
	case KindWishlistAdded:
		return fmt.Sprintf("%s added to wishlist", title)
	case KindWishlistRemoved:
		return fmt.Sprintf("%s removed from wishlist", title)
	default:
		return string(kind)
	}
}

// Notifier delivers notices. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notice) error

func (f Func) Notify(ctx context.Context, n Notice) error { return f(ctx, n) }

// Nop discards notices.
var Nop Notifier = Func(func(context.Context, Notice) error { return nil })

// Log writes notices to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a Notifier that logs at debug level.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, n Notice) error {
	l.logger.DebugContext(ctx, n.Message,
		slog.String("kind", string(n.Kind)),
		slog.String("item_id", n.ItemID),
	)
	return nil
}

// Multi fans a notice out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DefaultRecorderSize bounds the pending queue of a Recorder.
const DefaultRecorderSize = 50

// Recorder queues notices until a client drains them. When full, the oldest
// notice is dropped.
type Recorder struct {
	mu      sync.Mutex
	size    int
	pending []Notice
}

// NewRecorder creates a recorder holding at most size notices.
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = DefaultRecorderSize
	}
	return &Recorder{size: size}
}

func (r *Recorder) Notify(_ context.Context, n Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) == r.size {
		r.pending = r.pending[1:]
	}
	r.pending = append(r.pending, n)
	return nil
}

// Drain returns the queued notices oldest first and empties the queue.
func (r *Recorder) Drain() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.pending
	r.pending = nil
	if out == nil {
		out = []Notice{}
	}
	return out
}

// Len returns the number of queued notices.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
