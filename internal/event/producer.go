package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/templamart/internal/notify"
	pkgkafka "github.com/utafrali/templamart/pkg/kafka"
	"github.com/utafrali/templamart/pkg/logger"
)

// Kafka topics for shopper notices.
var (
	TopicCart     = pkgkafka.Topic("shopper", "cart")
	TopicWishlist = pkgkafka.Topic("shopper", "wishlist")
)

// AggregateTypeShopper is the aggregate type of every shopper event; the
// aggregate ID is the session ID.
const AggregateTypeShopper = "shopper"

// SourceShopperService identifies events originating from this service.
const SourceShopperService = "shopper-service"

// NoticeData is the payload of a shopper event.
type NoticeData struct {
	SessionID string `json:"session_id"`
	ItemID    string `json:"item_id,omitempty"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message"`
}

// Publisher is the subset of *pkgkafka.Producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes shopper notices to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the shopper service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// TopicFor maps a notice kind to its topic.
func TopicFor(kind notify.Kind) string {
	if kind.Container() == "wishlist" {
		return TopicWishlist
	}
	return TopicCart
}

// PublishNotice publishes n as a shopper event keyed by sessionID.
func (p *Producer) PublishNotice(ctx context.Context, sessionID string, n notify.Notice) error {
	data := NoticeData{
		SessionID: sessionID,
		ItemID:    n.ItemID,
		Title:     n.Title,
		Message:   n.Message,
	}

	event, err := pkgkafka.NewEvent(string(n.Kind), sessionID, AggregateTypeShopper, SourceShopperService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", n.Kind, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	topic := TopicFor(n.Kind)
	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", n.Kind, err)
	}

	p.logger.DebugContext(ctx, "published shopper event",
		slog.String("topic", topic),
		slog.String("event_type", string(n.Kind)),
		slog.String("session_id", sessionID),
	)

	return nil
}

// ForSession returns a notifier that publishes with sessionID as the aggregate.
func (p *Producer) ForSession(sessionID string) notify.Notifier {
	return notify.Func(func(ctx context.Context, n notify.Notice) error {
		return p.PublishNotice(ctx, sessionID, n)
	})
}
