package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/services/storefront/internal/domain"
)

// Kafka topics for storefront cart events.
var (
	TopicCartCreated = pkgkafka.Topic("cart", "created")
	TopicCartMutated = pkgkafka.Topic("cart", "mutated")
)

// Aggregate type constant.
const AggregateTypeCart = "cart"

// Source identifier for events originating from the storefront service.
const SourceStorefrontService = "storefront-service"

// CartCreatedData is the payload for a cart.created event.
type CartCreatedData struct {
	SessionID string `json:"session_id"`
	CartID    string `json:"cart_id"`
}

// CartMutatedData is the payload for a cart.mutated event. It is published
// once the commerce API has answered a mutation that was not superseded.
type CartMutatedData struct {
	SessionID      string              `json:"session_id"`
	CartID         string              `json:"cart_id"`
	Kind           domain.MutationKind `json:"kind"`
	Key            string              `json:"key"`
	Generation     uint64              `json:"generation"`
	TotalQuantity  int                 `json:"total_quantity"`
	LineCount      int                 `json:"line_count"`
	TotalAmount    *domain.Money       `json:"total_amount,omitempty"`
	UserErrorCodes []string            `json:"user_error_codes,omitempty"`
}

// Publisher is the subset of the Kafka producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes storefront cart events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the storefront service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartCreated publishes a cart.created event.
func (p *Producer) PublishCartCreated(ctx context.Context, sessionID, cartID string) error {
	data := CartCreatedData{SessionID: sessionID, CartID: cartID}

	event, err := pkgkafka.NewEvent(TopicCartCreated, cartID, AggregateTypeCart, SourceStorefrontService, data,
		pkgkafka.WithCorrelationID(logger.CorrelationIDFromContext(ctx)),
		pkgkafka.WithPartitionKey(sessionID),
	)
	if err != nil {
		return fmt.Errorf("create cart.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartCreated, event); err != nil {
		return fmt.Errorf("publish cart.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.created event",
		slog.String("session_id", sessionID),
		slog.String("cart_id", cartID),
	)

	return nil
}

// PublishCartMutated publishes a cart.mutated event.
func (p *Producer) PublishCartMutated(ctx context.Context, sessionID string, pending domain.PendingMutation, result *domain.MutationResult) error {
	data := CartMutatedData{
		SessionID:  sessionID,
		Kind:       pending.Kind,
		Key:        pending.Key,
		Generation: pending.Generation,
	}
	if result != nil {
		if cart := result.Cart; cart != nil {
			data.CartID = cart.ID
			data.TotalQuantity = cart.TotalQuantity
			data.LineCount = len(cart.Lines)
			data.TotalAmount = cart.Cost.TotalAmount
		}
		for _, ue := range result.UserErrors {
			data.UserErrorCodes = append(data.UserErrorCodes, ue.Code)
		}
	}

	// Keyed by session: a failed first mutation has no cart ID yet.
	event, err := pkgkafka.NewEvent(TopicCartMutated, data.CartID, AggregateTypeCart, SourceStorefrontService, data,
		pkgkafka.WithCorrelationID(logger.CorrelationIDFromContext(ctx)),
		pkgkafka.WithPartitionKey(sessionID),
		pkgkafka.WithMetadata("mutation_kind", string(pending.Kind)),
	)
	if err != nil {
		return fmt.Errorf("create cart.mutated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartMutated, event); err != nil {
		return fmt.Errorf("publish cart.mutated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.mutated event",
		slog.String("session_id", sessionID),
		slog.String("key", pending.Key),
		slog.Uint64("generation", pending.Generation),
	)

	return nil
}
