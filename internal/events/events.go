// Package events publishes order lifecycle events after each committed change.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storefront/ecommerce-go-app/internal/models"
)

const (
	TopicOrderCreated       = "orders.created"
	TopicOrderStatusChanged = "orders.status_changed"
	TopicOrderDeleted       = "orders.deleted"
)

// Publisher sends an event to a topic, keyed for partitioning.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
	Close() error
}

// Envelope fields shared by every order event.
type Envelope struct {
	EventID    string    `json:"eventId"`
	OccurredAt time.Time `json:"occurredAt"`
	OrderID    int64     `json:"orderId"`
	UserID     int64     `json:"userId"`
	ActorID    int64     `json:"actorId"`
}

func newEnvelope(orderID, userID, actorID int64) Envelope {
	return Envelope{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		OrderID:    orderID,
		UserID:     userID,
		ActorID:    actorID,
	}
}

type OrderCreated struct {
	Envelope
	Lines      []models.OrderLine `json:"products"`
	TotalPrice decimal.Decimal    `json:"totalPrice"`
}

type OrderStatusChanged struct {
	Envelope
	From          models.OrderStatus `json:"from"`
	To            models.OrderStatus `json:"to"`
	StockRestored bool               `json:"stockRestored"`
}

type OrderDeleted struct {
	Envelope
	Status models.OrderStatus `json:"status"`
}

func NewOrderCreated(order *models.Order, actorID int64) OrderCreated {
	return OrderCreated{
		Envelope:   newEnvelope(order.ID, order.UserID, actorID),
		Lines:      order.Lines,
		TotalPrice: order.TotalPrice,
	}
}

func NewOrderStatusChanged(order *models.Order, from models.OrderStatus, actorID int64, restored bool) OrderStatusChanged {
	return OrderStatusChanged{
		Envelope:      newEnvelope(order.ID, order.UserID, actorID),
		From:          from,
		To:            order.Status,
		StockRestored: restored,
	}
}

func NewOrderDeleted(order *models.Order, actorID int64) OrderDeleted {
	return OrderDeleted{
		Envelope: newEnvelope(order.ID, order.UserID, actorID),
		Status:   order.Status,
	}
}

// PublishTimeout bounds how long Notify waits for a publisher.
const PublishTimeout = 2 * time.Second

// Notify publishes and logs a failure instead of returning it. The change the
// event describes is already committed, so the publish is detached from the
// request's cancellation and bounded by PublishTimeout instead.
func Notify(ctx context.Context, p Publisher, topic, key string, event any) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), PublishTimeout)
	defer cancel()
	if err := p.Publish(ctx, topic, key, event); err != nil {
		slog.ErrorContext(ctx, "failed to publish event", "topic", topic, "key", key, "error", err)
	}
}

// LogPublisher writes events to the structured log. Used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, topic, key string, event any) error {
	p.logger.InfoContext(ctx, "event", "topic", topic, "key", key, "payload", event)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
