package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sinilikhain/internal/models"
	"sinilikhain/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher is the write side of the event stream.
type Publisher interface {
	PublishEvent(ctx context.Context, key string, event any) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer Publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer Publisher) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// NewBaseEvent stamps a fresh event id and time.
func NewBaseEvent(eventType string, artisanIDs ...int64) models.BaseEvent {
	return models.BaseEvent{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		Timestamp:  time.Now().UTC(),
		ArtisanIDs: artisanIDs,
	}
}

// PublishOrderPlaced publishes OrderPlaced event
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("order-%d", event.OrderID), event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("order-%d", event.OrderID), event)
}

// PublishPaymentProcessed publishes PaymentProcessed event
func (ep *EventPublisher) PublishPaymentProcessed(ctx context.Context, event *models.PaymentProcessedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("order-%d", event.OrderID), event)
}

// PublishProductEvent publishes a product lifecycle event
func (ep *EventPublisher) PublishProductEvent(ctx context.Context, event *models.ProductEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("product-%d", event.ProductID), event)
}

// PublishProductsPurchased publishes ProductsPurchased event
func (ep *EventPublisher) PublishProductsPurchased(ctx context.Context, event *models.ProductsPurchasedEvent) error {
	return ep.producer.PublishEvent(ctx, "purchase-"+event.EventID, event)
}

// EventFunc handles one decoded event envelope and its raw payload.
type EventFunc func(ctx context.Context, base models.BaseEvent, payload []byte) error

// EventHandler routes incoming events by type
type EventHandler struct {
	handlers map[string]EventFunc
	fallback EventFunc
	logger   *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{
		handlers: make(map[string]EventFunc),
		logger:   util.GetLogger(),
	}
}

// On registers a handler for the given event types
func (eh *EventHandler) On(handler EventFunc, eventTypes ...string) {
	for _, t := range eventTypes {
		eh.handlers[t] = handler
	}
}

// OnAny registers a handler for event types without a specific handler
func (eh *EventHandler) OnAny(handler EventFunc) {
	eh.fallback = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var base models.BaseEvent
	if err := json.Unmarshal(msg.Value, &base); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", base.EventType),
		zap.String("event_id", base.EventID))

	handler, ok := eh.handlers[base.EventType]
	if !ok {
		handler = eh.fallback
	}
	if handler == nil {
		eh.logger.Debug("Unhandled event type", zap.String("type", base.EventType))
		return nil
	}
	return handler(ctx, base, msg.Value)
}
