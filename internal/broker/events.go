package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NewBaseEvent stamps a fresh event id and timestamp
func NewBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer     *Producer
	cartTopic    string
	paymentTopic string
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer, cartTopic, paymentTopic string) *EventPublisher {
	return &EventPublisher{
		producer:     producer,
		cartTopic:    cartTopic,
		paymentTopic: paymentTopic,
	}
}

// PublishCartChanged publishes CartChanged event keyed by session
func (ep *EventPublisher) PublishCartChanged(ctx context.Context, event *models.CartChangedEvent) error {
	key := fmt.Sprintf("session-%s", event.SessionID)
	return ep.producer.PublishEvent(ctx, ep.cartTopic, key, event)
}

// PublishPaymentInitiated publishes PaymentInitiated event
func (ep *EventPublisher) PublishPaymentInitiated(ctx context.Context, event *models.PaymentInitiatedEvent) error {
	key := fmt.Sprintf("payment-%s", event.Reference)
	return ep.producer.PublishEvent(ctx, ep.paymentTopic, key, event)
}

// PublishPaymentVerified publishes PaymentVerified event
func (ep *EventPublisher) PublishPaymentVerified(ctx context.Context, event *models.PaymentVerifiedEvent) error {
	key := fmt.Sprintf("payment-%s", event.Reference)
	return ep.producer.PublishEvent(ctx, ep.paymentTopic, key, event)
}

// PublishPaymentFailed publishes PaymentFailed event
func (ep *EventPublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	key := fmt.Sprintf("payment-%s", event.Reference)
	return ep.producer.PublishEvent(ctx, ep.paymentTopic, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onCartChanged func(context.Context, *models.CartChangedEvent) error
	logger        *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnCartChanged registers a handler for CartChanged events
func (eh *EventHandler) OnCartChanged(handler func(context.Context, *models.CartChangedEvent) error) {
	eh.onCartChanged = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeCartChanged:
		if eh.onCartChanged != nil {
			var event models.CartChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CartChanged event: %w", err)
			}
			return eh.onCartChanged(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
