package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"booking-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher publishes booking funnel events. It satisfies the service
// layer's publisher interface.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// Publish sends a funnel event keyed by booking id
func (ep *EventPublisher) Publish(ctx context.Context, key string, event interface{}) error {
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes consumed events to registered handlers
type EventHandler struct {
	onSupplierSettled func(context.Context, *models.SupplierSettledEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnSupplierSettled registers a handler for SUPPLIER_SETTLED events
func (eh *EventHandler) OnSupplierSettled(handler func(context.Context, *models.SupplierSettledEvent) error) {
	eh.onSupplierSettled = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeSupplierSettled:
		if eh.onSupplierSettled != nil {
			var event models.SupplierSettledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SupplierSettled event: %w", err)
			}
			return eh.onSupplierSettled(ctx, &event)
		}

	default:
		// Events this service publishes itself flow through the same topic;
		// they are not consumed here.
		log.Printf("Skipping event type: %s", baseEvent.EventType)
	}

	return nil
}
