package worker

import (
	"context"
	"log"

	"booking-service/internal/broker"
	"booking-service/internal/service"
)

// SettlementWorker consumes supplier settlement events and applies them to
// bookings that a supplier previously left pending.
type SettlementWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	orchestrator *service.ConfirmationOrchestrator
}

// NewSettlementWorker creates a new settlement worker
func NewSettlementWorker(
	consumer *broker.Consumer,
	orchestrator *service.ConfirmationOrchestrator,
) *SettlementWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnSupplierSettled(orchestrator.ApplySettlement)

	return &SettlementWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		orchestrator: orchestrator,
	}
}

// Start starts the worker
func (w *SettlementWorker) Start(ctx context.Context) error {
	log.Println("Starting settlement worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SettlementWorker) Stop() error {
	log.Println("Stopping settlement worker...")
	return w.consumer.Close()
}
