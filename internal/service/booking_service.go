package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"booking-service/internal/idempotency"
	"booking-service/internal/models"
	"booking-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BookingService creates priced booking drafts and serves booking detail
// views. Creation runs under the idempotency coordinator when the caller
// supplies a key.
type BookingService struct {
	bookings    BookingStore
	pricing     PricingEngine
	coordinator *idempotency.Coordinator
	recorder    *Recorder
	logger      *zap.Logger
}

// NewBookingService wires booking creation.
func NewBookingService(
	bookings BookingStore,
	pricing PricingEngine,
	coordinator *idempotency.Coordinator,
	recorder *Recorder,
) *BookingService {
	return &BookingService{
		bookings:    bookings,
		pricing:     pricing,
		coordinator: coordinator,
		recorder:    recorder,
		logger:      util.GetLogger(),
	}
}

// CreateBookingRequest is the priced draft the client asks for.
type CreateBookingRequest struct {
	OrganizationID       string    `json:"-"`
	AgencyID             string    `json:"-"`
	Source               string    `json:"source" binding:"omitempty,oneof=quote marketplace"`
	Currency             string    `json:"currency" binding:"required,currency"`
	OfferSupplier        string    `json:"offer_supplier" binding:"required"`
	OfferSupplierOfferID string    `json:"offer_supplier_offer_id" binding:"required"`
	BuyerTenantID        string    `json:"buyer_tenant_id"`
	SellerTenantID       string    `json:"seller_tenant_id"`
	CheckIn              time.Time `json:"check_in" binding:"required"`
	CheckOut             time.Time `json:"check_out" binding:"required,gtfield=CheckIn"`
}

// CreateBookingResponse is returned (and replayed) for booking creation.
type CreateBookingResponse struct {
	BookingID string      `json:"booking_id"`
	Status    string      `json:"status"`
	Amount    int64       `json:"amount"`
	Currency  string      `json:"currency"`
	Price     *PriceQuote `json:"price"`
}

// CreateBooking prices and persists a booking draft. Retried requests with
// the same Idempotency-Key replay the stored response; a reused key with a
// different body conflicts.
func (s *BookingService) CreateBooking(ctx context.Context, req *CreateBookingRequest, idempotencyKey string) (int, []byte, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.CreateBooking")
	defer span.End()

	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to fingerprint request: %w", err)
	}

	scope := idempotency.Scope{
		OrganizationID: req.OrganizationID,
		AgencyID:       req.AgencyID,
		Endpoint:       "create_booking",
		Method:         http.MethodPost,
		Path:           "/api/v1/bookings",
		Key:            idempotencyKey,
	}

	return s.coordinator.StoreOrReplay(ctx, scope, idempotency.Fingerprint(body), func(ctx context.Context) (int, []byte, error) {
		return s.create(ctx, req)
	})
}

func (s *BookingService) create(ctx context.Context, req *CreateBookingRequest) (int, []byte, error) {
	price, err := s.pricing.CalculatePrice(ctx, req.OrganizationID, req.OfferSupplierOfferID,
		req.CheckIn, req.CheckOut)
	if err != nil {
		return 0, nil, fmt.Errorf("pricing failed: %w", err)
	}

	source := req.Source
	if source == "" {
		source = models.SourceQuote
	}

	booking := &models.Booking{
		ID:                   uuid.New().String(),
		OrganizationID:       req.OrganizationID,
		AgencyID:             req.AgencyID,
		Status:               models.BookingStatusPending,
		Source:               source,
		Amount:               price.Final,
		Currency:             req.Currency,
		CheckIn:              req.CheckIn,
		CheckOut:             req.CheckOut,
		OfferSupplier:        req.OfferSupplier,
		OfferSupplierOfferID: req.OfferSupplierOfferID,
		BuyerTenantID:        req.BuyerTenantID,
		SellerTenantID:       req.SellerTenantID,
	}

	if err := s.bookings.CreateBooking(ctx, booking); err != nil {
		return 0, nil, fmt.Errorf("failed to create booking: %w", err)
	}

	after, _ := json.Marshal(map[string]interface{}{"status": booking.Status, "amount": booking.Amount})
	if _, err := s.recorder.RecordLifecycle(ctx, &models.LifecycleEvent{
		OrganizationID: booking.OrganizationID,
		BookingID:      booking.ID,
		Event:          models.EventBookingCreated,
		RequestID:      booking.ID,
		After:          after,
	}); err != nil {
		return 0, nil, fmt.Errorf("failed to record creation lifecycle event: %w", err)
	}

	entry := s.recorder.auditEntry(booking.OrganizationID, models.AuditBookingCreated,
		"booking", booking.ID, Actor{Type: "user"}, nil,
		map[string]interface{}{"status": booking.Status, "amount": booking.Amount}, nil)
	if err := s.recorder.RecordAudit(ctx, entry); err != nil {
		return 0, nil, fmt.Errorf("failed to audit booking creation: %w", err)
	}

	s.recorder.Publish(ctx, bookingKey(booking.ID), &models.BookingCreatedEvent{
		BaseEvent:      newBaseEvent(models.EventTypeBookingCreated),
		BookingID:      booking.ID,
		OrganizationID: booking.OrganizationID,
		Amount:         booking.Amount,
		Currency:       booking.Currency,
	})

	util.BookingsCreatedTotal.Inc()
	s.logger.Info("Booking created",
		zap.String("booking_id", booking.ID),
		zap.Int64("amount", booking.Amount))

	respBody, err := json.Marshal(&CreateBookingResponse{
		BookingID: booking.ID,
		Status:    booking.Status,
		Amount:    booking.Amount,
		Currency:  booking.Currency,
		Price:     price,
	})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode response: %w", err)
	}

	return http.StatusCreated, respBody, nil
}

// GetBooking retrieves a booking with its lifecycle timeline.
func (s *BookingService) GetBooking(ctx context.Context, organizationID, id string) (*models.Booking, []models.LifecycleEvent, error) {
	booking, err := s.bookings.GetBooking(ctx, organizationID, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, nil, errBookingNotFound(id)
	}

	timeline, err := s.recorder.Timeline(ctx, organizationID, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load timeline: %w", err)
	}

	return booking, timeline, nil
}
