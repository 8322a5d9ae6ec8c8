package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AmendmentService runs the two-phase amendment flow: a priced quote that
// mutates nothing, then an apply that adjusts the booking and posts a
// delta-only ledger entry.
type AmendmentService struct {
	bookings   BookingStore
	amendments AmendmentStore
	pricing    PricingEngine
	credit     *CreditGuard
	recorder   *Recorder
	logger     *zap.Logger
}

// NewAmendmentService wires the amendment flow.
func NewAmendmentService(
	bookings BookingStore,
	amendments AmendmentStore,
	pricing PricingEngine,
	credit *CreditGuard,
	recorder *Recorder,
) *AmendmentService {
	return &AmendmentService{
		bookings:   bookings,
		amendments: amendments,
		pricing:    pricing,
		credit:     credit,
		recorder:   recorder,
		logger:     util.GetLogger(),
	}
}

// ProposeQuoteRequest asks for a priced delta for new dates.
type ProposeQuoteRequest struct {
	OrganizationID string
	BookingID      string
	RequestID      string
	NewCheckIn     time.Time
	NewCheckOut    time.Time
	Actor          Actor
}

// ProposeQuote computes a pricing delta and persists it as a quote without
// touching the booking or the ledger. Idempotent per (organization, booking,
// request id): a repeat call returns the same quote.
func (s *AmendmentService) ProposeQuote(ctx context.Context, req ProposeQuoteRequest) (*models.AmendmentQuote, error) {
	ctx, span := util.StartSpan(ctx, "AmendmentService.ProposeQuote")
	defer span.End()

	booking, err := s.bookings.GetBooking(ctx, req.OrganizationID, req.BookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, errBookingNotFound(req.BookingID)
	}
	if booking.Status != models.BookingStatusConfirmed {
		return nil, newError(http.StatusUnprocessableEntity, CodeBookingNotAmendable,
			"only confirmed bookings can be amended").
			WithDetails(map[string]interface{}{"status": booking.Status})
	}

	price, err := s.pricing.CalculatePrice(ctx, req.OrganizationID, booking.OfferSupplierOfferID,
		req.NewCheckIn, req.NewCheckOut)
	if err != nil {
		return nil, fmt.Errorf("pricing failed: %w", err)
	}

	quote := &models.AmendmentQuote{
		AmendID:        uuid.New().String(),
		OrganizationID: req.OrganizationID,
		BookingID:      booking.ID,
		RequestID:      req.RequestID,
		NewCheckIn:     req.NewCheckIn,
		NewCheckOut:    req.NewCheckOut,
		NewAmount:      price.Final,
		DeltaAmount:    price.Final - booking.Amount,
		Currency:       booking.Currency,
		Status:         models.AmendmentStatusQuoted,
	}

	stored, err := s.amendments.CreateAmendmentQuote(ctx, quote)
	if err != nil {
		return nil, fmt.Errorf("failed to store amendment quote: %w", err)
	}

	// Only a newly created quote is audited; replays return the stored one.
	if stored.AmendID == quote.AmendID {
		entry := s.recorder.auditEntry(req.OrganizationID, models.AuditAmendmentQuoted,
			"booking", booking.ID, req.Actor, nil, nil, map[string]interface{}{
				"amend_id":     stored.AmendID,
				"delta_amount": stored.DeltaAmount,
			})
		if err := s.recorder.RecordAudit(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to audit amendment quote: %w", err)
		}
	}

	return stored, nil
}

// AmendOutcome is the result of applying an amendment.
type AmendOutcome struct {
	BookingID   string    `json:"booking_id"`
	AmendID     string    `json:"amend_id"`
	Status      string    `json:"status"`
	NewCheckIn  time.Time `json:"new_check_in"`
	NewCheckOut time.Time `json:"new_check_out"`
	NewAmount   int64     `json:"new_amount"`
	DeltaAmount int64     `json:"delta_amount"`
	Currency    string    `json:"currency"`
}

// ConfirmAmendment applies a stored quote: booking dates and amount move to
// the quoted values and a single delta posting hits the ledger. Idempotent
// per amend id; replays return the already-applied result.
func (s *AmendmentService) ConfirmAmendment(ctx context.Context, organizationID, amendID string, actor Actor) (*AmendOutcome, error) {
	ctx, span := util.StartSpan(ctx, "AmendmentService.ConfirmAmendment")
	defer span.End()

	quote, err := s.amendments.GetAmendmentQuote(ctx, organizationID, amendID)
	if err != nil {
		return nil, fmt.Errorf("failed to load amendment quote: %w", err)
	}
	if quote == nil {
		return nil, newError(http.StatusNotFound, CodeAmendmentNotFound, "amendment not found: "+amendID)
	}

	if quote.Status == models.AmendmentStatusApplied {
		return s.storedOutcome(quote)
	}

	booking, err := s.bookings.GetBooking(ctx, organizationID, quote.BookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, errBookingNotFound(quote.BookingID)
	}

	// Side effects run before the quote is marked applied: every write below
	// dedupes on replay, so a crash in between is repaired by the retry.
	if err := s.bookings.ApplyAmendment(ctx, booking.ID, quote.NewCheckIn, quote.NewCheckOut, quote.NewAmount); err != nil {
		return nil, fmt.Errorf("failed to apply amendment to booking: %w", err)
	}

	posting := &models.LedgerPosting{
		ID:             uuid.New().String(),
		OrganizationID: organizationID,
		BookingID:      booking.ID,
		EntryType:      models.LedgerEntryAmendDelta,
		Ref:            quote.AmendID,
		Amount:         quote.DeltaAmount,
		Currency:       quote.Currency,
	}
	if _, err := s.recorder.RecordPosting(ctx, posting); err != nil {
		return nil, fmt.Errorf("failed to post amendment delta: %w", err)
	}

	if quote.DeltaAmount > 0 {
		err = s.credit.ReserveExposure(ctx, organizationID, quote.DeltaAmount)
	} else if quote.DeltaAmount < 0 {
		err = s.credit.ReleaseExposure(ctx, organizationID, -quote.DeltaAmount)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to adjust credit exposure: %w", err)
	}

	if err := s.bookings.RefreshFinancialSnapshot(ctx, booking.ID); err != nil {
		return nil, fmt.Errorf("failed to refresh financial snapshot: %w", err)
	}

	outcome := &AmendOutcome{
		BookingID:   booking.ID,
		AmendID:     quote.AmendID,
		Status:      models.AmendmentStatusApplied,
		NewCheckIn:  quote.NewCheckIn,
		NewCheckOut: quote.NewCheckOut,
		NewAmount:   quote.NewAmount,
		DeltaAmount: quote.DeltaAmount,
		Currency:    quote.Currency,
	}
	result, err := json.Marshal(outcome)
	if err != nil {
		return nil, fmt.Errorf("failed to encode amendment result: %w", err)
	}

	applied, err := s.amendments.MarkAmendmentApplied(ctx, organizationID, amendID, result)
	if err != nil {
		return nil, fmt.Errorf("failed to mark amendment applied: %w", err)
	}
	if !applied {
		// A concurrent apply won; its stored result is authoritative.
		stored, err := s.amendments.GetAmendmentQuote(ctx, organizationID, amendID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload amendment quote: %w", err)
		}
		return s.storedOutcome(stored)
	}

	meta, _ := json.Marshal(map[string]interface{}{
		"amend_id":     quote.AmendID,
		"delta_amount": quote.DeltaAmount,
	})
	if _, err := s.recorder.RecordLifecycle(ctx, &models.LifecycleEvent{
		OrganizationID: organizationID,
		BookingID:      booking.ID,
		Event:          models.EventBookingAmended,
		RequestID:      quote.AmendID,
		Meta:           meta,
	}); err != nil {
		return nil, fmt.Errorf("failed to record amendment lifecycle event: %w", err)
	}

	entry := s.recorder.auditEntry(organizationID, models.AuditAmendmentApplied,
		"booking", booking.ID, actor,
		map[string]interface{}{"amount": booking.Amount},
		map[string]interface{}{"amount": quote.NewAmount},
		map[string]interface{}{"amend_id": quote.AmendID})
	if err := s.recorder.RecordAudit(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to audit amendment: %w", err)
	}

	s.recorder.Publish(ctx, bookingKey(booking.ID), &models.BookingAmendedEvent{
		BaseEvent:      newBaseEvent(models.EventTypeBookingAmended),
		BookingID:      booking.ID,
		OrganizationID: organizationID,
		AmendID:        quote.AmendID,
		DeltaAmount:    quote.DeltaAmount,
		Currency:       quote.Currency,
	})

	util.AmendmentsAppliedTotal.Inc()
	s.logger.Info("Amendment applied",
		zap.String("booking_id", booking.ID),
		zap.String("amend_id", quote.AmendID),
		zap.Int64("delta_amount", quote.DeltaAmount))

	return outcome, nil
}

func (s *AmendmentService) storedOutcome(quote *models.AmendmentQuote) (*AmendOutcome, error) {
	var outcome AmendOutcome
	if len(quote.AppliedResult) == 0 {
		return nil, fmt.Errorf("applied amendment %s has no stored result", quote.AmendID)
	}
	if err := json.Unmarshal(quote.AppliedResult, &outcome); err != nil {
		return nil, fmt.Errorf("failed to decode stored amendment result: %w", err)
	}
	return &outcome, nil
}
