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

// CancelService reverses a confirmed booking: one ledger posting that exactly
// negates the confirmation posting, exposure release, and the cancellation
// timeline records.
type CancelService struct {
	bookings BookingStore
	credit   *CreditGuard
	recorder *Recorder
	logger   *zap.Logger
	nowFunc  func() time.Time
}

// NewCancelService wires the cancellation flow.
func NewCancelService(bookings BookingStore, credit *CreditGuard, recorder *Recorder) *CancelService {
	return &CancelService{
		bookings: bookings,
		credit:   credit,
		recorder: recorder,
		logger:   util.GetLogger(),
		nowFunc:  time.Now,
	}
}

// CancelRequest identifies the booking and the caller. The idempotency key,
// when present, is recorded on the lifecycle event; cancellation dedup is via
// booking state, not the key.
type CancelRequest struct {
	OrganizationID string
	BookingID      string
	AgencyID       string
	IdempotencyKey string
	Actor          Actor
}

// CancelOutcome is the result of a cancellation.
type CancelOutcome struct {
	BookingID     string `json:"booking_id"`
	Status        string `json:"status"`
	RefundAmount  int64  `json:"refund_amount"`
	PenaltyAmount int64  `json:"penalty_amount"`
	Currency      string `json:"currency"`
}

// Cancel cancels a confirmed booking. Re-cancelling returns the current state
// without posting a second reversal.
func (s *CancelService) Cancel(ctx context.Context, req CancelRequest) (*CancelOutcome, error) {
	ctx, span := util.StartSpan(ctx, "CancelService.Cancel")
	defer span.End()

	booking, err := s.bookings.GetBooking(ctx, req.OrganizationID, req.BookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, errBookingNotFound(req.BookingID)
	}

	if booking.AgencyID != "" && booking.AgencyID != req.AgencyID {
		return nil, errAgencyBindingRequired()
	}

	// Re-cancelling is idempotent: the status does not move again, but the
	// reversal posting, exposure release and cancellation records are
	// back-filled if an earlier attempt crashed between the status write and
	// the recorder.
	if booking.Status == models.BookingStatusCancelled {
		return s.ensureCancellationRecorded(ctx, booking, req)
	}

	if booking.Status != models.BookingStatusConfirmed {
		return nil, newError(http.StatusUnprocessableEntity, CodeBookingNotCancellable,
			"booking cannot be cancelled from status "+booking.Status).
			WithDetails(map[string]interface{}{"status": booking.Status})
	}

	moved, err := s.bookings.TransitionBookingStatus(ctx, booking.ID,
		[]string{models.BookingStatusConfirmed}, models.BookingStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to transition booking: %w", err)
	}
	if !moved {
		// A concurrent cancel won; take the idempotent path.
		current, err := s.bookings.GetBooking(ctx, req.OrganizationID, req.BookingID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload booking: %w", err)
		}
		if current != nil && current.Status == models.BookingStatusCancelled {
			return s.ensureCancellationRecorded(ctx, current, req)
		}
		status := ""
		if current != nil {
			status = current.Status
		}
		return nil, newError(http.StatusUnprocessableEntity, CodeBookingNotCancellable,
			"booking cannot be cancelled from status "+status)
	}

	booking.Status = models.BookingStatusCancelled
	return s.ensureCancellationRecorded(ctx, booking, req)
}

// ensureCancellationRecorded posts the reversal, releases exposure and writes
// the cancellation records for a cancelled booking, each at most once. It
// runs on the success path and again on idempotent replays, so a failure
// between the status write and the recorder is repaired by the next cancel
// call.
func (s *CancelService) ensureCancellationRecorded(ctx context.Context, booking *models.Booking, req CancelRequest) (*CancelOutcome, error) {
	refund, penalty := s.cancellationTotals(ctx, booking)
	reversal := refund + penalty

	// Exact reversal of the posted balance: same currency, negated amount.
	// Deduped at the storage layer, so a crash-retry never posts twice.
	posting := &models.LedgerPosting{
		ID:             uuid.New().String(),
		OrganizationID: booking.OrganizationID,
		BookingID:      booking.ID,
		EntryType:      models.LedgerEntryCancelReversal,
		Amount:         -reversal,
		Currency:       booking.Currency,
	}
	inserted, err := s.recorder.RecordPosting(ctx, posting)
	if err != nil {
		return nil, fmt.Errorf("failed to post cancellation reversal: %w", err)
	}

	// Exposure has no natural dedup key, so the release rides on the posting
	// insert: it runs exactly when the reversal was newly posted.
	if inserted {
		if err := s.credit.ReleaseExposure(ctx, booking.OrganizationID, reversal); err != nil {
			return nil, fmt.Errorf("failed to release credit exposure: %w", err)
		}
		if err := s.bookings.RefreshFinancialSnapshot(ctx, booking.ID); err != nil {
			return nil, fmt.Errorf("failed to refresh financial snapshot: %w", err)
		}
	}

	meta, _ := json.Marshal(map[string]interface{}{
		"refund_amount":   refund,
		"penalty_amount":  penalty,
		"idempotency_key": req.IdempotencyKey,
	})
	before, _ := json.Marshal(map[string]interface{}{"status": models.BookingStatusConfirmed})
	after, _ := json.Marshal(map[string]interface{}{"status": models.BookingStatusCancelled})
	written, err := s.recorder.RecordLifecycle(ctx, &models.LifecycleEvent{
		OrganizationID: booking.OrganizationID,
		BookingID:      booking.ID,
		Event:          models.EventBookingCancelled,
		RequestID:      cancelEventKey(booking.ID),
		Before:         before,
		After:          after,
		Meta:           meta,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record cancellation lifecycle event: %w", err)
	}

	// The audit table has no natural uniqueness, so the back-fill is guarded
	// by an existence check instead of a conflict clause.
	audited, err := s.recorder.HasAudit(ctx, booking.OrganizationID, models.AuditBookingCancelled, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check cancellation audit: %w", err)
	}
	if !audited {
		entry := s.recorder.auditEntry(booking.OrganizationID, models.AuditBookingCancelled,
			"booking", booking.ID, req.Actor,
			map[string]interface{}{"status": models.BookingStatusConfirmed},
			map[string]interface{}{"status": models.BookingStatusCancelled},
			map[string]interface{}{"refund_amount": refund, "penalty_amount": penalty})
		if err := s.recorder.RecordAudit(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to audit cancellation: %w", err)
		}
	}

	if written {
		s.recorder.Publish(ctx, bookingKey(booking.ID), &models.BookingCancelledEvent{
			BaseEvent:      newBaseEvent(models.EventTypeBookingCancelled),
			BookingID:      booking.ID,
			OrganizationID: booking.OrganizationID,
			RefundAmount:   refund,
			PenaltyAmount:  penalty,
			Currency:       booking.Currency,
		})

		util.BookingsCancelledTotal.Inc()
		s.logger.Info("Booking cancelled",
			zap.String("booking_id", booking.ID),
			zap.Int64("refund_amount", refund),
			zap.Int64("penalty_amount", penalty))
	}

	return &CancelOutcome{
		BookingID:     booking.ID,
		Status:        models.BookingStatusCancelled,
		RefundAmount:  refund,
		PenaltyAmount: penalty,
		Currency:      booking.Currency,
	}, nil
}

// cancellationTotals returns the refund and penalty for a cancellation. A
// replay reads the totals recorded on the lifecycle event so retried cancels
// return the same body; the first cancellation computes them from the posted
// balance and the penalty window.
func (s *CancelService) cancellationTotals(ctx context.Context, booking *models.Booking) (int64, int64) {
	events, err := s.recorder.Timeline(ctx, booking.OrganizationID, booking.ID)
	if err != nil {
		s.logger.Warn("Failed to load timeline, recomputing cancellation totals",
			zap.String("booking_id", booking.ID),
			zap.Error(err))
	}
	for _, ev := range events {
		if ev.Event != models.EventBookingCancelled || ev.RequestID != cancelEventKey(booking.ID) {
			continue
		}
		var meta struct {
			RefundAmount  int64 `json:"refund_amount"`
			PenaltyAmount int64 `json:"penalty_amount"`
		}
		if json.Unmarshal(ev.Meta, &meta) == nil {
			return meta.RefundAmount, meta.PenaltyAmount
		}
	}

	gross := s.confirmedAmount(ctx, booking)
	penalty := s.penaltyFor(booking)
	return gross - penalty, penalty
}

// confirmedAmount negates the full posted balance rather than the booking
// amount: amendments post their own deltas, and the reversal must bring the
// booking's ledger back to zero.
func (s *CancelService) confirmedAmount(ctx context.Context, booking *models.Booking) int64 {
	postings, err := s.recorder.Postings(ctx, booking.ID)
	if err != nil {
		s.logger.Warn("Failed to load postings, reversing booking amount",
			zap.String("booking_id", booking.ID),
			zap.Error(err))
		return booking.Amount
	}

	var balance int64
	for _, p := range postings {
		balance += p.Amount
	}
	if balance == 0 {
		return booking.Amount
	}
	return balance
}

// penaltyFor applies the cancellation window policy: full penalty inside 48
// hours of check-in, half inside 7 days, none earlier.
func (s *CancelService) penaltyFor(booking *models.Booking) int64 {
	untilCheckIn := booking.CheckIn.Sub(s.nowFunc())
	switch {
	case untilCheckIn <= 48*time.Hour:
		return booking.Amount
	case untilCheckIn <= 7*24*time.Hour:
		return booking.Amount / 2
	default:
		return 0
	}
}

func cancelEventKey(bookingID string) string {
	return "cancel:" + bookingID
}
