package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/supplier"
	"booking-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProcessedEventStore deduplicates consumed broker events.
type ProcessedEventStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// ConfirmationOrchestrator turns a priced draft booking into a
// supplier-confirmed reservation. It sequences the guards in a fixed order,
// calls the adapter under a deadline, and drives the state machine and the
// recorder.
type ConfirmationOrchestrator struct {
	bookings        BookingStore
	credit          *CreditGuard
	risk            RiskEngine
	registry        *supplier.Registry
	recorder        *Recorder
	processed       ProcessedEventStore
	supplierTimeout time.Duration
	logger          *zap.Logger
}

// NewConfirmationOrchestrator wires the confirmation flow.
func NewConfirmationOrchestrator(
	bookings BookingStore,
	credit *CreditGuard,
	risk RiskEngine,
	registry *supplier.Registry,
	recorder *Recorder,
	processed ProcessedEventStore,
	supplierTimeout time.Duration,
) *ConfirmationOrchestrator {
	return &ConfirmationOrchestrator{
		bookings:        bookings,
		credit:          credit,
		risk:            risk,
		registry:        registry,
		recorder:        recorder,
		processed:       processed,
		supplierTimeout: supplierTimeout,
		logger:          util.GetLogger(),
	}
}

// ConfirmRequest identifies the booking and the caller.
type ConfirmRequest struct {
	OrganizationID string
	BookingID      string
	TenantID       string
	CallerID       string
	RequestID      string
	Actor          Actor
}

// ConfirmOutcome is the non-error result of a confirmation attempt. Deferred
// outcomes (risk review, supplier pending) carry HTTP 202 and a code.
type ConfirmOutcome struct {
	HTTPStatus        int             `json:"-"`
	BookingID         string          `json:"booking_id"`
	Status            string          `json:"status"`
	Code              string          `json:"code,omitempty"`
	SupplierBookingID string          `json:"supplier_booking_id,omitempty"`
	Risk              *RiskAssessment `json:"risk,omitempty"`
}

// Confirm runs the full confirmation flow for one booking.
func (o *ConfirmationOrchestrator) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmOutcome, error) {
	ctx, span := util.StartSpan(ctx, "ConfirmationOrchestrator.Confirm")
	defer span.End()

	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	booking, err := o.bookings.GetBooking(ctx, req.OrganizationID, req.BookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, errBookingNotFound(req.BookingID)
	}

	// Re-confirming an already confirmed booking is idempotent: no guard and
	// no adapter runs again, but the confirmation records are back-filled if
	// an earlier attempt crashed between the status write and the recorder.
	if booking.Status == models.BookingStatusConfirmed {
		if err := o.ensureConfirmationRecorded(ctx, booking, req.Actor); err != nil {
			return nil, err
		}
		return o.confirmedOutcome(booking), nil
	}

	if !booking.Confirmable() {
		util.ConfirmationsFailedTotal.WithLabelValues("not_confirmable").Inc()
		return nil, errBookingNotConfirmable(booking.Status)
	}

	if err := o.checkSourceAndTenant(booking, req.TenantID); err != nil {
		return nil, err
	}

	supplierCode := booking.ResolvedSupplierCode()
	if supplierCode == "" || booking.OfferSupplierOfferID == "" {
		util.ConfirmationsFailedTotal.WithLabelValues("missing_supplier").Inc()
		return nil, errMissingSupplierMapping()
	}

	// Credit is checked strictly before any supplier call; on failure no
	// state changes and no adapter call is made.
	if err := o.credit.Authorize(ctx, req.OrganizationID, booking.Amount, booking.Currency); err != nil {
		var serviceErr *Error
		if errors.As(err, &serviceErr) && serviceErr.Code == CodeCreditLimitExceeded {
			util.CreditRejectionsTotal.Inc()
		}
		return nil, err
	}

	assessment, err := o.evaluateRisk(ctx, req, booking)
	if err != nil {
		return nil, err
	}

	switch assessment.Decision {
	case models.RiskDecisionBlock:
		return nil, o.handleRiskBlocked(ctx, req, booking, assessment)
	case models.RiskDecisionReview:
		return o.handleRiskReview(ctx, req, booking, assessment)
	}

	adapter, err := o.registry.Resolve(supplierCode)
	if err != nil {
		return nil, o.adapterFailure(ctx, req, booking, err)
	}

	call := supplier.CallContext{
		RequestID:      req.RequestID,
		OrganizationID: req.OrganizationID,
		TenantID:       req.TenantID,
		CallerID:       req.CallerID,
		Timeout:        o.supplierTimeout,
	}

	start := time.Now()
	result, err := supplier.ConfirmWithDeadline(ctx, adapter, call, booking)
	util.SupplierConfirmLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, o.adapterFailure(ctx, req, booking, err)
	}

	return o.applyConfirmResult(ctx, req, booking, adapter.Code(), result)
}

func (o *ConfirmationOrchestrator) checkSourceAndTenant(booking *models.Booking, tenantID string) error {
	switch booking.Source {
	case models.SourceQuote, "":
		return nil
	case models.SourceMarketplace:
		if tenantID == "" {
			return errTenantContextRequired()
		}
		if tenantID != booking.BuyerTenantID {
			return errBookingNotConfirmable(booking.Status).
				WithDetails(map[string]interface{}{"reason": "tenant_mismatch"})
		}
		return nil
	default:
		return errUnsupportedSource(booking.Source)
	}
}

func (o *ConfirmationOrchestrator) evaluateRisk(ctx context.Context, req ConfirmRequest, booking *models.Booking) (*RiskAssessment, error) {
	assessment, err := o.risk.Evaluate(ctx, req.OrganizationID, booking)
	if err != nil {
		return nil, fmt.Errorf("risk evaluation failed: %w", err)
	}

	util.RiskDecisionsTotal.WithLabelValues(assessment.Decision).Inc()

	// Every evaluation is audited regardless of decision.
	entry := o.recorder.auditEntry(req.OrganizationID, models.AuditRiskEvaluated,
		"booking", booking.ID, req.Actor, nil, nil, assessment)
	if err := o.recorder.RecordAudit(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to audit risk evaluation: %w", err)
	}

	return assessment, nil
}

func (o *ConfirmationOrchestrator) handleRiskBlocked(ctx context.Context, req ConfirmRequest, booking *models.Booking, assessment *RiskAssessment) error {
	if err := o.bookings.SaveRiskSnapshot(ctx, booking.ID, assessment.Snapshot()); err != nil {
		return fmt.Errorf("failed to persist risk snapshot: %w", err)
	}

	entry := o.recorder.auditEntry(req.OrganizationID, models.AuditRiskBlocked,
		"booking", booking.ID, req.Actor, nil, nil, assessment)
	if err := o.recorder.RecordAudit(ctx, entry); err != nil {
		return fmt.Errorf("failed to audit risk block: %w", err)
	}

	util.ConfirmationsFailedTotal.WithLabelValues("risk_blocked").Inc()
	return errRiskBlocked(assessment.Reasons)
}

func (o *ConfirmationOrchestrator) handleRiskReview(ctx context.Context, req ConfirmRequest, booking *models.Booking, assessment *RiskAssessment) (*ConfirmOutcome, error) {
	if err := o.bookings.SaveRiskSnapshot(ctx, booking.ID, assessment.Snapshot()); err != nil {
		return nil, fmt.Errorf("failed to persist risk snapshot: %w", err)
	}

	moved, err := o.bookings.TransitionBookingStatus(ctx, booking.ID,
		[]string{"", models.BookingStatusPending}, models.BookingStatusRiskReview)
	if err != nil {
		return nil, fmt.Errorf("failed to park booking for review: %w", err)
	}
	if !moved {
		// A concurrent attempt changed the status; surface the current state.
		return o.resolveLostRace(ctx, req)
	}

	entry := o.recorder.auditEntry(req.OrganizationID, models.AuditRiskReviewRequired,
		"booking", booking.ID, req.Actor, nil, nil, assessment)
	if err := o.recorder.RecordAudit(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to audit risk review: %w", err)
	}

	o.recorder.Publish(ctx, bookingKey(booking.ID), &models.RiskReviewRequiredEvent{
		BaseEvent:      newBaseEvent(models.EventTypeRiskReviewRequired),
		BookingID:      booking.ID,
		OrganizationID: req.OrganizationID,
		Score:          assessment.Score,
		Reasons:        assessment.Reasons,
	})

	return &ConfirmOutcome{
		HTTPStatus: http.StatusAccepted,
		BookingID:  booking.ID,
		Status:     models.BookingStatusRiskReview,
		Code:       CodeRiskReviewRequired,
		Risk:       assessment,
	}, nil
}

// adapterFailure audits a supplier error and translates it to the HTTP
// contract: retryable errors map to 502, non-retryable to 409.
func (o *ConfirmationOrchestrator) adapterFailure(ctx context.Context, req ConfirmRequest, booking *models.Booking, err error) error {
	var adapterErr *supplier.AdapterError
	if !errors.As(err, &adapterErr) {
		util.ConfirmationsFailedTotal.WithLabelValues("supplier_error").Inc()
		return fmt.Errorf("supplier call failed: %w", err)
	}

	util.SupplierErrorsTotal.WithLabelValues(adapterErr.Code).Inc()
	util.ConfirmationsFailedTotal.WithLabelValues("supplier_error").Inc()

	entry := o.recorder.auditEntry(req.OrganizationID, models.AuditSupplierConfirmFailed,
		"booking", booking.ID, req.Actor, nil, nil, map[string]interface{}{
			"code":      adapterErr.Code,
			"message":   adapterErr.Message,
			"retryable": adapterErr.Retryable,
			"details":   adapterErr.Details,
		})
	if auditErr := o.recorder.RecordAudit(ctx, entry); auditErr != nil {
		return fmt.Errorf("failed to audit supplier failure: %w", auditErr)
	}

	status := http.StatusConflict
	if adapterErr.Retryable {
		status = http.StatusBadGateway
	}
	return newError(status, adapterErr.Code, adapterErr.Message).
		WithDetails(adapterErr.Details)
}

func (o *ConfirmationOrchestrator) applyConfirmResult(ctx context.Context, req ConfirmRequest, booking *models.Booking, adapterCode string, result *supplier.ConfirmResult) (*ConfirmOutcome, error) {
	switch result.Status {
	case supplier.ResultConfirmed:
		return o.applyConfirmed(ctx, req, booking, adapterCode, result)

	case supplier.ResultRejected:
		if err := o.auditAttempt(ctx, req, booking, "rejected"); err != nil {
			return nil, err
		}
		util.ConfirmationsFailedTotal.WithLabelValues("supplier_rejected").Inc()
		return nil, newError(http.StatusConflict, CodeSupplierRejected, "supplier rejected the booking")

	case supplier.ResultPending:
		if err := o.auditAttempt(ctx, req, booking, "pending"); err != nil {
			return nil, err
		}
		return &ConfirmOutcome{
			HTTPStatus: http.StatusAccepted,
			BookingID:  booking.ID,
			Status:     booking.Status,
			Code:       CodeSupplierPending,
		}, nil

	case supplier.ResultNotSupported:
		if err := o.auditAttempt(ctx, req, booking, "not_supported"); err != nil {
			return nil, err
		}
		return nil, newError(http.StatusNotImplemented, CodeSupplierNotSupported,
			"supplier does not support confirmation for this booking")

	default:
		o.logger.Error("Unmapped supplier confirmation status",
			zap.String("booking_id", booking.ID),
			zap.String("status", result.Status))
		util.ConfirmationsFailedTotal.WithLabelValues("unmapped_result").Inc()
		return nil, errSupplierFailed()
	}
}

func (o *ConfirmationOrchestrator) applyConfirmed(ctx context.Context, req ConfirmRequest, booking *models.Booking, adapterCode string, result *supplier.ConfirmResult) (*ConfirmOutcome, error) {
	moved, err := o.bookings.TransitionBookingStatus(ctx, booking.ID,
		[]string{"", models.BookingStatusPending}, models.BookingStatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to transition booking: %w", err)
	}
	if !moved {
		// Lost the race: another request confirmed (or moved) the booking
		// while the supplier call was in flight.
		return o.resolveLostRace(ctx, req)
	}

	booking.Status = models.BookingStatusConfirmed
	booking.SupplierBookingID = result.SupplierBookingID

	redacted, err := json.Marshal(supplier.Redact(result.RawPayload))
	if err != nil {
		o.logger.Error("Failed to encode supplier payload", zap.Error(err))
		redacted = nil
	}
	snapshot := models.SupplierSnapshot{
		Code:       adapterCode,
		OfferID:    booking.OfferSupplierOfferID,
		BookingID:  result.SupplierBookingID,
		RawPayload: redacted,
	}
	if err := o.bookings.SaveSupplierSnapshot(ctx, booking.ID, snapshot); err != nil {
		return nil, fmt.Errorf("failed to persist supplier snapshot: %w", err)
	}

	if err := o.credit.ReserveExposure(ctx, req.OrganizationID, booking.Amount); err != nil {
		return nil, fmt.Errorf("failed to reserve credit exposure: %w", err)
	}

	if err := o.ensureConfirmationRecorded(ctx, booking, req.Actor); err != nil {
		return nil, err
	}

	if err := o.bookings.RefreshFinancialSnapshot(ctx, booking.ID); err != nil {
		return nil, fmt.Errorf("failed to refresh financial snapshot: %w", err)
	}

	o.recorder.Publish(ctx, bookingKey(booking.ID), &models.BookingConfirmedEvent{
		BaseEvent:         newBaseEvent(models.EventTypeBookingConfirmed),
		BookingID:         booking.ID,
		OrganizationID:    req.OrganizationID,
		Supplier:          adapterCode,
		SupplierBookingID: result.SupplierBookingID,
		Amount:            booking.Amount,
		Currency:          booking.Currency,
	})

	util.BookingsConfirmedTotal.Inc()
	o.logger.Info("Booking confirmed",
		zap.String("booking_id", booking.ID),
		zap.String("supplier", adapterCode),
		zap.String("supplier_booking_id", result.SupplierBookingID))

	return o.confirmedOutcome(booking), nil
}

// ensureConfirmationRecorded writes the CONFIRM posting, the lifecycle event
// and the audit entry for a confirmed booking, each at most once. It runs on
// the success path and again on idempotent replays, so a crash between the
// status write and the recorder is repaired by the next confirm call.
func (o *ConfirmationOrchestrator) ensureConfirmationRecorded(ctx context.Context, booking *models.Booking, actor Actor) error {
	posting := &models.LedgerPosting{
		ID:             uuid.New().String(),
		OrganizationID: booking.OrganizationID,
		BookingID:      booking.ID,
		EntryType:      models.LedgerEntryConfirm,
		Amount:         booking.Amount,
		Currency:       booking.Currency,
	}
	if _, err := o.recorder.RecordPosting(ctx, posting); err != nil {
		return fmt.Errorf("failed to post confirmation ledger entry: %w", err)
	}

	after, _ := json.Marshal(map[string]interface{}{
		"status":              models.BookingStatusConfirmed,
		"supplier_booking_id": booking.SupplierBookingID,
	})
	_, err := o.recorder.RecordLifecycle(ctx, &models.LifecycleEvent{
		OrganizationID: booking.OrganizationID,
		BookingID:      booking.ID,
		Event:          models.EventBookingConfirmed,
		RequestID:      confirmEventKey(booking.ID),
		After:          after,
		Meta:           mustMeta(map[string]interface{}{"supplier": booking.ResolvedSupplierCode()}),
	})
	if err != nil {
		return fmt.Errorf("failed to record confirmation lifecycle event: %w", err)
	}

	// The audit table has no natural uniqueness, so the back-fill is guarded
	// by an existence check instead of a conflict clause.
	audited, err := o.recorder.HasAudit(ctx, booking.OrganizationID, models.AuditBookingConfirmed, booking.ID)
	if err != nil {
		return fmt.Errorf("failed to check confirmation audit: %w", err)
	}
	if !audited {
		entry := o.recorder.auditEntry(booking.OrganizationID, models.AuditBookingConfirmed,
			"booking", booking.ID, actor, nil,
			map[string]interface{}{"status": models.BookingStatusConfirmed}, nil)
		if err := o.recorder.RecordAudit(ctx, entry); err != nil {
			return fmt.Errorf("failed to audit confirmation: %w", err)
		}
	}

	return nil
}

func (o *ConfirmationOrchestrator) auditAttempt(ctx context.Context, req ConfirmRequest, booking *models.Booking, status string) error {
	entry := o.recorder.auditEntry(req.OrganizationID, models.AuditSupplierConfirmAttempt,
		"booking", booking.ID, req.Actor, nil, nil, map[string]interface{}{
			"status":   status,
			"supplier": booking.ResolvedSupplierCode(),
		})
	if err := o.recorder.RecordAudit(ctx, entry); err != nil {
		return fmt.Errorf("failed to audit supplier attempt: %w", err)
	}
	return nil
}

// resolveLostRace resolves a lost status race: when the winner confirmed the
// booking this attempt resolves as an idempotent success, otherwise the
// precondition failure surfaces.
func (o *ConfirmationOrchestrator) resolveLostRace(ctx context.Context, req ConfirmRequest) (*ConfirmOutcome, error) {
	current, err := o.bookings.GetBooking(ctx, req.OrganizationID, req.BookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload booking: %w", err)
	}
	if current == nil {
		return nil, errBookingNotFound(req.BookingID)
	}
	if current.Status == models.BookingStatusConfirmed {
		if err := o.ensureConfirmationRecorded(ctx, current, req.Actor); err != nil {
			return nil, err
		}
		return o.confirmedOutcome(current), nil
	}
	return nil, errBookingNotConfirmable(current.Status)
}

func (o *ConfirmationOrchestrator) confirmedOutcome(booking *models.Booking) *ConfirmOutcome {
	return &ConfirmOutcome{
		HTTPStatus:        http.StatusOK,
		BookingID:         booking.ID,
		Status:            models.BookingStatusConfirmed,
		SupplierBookingID: booking.SupplierBookingID,
	}
}

// ApplySettlement finalizes a booking that an async supplier left pending,
// driven by a SUPPLIER_SETTLED event from the broker. Processing is
// idempotent per event id.
func (o *ConfirmationOrchestrator) ApplySettlement(ctx context.Context, ev *models.SupplierSettledEvent) error {
	ctx, span := util.StartSpan(ctx, "ConfirmationOrchestrator.ApplySettlement")
	defer span.End()

	processed, err := o.processed.IsEventProcessed(ctx, ev.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		o.logger.Info("Settlement event already processed", zap.String("event_id", ev.EventID))
		return nil
	}

	booking, err := o.bookings.GetBooking(ctx, ev.OrganizationID, ev.BookingID)
	if err != nil {
		return fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		o.logger.Warn("Settlement for unknown booking",
			zap.String("booking_id", ev.BookingID),
			zap.String("event_id", ev.EventID))
		return o.processed.MarkEventProcessed(ctx, ev.EventID, ev.EventType)
	}

	if ev.Status != supplier.ResultConfirmed {
		o.logger.Info("Ignoring non-confirmed settlement",
			zap.String("booking_id", ev.BookingID),
			zap.String("status", ev.Status))
		return o.processed.MarkEventProcessed(ctx, ev.EventID, ev.EventType)
	}

	moved, err := o.bookings.TransitionBookingStatus(ctx, booking.ID,
		[]string{"", models.BookingStatusPending}, models.BookingStatusConfirmed)
	if err != nil {
		return fmt.Errorf("failed to transition booking: %w", err)
	}

	if moved {
		booking.Status = models.BookingStatusConfirmed
		booking.SupplierBookingID = ev.SupplierBookingID

		snapshot := models.SupplierSnapshot{
			Code:      ev.Supplier,
			OfferID:   booking.OfferSupplierOfferID,
			BookingID: ev.SupplierBookingID,
		}
		if err := o.bookings.SaveSupplierSnapshot(ctx, booking.ID, snapshot); err != nil {
			return fmt.Errorf("failed to persist supplier snapshot: %w", err)
		}
		if err := o.credit.ReserveExposure(ctx, ev.OrganizationID, booking.Amount); err != nil {
			return fmt.Errorf("failed to reserve credit exposure: %w", err)
		}
		if err := o.ensureConfirmationRecorded(ctx, booking, Actor{Type: "system"}); err != nil {
			return err
		}
		if err := o.bookings.RefreshFinancialSnapshot(ctx, booking.ID); err != nil {
			return fmt.Errorf("failed to refresh financial snapshot: %w", err)
		}
		util.BookingsConfirmedTotal.Inc()
		o.logger.Info("Booking settled by supplier",
			zap.String("booking_id", booking.ID),
			zap.String("supplier", ev.Supplier))
	}

	return o.processed.MarkEventProcessed(ctx, ev.EventID, ev.EventType)
}

func bookingKey(bookingID string) string {
	return "booking-" + bookingID
}

func confirmEventKey(bookingID string) string {
	// Stable per booking so replays and back-fills dedupe to one event.
	return "confirm:" + bookingID
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func mustMeta(meta map[string]interface{}) []byte {
	data, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return data
}
