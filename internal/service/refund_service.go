package service

import (
	"context"
	"fmt"
	"net/http"

	"booking-service/internal/models"
	"booking-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// legalRefundTransitions is the refund case state machine.
var legalRefundTransitions = map[string][]string{
	models.RefundCaseOpen:             {models.RefundCasePendingApproval1, models.RefundCaseRejected},
	models.RefundCasePendingApproval1: {models.RefundCasePendingApproval2, models.RefundCaseRejected},
	models.RefundCasePendingApproval2: {models.RefundCaseApproved, models.RefundCaseRejected},
	models.RefundCaseApproved:         {models.RefundCasePaid},
	models.RefundCasePaid:             {models.RefundCaseClosed},
	models.RefundCaseRejected:         {models.RefundCaseClosed},
}

// RefundCaseService owns refund cases and their short approval state
// machine, with the same ledger-recording discipline as bookings.
type RefundCaseService struct {
	cases    RefundCaseStore
	recorder *Recorder
	logger   *zap.Logger
}

// NewRefundCaseService wires the refund case flow.
func NewRefundCaseService(cases RefundCaseStore, recorder *Recorder) *RefundCaseService {
	return &RefundCaseService{
		cases:    cases,
		recorder: recorder,
		logger:   util.GetLogger(),
	}
}

// Open creates a refund case in the open state.
func (s *RefundCaseService) Open(ctx context.Context, organizationID, bookingID string, amount int64, currency string, actor Actor) (*models.RefundCase, error) {
	rc := &models.RefundCase{
		ID:             uuid.New().String(),
		OrganizationID: organizationID,
		BookingID:      bookingID,
		State:          models.RefundCaseOpen,
		Amount:         amount,
		Currency:       currency,
	}
	if err := s.cases.CreateRefundCase(ctx, rc); err != nil {
		return nil, fmt.Errorf("failed to create refund case: %w", err)
	}

	entry := s.recorder.auditEntry(organizationID, models.AuditRefundCaseTransition,
		"refund_case", rc.ID, actor, nil,
		map[string]interface{}{"state": models.RefundCaseOpen}, nil)
	if err := s.recorder.RecordAudit(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to audit refund case: %w", err)
	}

	return rc, nil
}

// Transition moves a refund case to a new state. Repeating a transition the
// case already completed is an idempotent no-op; anything else off the legal
// path fails with invalid_case_state.
func (s *RefundCaseService) Transition(ctx context.Context, organizationID, caseID, to string, actor Actor) (*models.RefundCase, error) {
	rc, err := s.cases.GetRefundCase(ctx, organizationID, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load refund case: %w", err)
	}
	if rc == nil {
		return nil, newError(http.StatusNotFound, CodeCaseNotFound, "refund case not found: "+caseID)
	}

	if rc.State == to {
		return rc, nil
	}

	if !transitionAllowed(rc.State, to) {
		return nil, errInvalidCaseState(rc.State, to)
	}

	moved, err := s.cases.TransitionRefundCase(ctx, caseID, rc.State, to)
	if err != nil {
		return nil, fmt.Errorf("failed to transition refund case: %w", err)
	}
	if !moved {
		current, err := s.cases.GetRefundCase(ctx, organizationID, caseID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload refund case: %w", err)
		}
		if current != nil && current.State == to {
			return current, nil
		}
		from := rc.State
		if current != nil {
			from = current.State
		}
		return nil, errInvalidCaseState(from, to)
	}

	entry := s.recorder.auditEntry(organizationID, models.AuditRefundCaseTransition,
		"refund_case", rc.ID, actor,
		map[string]interface{}{"state": rc.State},
		map[string]interface{}{"state": to}, nil)
	if err := s.recorder.RecordAudit(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to audit refund case transition: %w", err)
	}

	s.logger.Info("Refund case transitioned",
		zap.String("case_id", rc.ID),
		zap.String("from", rc.State),
		zap.String("to", to))

	rc.State = to
	return rc, nil
}

func transitionAllowed(from, to string) bool {
	for _, next := range legalRefundTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
