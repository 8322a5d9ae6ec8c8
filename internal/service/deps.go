package service

import (
	"context"
	"time"

	"booking-service/internal/models"
)

// BookingStore is the booking persistence the flows depend on. *store.Store
// satisfies it; tests use in-memory fakes.
type BookingStore interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, organizationID, id string) (*models.Booking, error)
	TransitionBookingStatus(ctx context.Context, id string, from []string, to string) (bool, error)
	SaveSupplierSnapshot(ctx context.Context, id string, snap models.SupplierSnapshot) error
	SaveRiskSnapshot(ctx context.Context, id string, risk models.RiskSnapshot) error
	ApplyAmendment(ctx context.Context, id string, checkIn, checkOut time.Time, amount int64) error
	RefreshFinancialSnapshot(ctx context.Context, id string) error
}

// LedgerStore is the append-only persistence behind the recorder.
type LedgerStore interface {
	InsertLedgerPosting(ctx context.Context, p *models.LedgerPosting) (bool, error)
	GetLedgerPostings(ctx context.Context, bookingID string) ([]models.LedgerPosting, error)
	AppendLifecycleEvent(ctx context.Context, ev *models.LifecycleEvent) (bool, error)
	ListLifecycleEvents(ctx context.Context, organizationID, bookingID string) ([]models.LifecycleEvent, error)
	AppendAuditEntry(ctx context.Context, e *models.AuditLogEntry) error
	HasAuditEntry(ctx context.Context, organizationID, action, targetID string) (bool, error)
}

// CreditStore is the credit profile persistence behind the credit guard.
type CreditStore interface {
	GetCreditProfile(ctx context.Context, organizationID string) (*models.CreditProfile, error)
	AddExposure(ctx context.Context, organizationID string, delta int64) error
}

// AmendmentStore is the persistence behind the amendment and refund flows.
type AmendmentStore interface {
	CreateAmendmentQuote(ctx context.Context, q *models.AmendmentQuote) (*models.AmendmentQuote, error)
	GetAmendmentQuote(ctx context.Context, organizationID, amendID string) (*models.AmendmentQuote, error)
	MarkAmendmentApplied(ctx context.Context, organizationID, amendID string, result []byte) (bool, error)
}

// RefundCaseStore is the persistence behind refund case transitions.
type RefundCaseStore interface {
	GetRefundCase(ctx context.Context, organizationID, id string) (*models.RefundCase, error)
	CreateRefundCase(ctx context.Context, rc *models.RefundCase) error
	TransitionRefundCase(ctx context.Context, id, from, to string) (bool, error)
}

// EventPublisher publishes funnel events. Publishing is best-effort: a
// failure is logged and never fails the primary operation.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event interface{}) error
}

// Actor identifies who performed a state-changing action, for audit entries.
type Actor struct {
	Type  string
	Email string
	Roles []string
}
