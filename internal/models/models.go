package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// Booking statuses. An empty status is a legacy default and is treated as
// confirmable, same as PENDING.
const (
	BookingStatusPending    = "PENDING"
	BookingStatusConfirmed  = "CONFIRMED"
	BookingStatusCancelled  = "CANCELLED"
	BookingStatusRiskReview = "RISK_REVIEW"
)

// Booking sources
const (
	SourceQuote       = "quote"
	SourceMarketplace = "marketplace"
)

// Risk decisions
const (
	RiskDecisionAllow  = "ALLOW"
	RiskDecisionReview = "REVIEW"
	RiskDecisionBlock  = "BLOCK"
)

// Ledger entry types
const (
	LedgerEntryConfirm        = "CONFIRM"
	LedgerEntryCancelReversal = "CANCEL_REVERSAL"
	LedgerEntryAmendDelta     = "AMEND_DELTA"
)

// Booking is the aggregate root for a priced reservation.
type Booking struct {
	ID             string `db:"id" json:"id"`
	OrganizationID string `db:"organization_id" json:"organization_id"`
	AgencyID       string `db:"agency_id" json:"agency_id,omitempty"`
	Status         string `db:"status" json:"status"`
	Source         string `db:"source" json:"source"`
	Amount         int64  `db:"amount" json:"amount"`
	Currency       string `db:"currency" json:"currency"`

	CheckIn  time.Time `db:"check_in" json:"check_in"`
	CheckOut time.Time `db:"check_out" json:"check_out"`

	// Offer reference to the externally sourced offer.
	OfferSupplier        string `db:"offer_supplier" json:"offer_supplier"`
	OfferSupplierOfferID string `db:"offer_supplier_offer_id" json:"offer_supplier_offer_id"`
	BuyerTenantID        string `db:"buyer_tenant_id" json:"buyer_tenant_id,omitempty"`
	SellerTenantID       string `db:"seller_tenant_id" json:"seller_tenant_id,omitempty"`

	// Supplier snapshot, populated after a successful confirmation.
	// Legacy records may carry the supplier code here instead of on the offer.
	SupplierCode       string         `db:"supplier_code" json:"supplier_code,omitempty"`
	SupplierBookingID  string         `db:"supplier_booking_id" json:"supplier_booking_id,omitempty"`
	SupplierRawPayload types.JSONText `db:"supplier_raw_payload" json:"supplier_raw_payload,omitempty"`

	// Last risk snapshot, persisted only for non-ALLOW decisions.
	RiskScore        float64        `db:"risk_score" json:"risk_score,omitempty"`
	RiskDecision     string         `db:"risk_decision" json:"risk_decision,omitempty"`
	RiskReasons      pq.StringArray `db:"risk_reasons" json:"risk_reasons,omitempty"`
	RiskModelVersion string         `db:"risk_model_version" json:"risk_model_version,omitempty"`

	// NetAmount mirrors the sum of ledger postings for this booking.
	NetAmount int64 `db:"net_amount" json:"net_amount"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Confirmable reports whether the booking may enter the confirmation flow.
func (b *Booking) Confirmable() bool {
	return b.Status == "" || b.Status == BookingStatusPending
}

// ResolvedSupplierCode returns the supplier code from the offer reference,
// falling back to the legacy snapshot field.
func (b *Booking) ResolvedSupplierCode() string {
	if b.OfferSupplier != "" {
		return b.OfferSupplier
	}
	return b.SupplierCode
}

// SupplierSnapshot is the persisted outcome of a supplier confirmation.
type SupplierSnapshot struct {
	Code       string         `json:"code"`
	OfferID    string         `json:"offer_id"`
	BookingID  string         `json:"booking_id"`
	RawPayload types.JSONText `json:"raw_payload,omitempty"`
}

// RiskSnapshot is the persisted outcome of a risk evaluation.
type RiskSnapshot struct {
	Score        float64  `json:"score"`
	Decision     string   `json:"decision"`
	Reasons      []string `json:"reasons"`
	ModelVersion string   `json:"model_version"`
}

// CreditProfile caps an organization's unsettled exposure. Organizations
// without a profile are unrestricted.
type CreditProfile struct {
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	CreditLimit    int64     `db:"credit_limit" json:"credit_limit"`
	Exposure       int64     `db:"exposure" json:"exposure"`
	Currency       string    `db:"currency" json:"currency"`
	Active         bool      `db:"active" json:"active"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// IdempotencyRecord deduplicates retried client requests. Write-once: the
// response is stored exactly once and the record is never mutated afterwards.
type IdempotencyRecord struct {
	ScopeKey       string         `db:"scope_key"`
	OrganizationID string         `db:"organization_id"`
	AgencyID       string         `db:"agency_id"`
	Endpoint       string         `db:"endpoint"`
	Fingerprint    string         `db:"fingerprint"`
	ResponseStatus int            `db:"response_status"`
	ResponseBody   types.JSONText `db:"response_body"`
	CreatedAt      time.Time      `db:"created_at"`
	ExpiresAt      time.Time      `db:"expires_at"`
}

// LedgerPosting is an immutable financial entry. Cancellation posts the exact
// reversal of the confirmation posting; amendments post deltas only.
type LedgerPosting struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	BookingID      string    `db:"booking_id" json:"booking_id"`
	EntryType      string    `db:"entry_type" json:"entry_type"`
	Ref            string    `db:"ref" json:"ref,omitempty"`
	Amount         int64     `db:"amount" json:"amount"`
	Currency       string    `db:"currency" json:"currency"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// LifecycleEvent is an append-only timeline entry for a booking.
type LifecycleEvent struct {
	ID             int64          `db:"id" json:"id"`
	OrganizationID string         `db:"organization_id" json:"organization_id"`
	BookingID      string         `db:"booking_id" json:"booking_id"`
	Event          string         `db:"event" json:"event"`
	RequestID      string         `db:"request_id" json:"request_id"`
	OccurredAt     time.Time      `db:"occurred_at" json:"occurred_at"`
	Before         types.JSONText `db:"before" json:"before,omitempty"`
	After          types.JSONText `db:"after" json:"after,omitempty"`
	Meta           types.JSONText `db:"meta" json:"meta,omitempty"`
}

// AuditLogEntry is an append-only compliance record. Never updated or deleted.
type AuditLogEntry struct {
	ID             int64          `db:"id" json:"id"`
	OrganizationID string         `db:"organization_id" json:"organization_id"`
	Action         string         `db:"action" json:"action"`
	TargetType     string         `db:"target_type" json:"target_type"`
	TargetID       string         `db:"target_id" json:"target_id"`
	ActorType      string         `db:"actor_type" json:"actor_type"`
	ActorEmail     string         `db:"actor_email" json:"actor_email,omitempty"`
	ActorRoles     pq.StringArray `db:"actor_roles" json:"actor_roles,omitempty"`
	Before         types.JSONText `db:"before" json:"before,omitempty"`
	After          types.JSONText `db:"after" json:"after,omitempty"`
	Meta           types.JSONText `db:"meta" json:"meta,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// Audit actions
const (
	AuditBookingCreated         = "B2B_BOOKING_CREATED"
	AuditBookingConfirmed       = "B2B_BOOKING_CONFIRMED"
	AuditBookingCancelled       = "B2B_BOOKING_CANCELLED"
	AuditAmendmentQuoted        = "B2B_AMENDMENT_QUOTED"
	AuditAmendmentApplied       = "B2B_AMENDMENT_APPLIED"
	AuditRiskEvaluated          = "RISK_EVALUATED"
	AuditRiskBlocked            = "RISK_BLOCKED"
	AuditRiskReviewRequired     = "RISK_REVIEW_REQUIRED"
	AuditSupplierConfirmAttempt = "SUPPLIER_CONFIRM_ATTEMPT"
	AuditSupplierConfirmFailed  = "SUPPLIER_CONFIRM_FAILED"
	AuditRefundCaseTransition   = "REFUND_CASE_TRANSITIONED"
)

// Lifecycle event names
const (
	EventBookingCreated   = "BOOKING_CREATED"
	EventBookingConfirmed = "BOOKING_CONFIRMED"
	EventBookingCancelled = "BOOKING_CANCELLED"
	EventBookingAmended   = "BOOKING_AMENDED"
)

// Amendment quote statuses
const (
	AmendmentStatusQuoted  = "QUOTED"
	AmendmentStatusApplied = "APPLIED"
)

// AmendmentQuote is a priced delta persisted by the quote phase and applied
// by the confirm phase.
type AmendmentQuote struct {
	AmendID        string         `db:"amend_id" json:"amend_id"`
	OrganizationID string         `db:"organization_id" json:"organization_id"`
	BookingID      string         `db:"booking_id" json:"booking_id"`
	RequestID      string         `db:"request_id" json:"request_id"`
	NewCheckIn     time.Time      `db:"new_check_in" json:"new_check_in"`
	NewCheckOut    time.Time      `db:"new_check_out" json:"new_check_out"`
	NewAmount      int64          `db:"new_amount" json:"new_amount"`
	DeltaAmount    int64          `db:"delta_amount" json:"delta_amount"`
	Currency       string         `db:"currency" json:"currency"`
	Status         string         `db:"status" json:"status"`
	AppliedResult  types.JSONText `db:"applied_result" json:"applied_result,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// Refund case states
const (
	RefundCaseOpen             = "open"
	RefundCasePendingApproval1 = "pending_approval_1"
	RefundCasePendingApproval2 = "pending_approval_2"
	RefundCaseApproved         = "approved"
	RefundCasePaid             = "paid"
	RefundCaseRejected         = "rejected"
	RefundCaseClosed           = "closed"
)

// RefundCase is a secondary aggregate with its own short state machine.
type RefundCase struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	BookingID      string    `db:"booking_id" json:"booking_id"`
	State          string    `db:"state" json:"state"`
	Amount         int64     `db:"amount" json:"amount"`
	Currency       string    `db:"currency" json:"currency"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ProcessedEvent for consumer-side idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
