package models

import "time"

// Event types published to the booking funnel topic
const (
	EventTypeBookingCreated     = "BOOKING_CREATED"
	EventTypeBookingConfirmed   = "BOOKING_CONFIRMED"
	EventTypeBookingCancelled   = "BOOKING_CANCELLED"
	EventTypeBookingAmended     = "BOOKING_AMENDED"
	EventTypeRiskReviewRequired = "RISK_REVIEW_REQUIRED"
	EventTypeSupplierSettled    = "SUPPLIER_SETTLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingCreatedEvent published when a booking draft is created
type BookingCreatedEvent struct {
	BaseEvent
	BookingID      string `json:"booking_id"`
	OrganizationID string `json:"organization_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

// BookingConfirmedEvent published when the supplier confirms a booking
type BookingConfirmedEvent struct {
	BaseEvent
	BookingID         string `json:"booking_id"`
	OrganizationID    string `json:"organization_id"`
	Supplier          string `json:"supplier"`
	SupplierBookingID string `json:"supplier_booking_id,omitempty"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
}

// BookingCancelledEvent published when a booking is cancelled
type BookingCancelledEvent struct {
	BaseEvent
	BookingID      string `json:"booking_id"`
	OrganizationID string `json:"organization_id"`
	RefundAmount   int64  `json:"refund_amount"`
	PenaltyAmount  int64  `json:"penalty_amount"`
	Currency       string `json:"currency"`
}

// BookingAmendedEvent published when an amendment delta is applied
type BookingAmendedEvent struct {
	BaseEvent
	BookingID      string `json:"booking_id"`
	OrganizationID string `json:"organization_id"`
	AmendID        string `json:"amend_id"`
	DeltaAmount    int64  `json:"delta_amount"`
	Currency       string `json:"currency"`
}

// RiskReviewRequiredEvent published when a booking is parked for manual review
type RiskReviewRequiredEvent struct {
	BaseEvent
	BookingID      string   `json:"booking_id"`
	OrganizationID string   `json:"organization_id"`
	Score          float64  `json:"score"`
	Reasons        []string `json:"reasons"`
}

// SupplierSettledEvent consumed when an async supplier settles a booking it
// previously left pending
type SupplierSettledEvent struct {
	BaseEvent
	BookingID         string `json:"booking_id"`
	OrganizationID    string `json:"organization_id"`
	Supplier          string `json:"supplier"`
	SupplierBookingID string `json:"supplier_booking_id"`
	Status            string `json:"status"`
}
