package supplier

import (
	"context"
	"fmt"
	"time"

	"booking-service/internal/models"
)

// Confirmation statuses returned by adapters
const (
	ResultConfirmed    = "CONFIRMED"
	ResultRejected     = "REJECTED"
	ResultPending      = "PENDING"
	ResultNotSupported = "NOT_SUPPORTED"
)

// Adapter error codes
const (
	CodeAdapterNotFound = "adapter_not_found"
	CodeSupplierTimeout = "supplier_timeout"
)

// CallContext carries per-call identity and the deadline the orchestrator
// imposes on the adapter.
type CallContext struct {
	RequestID      string
	OrganizationID string
	TenantID       string
	CallerID       string
	Timeout        time.Duration
}

// ConfirmResult is the outcome of a supplier confirmation call. RawPayload is
// the supplier's response as returned; it must be redacted before persistence.
type ConfirmResult struct {
	Status            string
	SupplierBookingID string
	RawPayload        map[string]interface{}
}

// CancelResult is the outcome of a supplier cancellation call.
type CancelResult struct {
	Cancelled  bool
	RawPayload map[string]interface{}
}

// Adapter is the supplier-specific confirm/cancel capability.
type Adapter interface {
	Code() string
	ConfirmBooking(ctx context.Context, call CallContext, booking *models.Booking) (*ConfirmResult, error)
	CancelBooking(ctx context.Context, call CallContext, booking *models.Booking) (*CancelResult, error)
}

// AdapterError is the typed failure an adapter returns. Retryable errors map
// to 502, non-retryable to 409.
type AdapterError struct {
	Code      string
	Message   string
	Retryable bool
	Details   map[string]interface{}
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("supplier adapter error: %s: %s (retryable=%t)", e.Code, e.Message, e.Retryable)
}

// NewAdapterError returns a typed adapter error.
func NewAdapterError(code, message string, retryable bool) *AdapterError {
	return &AdapterError{Code: code, Message: message, Retryable: retryable}
}
