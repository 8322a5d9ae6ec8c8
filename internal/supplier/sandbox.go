package supplier

import (
	"context"
	"fmt"
	"strings"

	"booking-service/internal/models"

	"github.com/google/uuid"
)

// SandboxAdapter is a deterministic in-process supplier used in development
// and tests. The offer id prefix steers the outcome: "rej-" rejects, "pend-"
// stays pending, "unsup-" reports the operation as unsupported, "down-"
// fails retryably. Everything else confirms.
type SandboxAdapter struct {
	code string
}

// NewSandboxAdapter creates a sandbox adapter for the given supplier code.
func NewSandboxAdapter(code string) *SandboxAdapter {
	return &SandboxAdapter{code: code}
}

func (a *SandboxAdapter) Code() string {
	return a.code
}

func (a *SandboxAdapter) ConfirmBooking(ctx context.Context, call CallContext, booking *models.Booking) (*ConfirmResult, error) {
	offerID := booking.OfferSupplierOfferID

	switch {
	case strings.HasPrefix(offerID, "down-"):
		return nil, &AdapterError{
			Code:      "supplier_unavailable",
			Message:   "sandbox supplier is down",
			Retryable: true,
		}
	case strings.HasPrefix(offerID, "rej-"):
		return &ConfirmResult{
			Status:     ResultRejected,
			RawPayload: a.payload(call, "offer no longer available"),
		}, nil
	case strings.HasPrefix(offerID, "pend-"):
		return &ConfirmResult{
			Status:     ResultPending,
			RawPayload: a.payload(call, "queued for settlement"),
		}, nil
	case strings.HasPrefix(offerID, "unsup-"):
		return &ConfirmResult{
			Status:     ResultNotSupported,
			RawPayload: a.payload(call, "confirm not supported for this rate"),
		}, nil
	}

	return &ConfirmResult{
		Status:            ResultConfirmed,
		SupplierBookingID: fmt.Sprintf("SBX-%s", uuid.New().String()[:8]),
		RawPayload:        a.payload(call, "confirmed"),
	}, nil
}

func (a *SandboxAdapter) CancelBooking(ctx context.Context, call CallContext, booking *models.Booking) (*CancelResult, error) {
	if booking.SupplierBookingID == "" {
		return nil, &AdapterError{
			Code:      "unknown_supplier_booking",
			Message:   "no supplier booking id to cancel",
			Retryable: false,
		}
	}
	return &CancelResult{
		Cancelled:  true,
		RawPayload: a.payload(call, "cancelled"),
	}, nil
}

func (a *SandboxAdapter) payload(call CallContext, note string) map[string]interface{} {
	return map[string]interface{}{
		"supplier":   a.code,
		"request_id": call.RequestID,
		"note":       note,
		// The sandbox echoes a fake credential so redaction is exercised end to end.
		"api_key": "sandbox-credential",
	}
}
