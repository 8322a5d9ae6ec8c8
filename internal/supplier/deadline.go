package supplier

import (
	"context"
	"time"

	"booking-service/internal/models"
)

type confirmOutcome struct {
	result *ConfirmResult
	err    error
}

// ConfirmWithDeadline runs the adapter's confirm call under the per-call
// timeout from the CallContext. Exceeding the deadline surfaces as a
// retryable timeout error instead of an indefinite hang. The adapter call
// itself runs to completion in its own goroutine so an outcome that arrives
// after the deadline is never interrupted mid-write; it is simply discarded
// and the retry resolves through the idempotent-replay path.
func ConfirmWithDeadline(ctx context.Context, adapter Adapter, call CallContext, booking *models.Booking) (*ConfirmResult, error) {
	timeout := call.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan confirmOutcome, 1)
	go func() {
		result, err := adapter.ConfirmBooking(callCtx, call, booking)
		done <- confirmOutcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-callCtx.Done():
		return nil, &AdapterError{
			Code:      CodeSupplierTimeout,
			Message:   "supplier call exceeded deadline",
			Retryable: true,
			Details: map[string]interface{}{
				"supplier":   adapter.Code(),
				"timeout_ms": timeout.Milliseconds(),
			},
		}
	}
}
