package service

import (
	"fmt"
	"net/http"
)

// Error codes surfaced to callers
const (
	CodeBookingNotFound        = "BOOKING_NOT_FOUND"
	CodeBookingNotConfirmable  = "BOOKING_NOT_CONFIRMABLE"
	CodeBookingNotCancellable  = "BOOKING_NOT_CANCELLABLE"
	CodeBookingNotAmendable    = "BOOKING_NOT_AMENDABLE"
	CodeTenantContextRequired  = "TENANT_CONTEXT_REQUIRED"
	CodeOrgContextRequired     = "ORGANIZATION_CONTEXT_REQUIRED"
	CodeInvalidSupplierMapping = "INVALID_SUPPLIER_MAPPING"
	CodeUnsupportedCurrency    = "UNSUPPORTED_CURRENCY"
	CodeUnsupportedSource      = "UNSUPPORTED_SOURCE"
	CodeIdempotencyKeyConflict = "IDEMPOTENCY_KEY_CONFLICT"
	CodeSupplierFailed         = "SUPPLIER_FULFILMENT_FAILED"
	CodeCreditLimitExceeded    = "credit_limit_exceeded"
	CodeRiskBlocked            = "risk_blocked"
	CodeRiskReviewRequired     = "risk_review_required"
	CodeSupplierRejected       = "supplier_rejected"
	CodeSupplierPending        = "supplier_pending"
	CodeSupplierNotSupported   = "supplier_not_supported"
	CodeAgencyBindingRequired  = "agency_binding_required"
	CodeInvalidCaseState       = "invalid_case_state"
	CodeAmendmentNotFound      = "AMENDMENT_NOT_FOUND"
	CodeCaseNotFound           = "CASE_NOT_FOUND"
)

// Error is the typed failure surfaced across the service boundary. The code
// is preserved verbatim to the HTTP error envelope.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetails attaches structured details to the error.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

func newError(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func errBookingNotFound(id string) *Error {
	return newError(http.StatusNotFound, CodeBookingNotFound, "booking not found: "+id)
}

func errBookingNotConfirmable(status string) *Error {
	return newError(http.StatusUnprocessableEntity, CodeBookingNotConfirmable,
		"booking cannot be confirmed from status "+status).
		WithDetails(map[string]interface{}{"status": status})
}

func errTenantContextRequired() *Error {
	return newError(http.StatusForbidden, CodeTenantContextRequired,
		"marketplace bookings require a tenant context")
}

func errMissingSupplierMapping() *Error {
	return newError(http.StatusUnprocessableEntity, CodeInvalidSupplierMapping,
		"booking has no supplier mapping").
		WithDetails(map[string]interface{}{"reason": "missing_supplier"})
}

func errUnsupportedCurrency(got, want string) *Error {
	return newError(http.StatusUnprocessableEntity, CodeUnsupportedCurrency,
		fmt.Sprintf("booking currency %s does not match settlement currency %s", got, want)).
		WithDetails(map[string]interface{}{"currency": got, "settlement_currency": want})
}

func errUnsupportedSource(source string) *Error {
	return newError(http.StatusUnprocessableEntity, CodeUnsupportedSource,
		"unsupported booking source: "+source)
}

func errCreditLimitExceeded() *Error {
	return newError(http.StatusConflict, CodeCreditLimitExceeded,
		"booking amount exceeds the organization's remaining credit")
}

func errRiskBlocked(reasons []string) *Error {
	return newError(http.StatusConflict, CodeRiskBlocked,
		"booking blocked by risk evaluation").
		WithDetails(map[string]interface{}{"reasons": reasons})
}

func errSupplierFailed() *Error {
	return newError(http.StatusInternalServerError, CodeSupplierFailed,
		"supplier returned an unknown confirmation status")
}

func errAgencyBindingRequired() *Error {
	return newError(http.StatusForbidden, CodeAgencyBindingRequired,
		"caller is not bound to the booking's agency")
}

func errInvalidCaseState(from, to string) *Error {
	return newError(http.StatusConflict, CodeInvalidCaseState,
		fmt.Sprintf("refund case cannot move from %s to %s", from, to)).
		WithDetails(map[string]interface{}{"from": from, "to": to})
}
