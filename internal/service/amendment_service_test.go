package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"booking-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type amendEnv struct {
	bookings   *fakeBookings
	amendments *fakeAmendments
	ledger     *fakeLedger
	credit     *fakeCreditStore
	service    *AmendmentService
}

func newAmendEnv(profiles []*models.CreditProfile, bookings ...*models.Booking) *amendEnv {
	env := &amendEnv{
		bookings:   newFakeBookings(bookings...),
		amendments: newFakeAmendments(),
		ledger:     newFakeLedger(),
		credit:     newFakeCreditStore(profiles...),
	}
	recorder := NewRecorder(env.ledger, &fakePublisher{})
	// Three nights at 1,000 per night, no commission, keeps deltas easy to read.
	pricing := NewNightlyRatePricing(1_000, 0)
	env.service = NewAmendmentService(env.bookings, env.amendments, pricing,
		NewCreditGuard(env.credit, nil), recorder)
	return env
}

func quoteReq(bookingID, requestID string, nights int) ProposeQuoteRequest {
	checkIn := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	return ProposeQuoteRequest{
		OrganizationID: "org-1",
		BookingID:      bookingID,
		RequestID:      requestID,
		NewCheckIn:     checkIn,
		NewCheckOut:    checkIn.AddDate(0, 0, nights),
		Actor:          Actor{Type: "user"},
	}
}

func TestProposeQuoteComputesDelta(t *testing.T) {
	booking := confirmedBooking("b-1", 3_000, time.Now().AddDate(0, 1, 0))
	env := newAmendEnv(nil, booking)

	quote, err := env.service.ProposeQuote(context.Background(), quoteReq("b-1", "req-1", 5))

	require.NoError(t, err)
	assert.Equal(t, int64(5_000), quote.NewAmount)
	assert.Equal(t, int64(2_000), quote.DeltaAmount)
	assert.Equal(t, models.AmendmentStatusQuoted, quote.Status)

	// The quote phase mutates nothing.
	assert.Equal(t, int64(3_000), env.bookings.get("b-1").Amount)
	assert.Empty(t, env.ledger.postings)
}

func TestProposeQuoteIsIdempotentPerRequestID(t *testing.T) {
	booking := confirmedBooking("b-1", 3_000, time.Now().AddDate(0, 1, 0))
	env := newAmendEnv(nil, booking)
	ctx := context.Background()

	first, err := env.service.ProposeQuote(ctx, quoteReq("b-1", "req-1", 5))
	require.NoError(t, err)

	second, err := env.service.ProposeQuote(ctx, quoteReq("b-1", "req-1", 5))
	require.NoError(t, err)

	assert.Equal(t, first.AmendID, second.AmendID)
	assert.Equal(t, 1, env.ledger.auditCount(models.AuditAmendmentQuoted))
}

func TestProposeQuoteRequiresConfirmed(t *testing.T) {
	booking := confirmedBooking("b-1", 3_000, time.Now().AddDate(0, 1, 0))
	booking.Status = models.BookingStatusPending
	env := newAmendEnv(nil, booking)

	_, err := env.service.ProposeQuote(context.Background(), quoteReq("b-1", "req-1", 5))

	svcErr := serviceError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, svcErr.Status)
	assert.Equal(t, CodeBookingNotAmendable, svcErr.Code)
}

func TestConfirmAmendmentAppliesOnce(t *testing.T) {
	booking := confirmedBooking("b-1", 3_000, time.Now().AddDate(0, 1, 0))
	profile := &models.CreditProfile{OrganizationID: "org-1", CreditLimit: 100_000, Exposure: 3_000, Currency: "USD", Active: true}
	env := newAmendEnv([]*models.CreditProfile{profile}, booking)
	ctx := context.Background()

	quote, err := env.service.ProposeQuote(ctx, quoteReq("b-1", "req-1", 5))
	require.NoError(t, err)

	outcome, err := env.service.ConfirmAmendment(ctx, "org-1", quote.AmendID, Actor{Type: "user"})
	require.NoError(t, err)
	assert.Equal(t, models.AmendmentStatusApplied, outcome.Status)
	assert.Equal(t, int64(2_000), outcome.DeltaAmount)

	stored := env.bookings.get("b-1")
	assert.Equal(t, int64(5_000), stored.Amount)
	assert.Equal(t, quote.NewCheckIn, stored.CheckIn)
	assert.Equal(t, int64(5_000), env.credit.exposure("org-1"))

	deltas := 0
	for _, p := range env.ledger.postings {
		if p.EntryType == models.LedgerEntryAmendDelta {
			deltas++
			assert.Equal(t, quote.AmendID, p.Ref)
			assert.Equal(t, int64(2_000), p.Amount)
		}
	}
	assert.Equal(t, 1, deltas)

	// Replaying the apply returns the stored result without a second delta.
	replay, err := env.service.ConfirmAmendment(ctx, "org-1", quote.AmendID, Actor{Type: "user"})
	require.NoError(t, err)
	assert.Equal(t, outcome.DeltaAmount, replay.DeltaAmount)
	assert.Equal(t, int64(5_000), env.credit.exposure("org-1"))

	deltas = 0
	for _, p := range env.ledger.postings {
		if p.EntryType == models.LedgerEntryAmendDelta {
			deltas++
		}
	}
	assert.Equal(t, 1, deltas)
	assert.Equal(t, 1, env.ledger.eventCount(models.EventBookingAmended))
}

func TestConfirmAmendmentReleasesExposureOnNegativeDelta(t *testing.T) {
	booking := confirmedBooking("b-1", 5_000, time.Now().AddDate(0, 1, 0))
	profile := &models.CreditProfile{OrganizationID: "org-1", CreditLimit: 100_000, Exposure: 5_000, Currency: "USD", Active: true}
	env := newAmendEnv([]*models.CreditProfile{profile}, booking)
	ctx := context.Background()

	quote, err := env.service.ProposeQuote(ctx, quoteReq("b-1", "req-1", 2))
	require.NoError(t, err)
	require.Equal(t, int64(-3_000), quote.DeltaAmount)

	_, err = env.service.ConfirmAmendment(ctx, "org-1", quote.AmendID, Actor{Type: "user"})
	require.NoError(t, err)

	assert.Equal(t, int64(2_000), env.credit.exposure("org-1"))
	assert.Equal(t, int64(2_000), env.bookings.get("b-1").Amount)
}

func TestConfirmAmendmentNotFound(t *testing.T) {
	env := newAmendEnv(nil)

	_, err := env.service.ConfirmAmendment(context.Background(), "org-1", "missing", Actor{Type: "user"})

	svcErr := serviceError(t, err)
	assert.Equal(t, http.StatusNotFound, svcErr.Status)
	assert.Equal(t, CodeAmendmentNotFound, svcErr.Code)
}
