package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"booking-service/internal/idempotency"
	"booking-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIdemStore struct {
	records map[string]*models.IdempotencyRecord
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{records: make(map[string]*models.IdempotencyRecord)}
}

func (f *fakeIdemStore) CreateIdempotencyRecord(ctx context.Context, rec *models.IdempotencyRecord) (bool, error) {
	if existing, exists := f.records[rec.ScopeKey]; exists && existing.ExpiresAt.After(time.Now()) {
		return false, nil
	}
	copied := *rec
	f.records[rec.ScopeKey] = &copied
	return true, nil
}

func (f *fakeIdemStore) GetIdempotencyRecord(ctx context.Context, scopeKey string) (*models.IdempotencyRecord, error) {
	rec, ok := f.records[scopeKey]
	if !ok || !rec.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (f *fakeIdemStore) SaveIdempotencyResponse(ctx context.Context, scopeKey string, status int, body []byte) error {
	if rec, ok := f.records[scopeKey]; ok && rec.ResponseStatus == 0 {
		rec.ResponseStatus = status
		rec.ResponseBody = body
	}
	return nil
}

func (f *fakeIdemStore) DeleteIdempotencyRecord(ctx context.Context, scopeKey string) error {
	if rec, ok := f.records[scopeKey]; ok && rec.ResponseStatus == 0 {
		delete(f.records, scopeKey)
	}
	return nil
}

type bookingEnv struct {
	bookings *fakeBookings
	ledger   *fakeLedger
	service  *BookingService
}

func newBookingEnv() *bookingEnv {
	env := &bookingEnv{
		bookings: newFakeBookings(),
		ledger:   newFakeLedger(),
	}
	recorder := NewRecorder(env.ledger, &fakePublisher{})
	coordinator := idempotency.NewCoordinator(newFakeIdemStore(), 48*time.Hour)
	env.service = NewBookingService(env.bookings, NewNightlyRatePricing(1_000, 10), coordinator, recorder)
	return env
}

func createReq() *CreateBookingRequest {
	checkIn := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	return &CreateBookingRequest{
		OrganizationID:       "org-1",
		Source:               models.SourceQuote,
		Currency:             "USD",
		OfferSupplier:        "sandbox",
		OfferSupplierOfferID: "offer-1",
		CheckIn:              checkIn,
		CheckOut:             checkIn.AddDate(0, 0, 3),
	}
}

func TestCreateBookingPersistsPricedDraft(t *testing.T) {
	env := newBookingEnv()

	status, body, err := env.service.CreateBooking(context.Background(), createReq(), "key-1")

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)

	var resp CreateBookingResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, models.BookingStatusPending, resp.Status)
	// Three nights at 1,000 plus 10% commission.
	assert.Equal(t, int64(3_300), resp.Amount)
	require.NotNil(t, resp.Price)
	assert.Equal(t, int64(3_000), resp.Price.Base)
	assert.Equal(t, int64(300), resp.Price.Commission)

	stored := env.bookings.get(resp.BookingID)
	require.NotNil(t, stored)
	assert.Equal(t, int64(3_300), stored.Amount)
	assert.Equal(t, 1, env.ledger.eventCount(models.EventBookingCreated))
	assert.Equal(t, 1, env.ledger.auditCount(models.AuditBookingCreated))
}

func TestCreateBookingReplaysOnSameKey(t *testing.T) {
	env := newBookingEnv()
	ctx := context.Background()

	_, first, err := env.service.CreateBooking(ctx, createReq(), "key-1")
	require.NoError(t, err)

	_, second, err := env.service.CreateBooking(ctx, createReq(), "key-1")
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
	assert.Len(t, env.bookings.bookings, 1, "replay must not create a second booking")
	assert.Equal(t, 1, env.ledger.eventCount(models.EventBookingCreated))
}

func TestCreateBookingKeyReuseWithDifferentBodyConflicts(t *testing.T) {
	env := newBookingEnv()
	ctx := context.Background()

	_, _, err := env.service.CreateBooking(ctx, createReq(), "key-1")
	require.NoError(t, err)

	other := createReq()
	other.OfferSupplierOfferID = "offer-2"
	_, _, err = env.service.CreateBooking(ctx, other, "key-1")
	require.Error(t, err)

	var conflict *idempotency.ErrKeyConflict
	assert.True(t, errors.As(err, &conflict))
	assert.Len(t, env.bookings.bookings, 1)
}

func TestGetBookingReturnsTimeline(t *testing.T) {
	env := newBookingEnv()
	ctx := context.Background()

	_, body, err := env.service.CreateBooking(ctx, createReq(), "key-1")
	require.NoError(t, err)
	var resp CreateBookingResponse
	require.NoError(t, json.Unmarshal(body, &resp))

	booking, timeline, err := env.service.GetBooking(ctx, "org-1", resp.BookingID)
	require.NoError(t, err)
	assert.Equal(t, resp.BookingID, booking.ID)
	require.Len(t, timeline, 1)
	assert.Equal(t, models.EventBookingCreated, timeline[0].Event)
}

func TestGetBookingNotFound(t *testing.T) {
	env := newBookingEnv()

	_, _, err := env.service.GetBooking(context.Background(), "org-1", "missing")

	svcErr := serviceError(t, err)
	assert.Equal(t, http.StatusNotFound, svcErr.Status)
	assert.Equal(t, CodeBookingNotFound, svcErr.Code)
}
