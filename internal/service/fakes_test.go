package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booking-service/internal/models"
)

// In-memory fakes for the store interfaces. Each mirrors the conflict and CAS
// semantics of the SQL implementation so the flows exercise the same branches.

type fakeBookings struct {
	bookings map[string]*models.Booking
}

func newFakeBookings(bookings ...*models.Booking) *fakeBookings {
	f := &fakeBookings{bookings: make(map[string]*models.Booking)}
	for _, b := range bookings {
		copied := *b
		f.bookings[b.ID] = &copied
	}
	return f
}

func (f *fakeBookings) CreateBooking(ctx context.Context, b *models.Booking) error {
	if _, exists := f.bookings[b.ID]; exists {
		return errors.New("duplicate booking id")
	}
	copied := *b
	f.bookings[b.ID] = &copied
	return nil
}

func (f *fakeBookings) GetBooking(ctx context.Context, organizationID, id string) (*models.Booking, error) {
	b, ok := f.bookings[id]
	if !ok || b.OrganizationID != organizationID {
		return nil, nil
	}
	copied := *b
	return &copied, nil
}

func (f *fakeBookings) TransitionBookingStatus(ctx context.Context, id string, from []string, to string) (bool, error) {
	b, ok := f.bookings[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if b.Status == s {
			b.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBookings) SaveSupplierSnapshot(ctx context.Context, id string, snap models.SupplierSnapshot) error {
	b, ok := f.bookings[id]
	if !ok {
		return errors.New("booking not found")
	}
	b.SupplierCode = snap.Code
	b.SupplierBookingID = snap.BookingID
	b.SupplierRawPayload = snap.RawPayload
	if b.OfferSupplier == "" {
		b.OfferSupplier = snap.Code
	}
	return nil
}

func (f *fakeBookings) SaveRiskSnapshot(ctx context.Context, id string, risk models.RiskSnapshot) error {
	b, ok := f.bookings[id]
	if !ok {
		return errors.New("booking not found")
	}
	b.RiskScore = risk.Score
	b.RiskDecision = risk.Decision
	b.RiskReasons = risk.Reasons
	b.RiskModelVersion = risk.ModelVersion
	return nil
}

func (f *fakeBookings) ApplyAmendment(ctx context.Context, id string, checkIn, checkOut time.Time, amount int64) error {
	b, ok := f.bookings[id]
	if !ok {
		return errors.New("booking not found")
	}
	b.CheckIn = checkIn
	b.CheckOut = checkOut
	b.Amount = amount
	return nil
}

func (f *fakeBookings) RefreshFinancialSnapshot(ctx context.Context, id string) error {
	return nil
}

func (f *fakeBookings) get(id string) *models.Booking {
	return f.bookings[id]
}

type fakeLedger struct {
	postings    []models.LedgerPosting
	postingKeys map[string]struct{}
	events      []models.LifecycleEvent
	eventKeys   map[string]struct{}
	audits      []models.AuditLogEntry
	postingErr  error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		postingKeys: make(map[string]struct{}),
		eventKeys:   make(map[string]struct{}),
	}
}

func (f *fakeLedger) InsertLedgerPosting(ctx context.Context, p *models.LedgerPosting) (bool, error) {
	if f.postingErr != nil {
		err := f.postingErr
		f.postingErr = nil
		return false, err
	}
	key := fmt.Sprintf("%s|%s|%s", p.BookingID, p.EntryType, p.Ref)
	if _, exists := f.postingKeys[key]; exists {
		return false, nil
	}
	f.postingKeys[key] = struct{}{}
	f.postings = append(f.postings, *p)
	return true, nil
}

func (f *fakeLedger) GetLedgerPostings(ctx context.Context, bookingID string) ([]models.LedgerPosting, error) {
	var out []models.LedgerPosting
	for _, p := range f.postings {
		if p.BookingID == bookingID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeLedger) AppendLifecycleEvent(ctx context.Context, ev *models.LifecycleEvent) (bool, error) {
	key := fmt.Sprintf("%s|%s|%s|%s", ev.OrganizationID, ev.BookingID, ev.Event, ev.RequestID)
	if _, exists := f.eventKeys[key]; exists {
		return false, nil
	}
	f.eventKeys[key] = struct{}{}
	f.events = append(f.events, *ev)
	return true, nil
}

func (f *fakeLedger) ListLifecycleEvents(ctx context.Context, organizationID, bookingID string) ([]models.LifecycleEvent, error) {
	var out []models.LifecycleEvent
	for _, ev := range f.events {
		if ev.OrganizationID == organizationID && ev.BookingID == bookingID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeLedger) AppendAuditEntry(ctx context.Context, e *models.AuditLogEntry) error {
	f.audits = append(f.audits, *e)
	return nil
}

func (f *fakeLedger) HasAuditEntry(ctx context.Context, organizationID, action, targetID string) (bool, error) {
	for _, a := range f.audits {
		if a.OrganizationID == organizationID && a.Action == action && a.TargetID == targetID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) auditCount(action string) int {
	n := 0
	for _, a := range f.audits {
		if a.Action == action {
			n++
		}
	}
	return n
}

func (f *fakeLedger) eventCount(event string) int {
	n := 0
	for _, ev := range f.events {
		if ev.Event == event {
			n++
		}
	}
	return n
}

func (f *fakeLedger) balance(bookingID string) int64 {
	var sum int64
	for _, p := range f.postings {
		if p.BookingID == bookingID {
			sum += p.Amount
		}
	}
	return sum
}

type fakeCreditStore struct {
	profiles map[string]*models.CreditProfile
}

func newFakeCreditStore(profiles ...*models.CreditProfile) *fakeCreditStore {
	f := &fakeCreditStore{profiles: make(map[string]*models.CreditProfile)}
	for _, p := range profiles {
		copied := *p
		f.profiles[p.OrganizationID] = &copied
	}
	return f
}

func (f *fakeCreditStore) GetCreditProfile(ctx context.Context, organizationID string) (*models.CreditProfile, error) {
	p, ok := f.profiles[organizationID]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (f *fakeCreditStore) AddExposure(ctx context.Context, organizationID string, delta int64) error {
	if p, ok := f.profiles[organizationID]; ok {
		p.Exposure += delta
	}
	return nil
}

func (f *fakeCreditStore) exposure(organizationID string) int64 {
	if p, ok := f.profiles[organizationID]; ok {
		return p.Exposure
	}
	return 0
}

type fakeAmendments struct {
	quotes map[string]*models.AmendmentQuote
}

func newFakeAmendments() *fakeAmendments {
	return &fakeAmendments{quotes: make(map[string]*models.AmendmentQuote)}
}

func (f *fakeAmendments) CreateAmendmentQuote(ctx context.Context, q *models.AmendmentQuote) (*models.AmendmentQuote, error) {
	for _, existing := range f.quotes {
		if existing.OrganizationID == q.OrganizationID &&
			existing.BookingID == q.BookingID &&
			existing.RequestID == q.RequestID {
			copied := *existing
			return &copied, nil
		}
	}
	copied := *q
	f.quotes[q.AmendID] = &copied
	result := copied
	return &result, nil
}

func (f *fakeAmendments) GetAmendmentQuote(ctx context.Context, organizationID, amendID string) (*models.AmendmentQuote, error) {
	q, ok := f.quotes[amendID]
	if !ok || q.OrganizationID != organizationID {
		return nil, nil
	}
	copied := *q
	return &copied, nil
}

func (f *fakeAmendments) MarkAmendmentApplied(ctx context.Context, organizationID, amendID string, result []byte) (bool, error) {
	q, ok := f.quotes[amendID]
	if !ok || q.OrganizationID != organizationID || q.Status != models.AmendmentStatusQuoted {
		return false, nil
	}
	q.Status = models.AmendmentStatusApplied
	q.AppliedResult = result
	return true, nil
}

type fakeRefunds struct {
	cases map[string]*models.RefundCase
}

func newFakeRefunds() *fakeRefunds {
	return &fakeRefunds{cases: make(map[string]*models.RefundCase)}
}

func (f *fakeRefunds) GetRefundCase(ctx context.Context, organizationID, id string) (*models.RefundCase, error) {
	rc, ok := f.cases[id]
	if !ok || rc.OrganizationID != organizationID {
		return nil, nil
	}
	copied := *rc
	return &copied, nil
}

func (f *fakeRefunds) CreateRefundCase(ctx context.Context, rc *models.RefundCase) error {
	copied := *rc
	f.cases[rc.ID] = &copied
	return nil
}

func (f *fakeRefunds) TransitionRefundCase(ctx context.Context, id, from, to string) (bool, error) {
	rc, ok := f.cases[id]
	if !ok || rc.State != from {
		return false, nil
	}
	rc.State = to
	return true, nil
}

type publishedEvent struct {
	key   string
	event interface{}
}

type fakePublisher struct {
	events  []publishedEvent
	failErr error
}

func (f *fakePublisher) Publish(ctx context.Context, key string, event interface{}) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.events = append(f.events, publishedEvent{key: key, event: event})
	return nil
}

type fakeProcessed struct {
	seen map[string]bool
}

func newFakeProcessed() *fakeProcessed {
	return &fakeProcessed{seen: make(map[string]bool)}
}

func (f *fakeProcessed) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	return f.seen[eventID], nil
}

func (f *fakeProcessed) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	f.seen[eventID] = true
	return nil
}

// stubRisk returns a fixed assessment regardless of the booking.
type stubRisk struct {
	assessment *RiskAssessment
}

func (s *stubRisk) Evaluate(ctx context.Context, organizationID string, booking *models.Booking) (*RiskAssessment, error) {
	return s.assessment, nil
}

type fakeCache struct {
	values map[string]int64
	getErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]int64)}
}

func (f *fakeCache) GetExposure(ctx context.Context, organizationID string) (int64, bool, error) {
	if f.getErr != nil {
		return 0, false, f.getErr
	}
	v, ok := f.values[organizationID]
	return v, ok, nil
}

func (f *fakeCache) AdjustExposure(ctx context.Context, organizationID string, delta int64) error {
	if _, ok := f.values[organizationID]; ok {
		f.values[organizationID] += delta
	}
	return nil
}

func (f *fakeCache) InitExposure(ctx context.Context, organizationID string, exposure int64) error {
	f.values[organizationID] = exposure
	return nil
}
