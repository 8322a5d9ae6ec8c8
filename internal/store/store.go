package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"booking-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// CreateBooking inserts a new booking draft
func (s *Store) CreateBooking(ctx context.Context, b *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, organization_id, agency_id, status, source, amount, currency,
			check_in, check_out, offer_supplier, offer_supplier_offer_id,
			buyer_tenant_id, seller_tenant_id, supplier_code, net_amount
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		RETURNING created_at, updated_at`

	return s.db.GetContext(ctx, b, query,
		b.ID, b.OrganizationID, b.AgencyID, b.Status, b.Source, b.Amount, b.Currency,
		b.CheckIn, b.CheckOut, b.OfferSupplier, b.OfferSupplierOfferID,
		b.BuyerTenantID, b.SellerTenantID, b.SupplierCode, b.NetAmount)
}

// GetBooking retrieves a booking scoped to its organization. Returns
// (nil, nil) when the booking does not exist in that organization.
func (s *Store) GetBooking(ctx context.Context, organizationID, id string) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.GetContext(ctx, &booking,
		"SELECT * FROM bookings WHERE id = $1 AND organization_id = $2", id, organizationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// TransitionBookingStatus performs a compare-and-swap status update. The
// update only applies when the current status is one of the expected prior
// statuses; returns false when the precondition fails, which means another
// request already moved the booking.
func (s *Store) TransitionBookingStatus(ctx context.Context, id string, from []string, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2 AND status = ANY($3)",
		to, id, pq.Array(from))
	if err != nil {
		return false, fmt.Errorf("failed to transition booking status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// SaveSupplierSnapshot persists the (already redacted) supplier confirmation
// outcome on the booking.
func (s *Store) SaveSupplierSnapshot(ctx context.Context, id string, snap models.SupplierSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bookings
		SET supplier_code = $1, supplier_booking_id = $2, supplier_raw_payload = $3,
		    offer_supplier = COALESCE(NULLIF(offer_supplier, ''), $1), updated_at = NOW()
		WHERE id = $4`,
		snap.Code, snap.BookingID, snap.RawPayload, id)
	return err
}

// SaveRiskSnapshot persists the last risk evaluation on the booking
func (s *Store) SaveRiskSnapshot(ctx context.Context, id string, risk models.RiskSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bookings
		SET risk_score = $1, risk_decision = $2, risk_reasons = $3, risk_model_version = $4, updated_at = NOW()
		WHERE id = $5`,
		risk.Score, risk.Decision, pq.Array(risk.Reasons), risk.ModelVersion, id)
	return err
}

// ApplyAmendment updates the booking's dates and amount with a stored
// amendment delta.
func (s *Store) ApplyAmendment(ctx context.Context, id string, checkIn, checkOut time.Time, amount int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bookings
		SET check_in = $1, check_out = $2, amount = $3, updated_at = NOW()
		WHERE id = $4`,
		checkIn, checkOut, amount, id)
	return err
}

// RefreshFinancialSnapshot recomputes the booking's net amount from its
// ledger postings.
func (s *Store) RefreshFinancialSnapshot(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bookings
		SET net_amount = COALESCE((SELECT SUM(amount) FROM ledger_postings WHERE booking_id = $1), 0),
		    updated_at = NOW()
		WHERE id = $1`,
		id)
	return err
}

// GetCreditProfile retrieves the active credit profile for an organization.
// Returns (nil, nil) when the organization has no profile (unrestricted).
func (s *Store) GetCreditProfile(ctx context.Context, organizationID string) (*models.CreditProfile, error) {
	var profile models.CreditProfile
	err := s.db.GetContext(ctx, &profile,
		"SELECT * FROM credit_profiles WHERE organization_id = $1 AND active = TRUE", organizationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListCreditOrganizations returns organizations with an active credit
// profile, for exposure cache seeding at startup.
func (s *Store) ListCreditOrganizations(ctx context.Context) ([]string, error) {
	var orgs []string
	err := s.db.SelectContext(ctx, &orgs,
		"SELECT organization_id FROM credit_profiles WHERE active = TRUE")
	if err != nil {
		return nil, err
	}
	return orgs, nil
}

// AddExposure adjusts the organization's committed exposure. Negative deltas
// release exposure on cancellation.
func (s *Store) AddExposure(ctx context.Context, organizationID string, delta int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE credit_profiles SET exposure = exposure + $1, updated_at = NOW() WHERE organization_id = $2 AND active = TRUE",
		delta, organizationID)
	return err
}
