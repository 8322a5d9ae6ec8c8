package store

import (
	"context"
	"database/sql"

	"booking-service/internal/models"
)

// CreateAmendmentQuote persists a priced amendment quote. Quotes are unique
// per (organization_id, booking_id, request_id); a duplicate insert is a
// no-op and the existing quote is returned so repeated proposals with the
// same request id yield the same quote.
func (s *Store) CreateAmendmentQuote(ctx context.Context, q *models.AmendmentQuote) (*models.AmendmentQuote, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO amendment_quotes (
			amend_id, organization_id, booking_id, request_id,
			new_check_in, new_check_out, new_amount, delta_amount, currency, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (organization_id, booking_id, request_id) DO NOTHING`,
		q.AmendID, q.OrganizationID, q.BookingID, q.RequestID,
		q.NewCheckIn, q.NewCheckOut, q.NewAmount, q.DeltaAmount, q.Currency, q.Status)
	if err != nil {
		return nil, err
	}

	var stored models.AmendmentQuote
	err = s.db.GetContext(ctx, &stored, `
		SELECT * FROM amendment_quotes
		WHERE organization_id = $1 AND booking_id = $2 AND request_id = $3`,
		q.OrganizationID, q.BookingID, q.RequestID)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetAmendmentQuote retrieves a quote by amend id. Returns (nil, nil) when
// the quote does not exist in that organization.
func (s *Store) GetAmendmentQuote(ctx context.Context, organizationID, amendID string) (*models.AmendmentQuote, error) {
	var quote models.AmendmentQuote
	err := s.db.GetContext(ctx, &quote,
		"SELECT * FROM amendment_quotes WHERE organization_id = $1 AND amend_id = $2",
		organizationID, amendID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

// MarkAmendmentApplied flips a quote to APPLIED and stores the applied
// response snapshot. The status guard makes the apply a compare-and-swap:
// returns false when another request already applied the quote.
func (s *Store) MarkAmendmentApplied(ctx context.Context, organizationID, amendID string, result []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE amendment_quotes
		SET status = $1, applied_result = $2, updated_at = NOW()
		WHERE organization_id = $3 AND amend_id = $4 AND status = $5`,
		models.AmendmentStatusApplied, result, organizationID, amendID, models.AmendmentStatusQuoted)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// GetRefundCase retrieves a refund case scoped to its organization. Returns
// (nil, nil) when absent.
func (s *Store) GetRefundCase(ctx context.Context, organizationID, id string) (*models.RefundCase, error) {
	var rc models.RefundCase
	err := s.db.GetContext(ctx, &rc,
		"SELECT * FROM refund_cases WHERE id = $1 AND organization_id = $2", id, organizationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

// CreateRefundCase inserts a new refund case in the open state
func (s *Store) CreateRefundCase(ctx context.Context, rc *models.RefundCase) error {
	query := `
		INSERT INTO refund_cases (id, organization_id, booking_id, state, amount, currency)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	return s.db.GetContext(ctx, rc, query,
		rc.ID, rc.OrganizationID, rc.BookingID, rc.State, rc.Amount, rc.Currency)
}

// TransitionRefundCase performs a compare-and-swap state update on a refund
// case; returns false when the case is no longer in the expected state.
func (s *Store) TransitionRefundCase(ctx context.Context, id, from, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE refund_cases SET state = $1, updated_at = NOW() WHERE id = $2 AND state = $3",
		to, id, from)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}
