package store

import (
	"context"
	"database/sql"

	"booking-service/internal/models"
)

// CreateIdempotencyRecord claims a scope key. Returns (false, nil) when a
// live claim already exists; the caller should read the existing record and
// take the replay path. An expired record is not a live claim: the insert
// reclaims it in place, resetting the stored response, so an abandoned claim
// only blocks its key until the record TTL. Concurrent first-calls race on
// the primary key and the loser lands here with created=false.
func (s *Store) CreateIdempotencyRecord(ctx context.Context, rec *models.IdempotencyRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_records (scope_key, organization_id, agency_id, endpoint, fingerprint, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (scope_key) DO UPDATE
		SET organization_id = EXCLUDED.organization_id,
		    agency_id = EXCLUDED.agency_id,
		    endpoint = EXCLUDED.endpoint,
		    fingerprint = EXCLUDED.fingerprint,
		    expires_at = EXCLUDED.expires_at,
		    response_status = 0,
		    response_body = NULL
		WHERE idempotency_records.expires_at <= NOW()`,
		rec.ScopeKey, rec.OrganizationID, rec.AgencyID, rec.Endpoint, rec.Fingerprint, rec.ExpiresAt)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// GetIdempotencyRecord retrieves a live record by scope key. Returns
// (nil, nil) when the key has never been seen or the record has expired.
func (s *Store) GetIdempotencyRecord(ctx context.Context, scopeKey string) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	err := s.db.GetContext(ctx, &rec,
		"SELECT * FROM idempotency_records WHERE scope_key = $1 AND expires_at > NOW()", scopeKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveIdempotencyResponse stores the computed response on a claimed record.
// Write-once: it only fills a record that has no response yet.
func (s *Store) SaveIdempotencyResponse(ctx context.Context, scopeKey string, status int, body []byte) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_records
		SET response_status = $1, response_body = $2
		WHERE scope_key = $3 AND response_status = 0`,
		status, body, scopeKey)
	return err
}

// DeleteIdempotencyRecord removes a claimed record whose computation failed,
// so the next call with the same key is treated as a first call.
func (s *Store) DeleteIdempotencyRecord(ctx context.Context, scopeKey string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM idempotency_records WHERE scope_key = $1 AND response_status = 0", scopeKey)
	return err
}
