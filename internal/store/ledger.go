package store

import (
	"context"

	"booking-service/internal/models"
)

// InsertLedgerPosting appends an immutable financial entry. Postings are
// unique per (booking_id, entry_type, ref); a duplicate insert is a no-op and
// returns false, which is how replayed confirm/cancel/amend calls avoid a
// second posting.
func (s *Store) InsertLedgerPosting(ctx context.Context, p *models.LedgerPosting) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_postings (id, organization_id, booking_id, entry_type, ref, amount, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (booking_id, entry_type, ref) DO NOTHING`,
		p.ID, p.OrganizationID, p.BookingID, p.EntryType, p.Ref, p.Amount, p.Currency)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// GetLedgerPostings retrieves all postings for a booking in posting order
func (s *Store) GetLedgerPostings(ctx context.Context, bookingID string) ([]models.LedgerPosting, error) {
	var postings []models.LedgerPosting
	err := s.db.SelectContext(ctx, &postings,
		"SELECT * FROM ledger_postings WHERE booking_id = $1 ORDER BY created_at", bookingID)
	return postings, err
}

// AppendLifecycleEvent appends a booking timeline entry. Events are unique
// per (organization_id, booking_id, event, request_id); re-appending the same
// event is a no-op and returns false, giving the idempotent-replay path its
// exactly-once back-fill.
func (s *Store) AppendLifecycleEvent(ctx context.Context, ev *models.LifecycleEvent) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO lifecycle_events (organization_id, booking_id, event, request_id, occurred_at, before, after, meta)
		VALUES ($1, $2, $3, $4, NOW(), $5, $6, $7)
		ON CONFLICT (organization_id, booking_id, event, request_id) DO NOTHING`,
		ev.OrganizationID, ev.BookingID, ev.Event, ev.RequestID, ev.Before, ev.After, ev.Meta)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ListLifecycleEvents retrieves the ordered timeline for a booking
func (s *Store) ListLifecycleEvents(ctx context.Context, organizationID, bookingID string) ([]models.LifecycleEvent, error) {
	var events []models.LifecycleEvent
	err := s.db.SelectContext(ctx, &events,
		"SELECT * FROM lifecycle_events WHERE organization_id = $1 AND booking_id = $2 ORDER BY occurred_at, id",
		organizationID, bookingID)
	return events, err
}

// AppendAuditEntry appends an organization-scoped audit record
func (s *Store) AppendAuditEntry(ctx context.Context, e *models.AuditLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (organization_id, action, target_type, target_id, actor_type, actor_email, actor_roles, before, after, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.OrganizationID, e.Action, e.TargetType, e.TargetID,
		e.ActorType, e.ActorEmail, e.ActorRoles, e.Before, e.After, e.Meta)
	return err
}

// HasAuditEntry checks whether an action has already been audited for a
// target. Used by the confirm replay path to back-fill at most once.
func (s *Store) HasAuditEntry(ctx context.Context, organizationID, action, targetID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM audit_log WHERE organization_id = $1 AND action = $2 AND target_id = $3)",
		organizationID, action, targetID)
	return exists, err
}

// IsEventProcessed checks if a consumed event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks a consumed event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
