package service

import (
	"context"
	"encoding/json"

	"booking-service/internal/models"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// Recorder appends lifecycle events and audit entries for every
// state-changing action and forwards funnel events to the broker. Audit and
// lifecycle writes are structural: their failure fails the operation. Funnel
// publishing is telemetry and is swallowed after logging.
type Recorder struct {
	ledger    LedgerStore
	publisher EventPublisher
	logger    *zap.Logger
}

// NewRecorder creates a recorder. The publisher may be nil in tests.
func NewRecorder(ledger LedgerStore, publisher EventPublisher) *Recorder {
	return &Recorder{
		ledger:    ledger,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// RecordLifecycle appends a timeline event. Duplicate (org, booking, event,
// request id) tuples are skipped at the storage layer; returns whether a new
// event was written.
func (r *Recorder) RecordLifecycle(ctx context.Context, ev *models.LifecycleEvent) (bool, error) {
	return r.ledger.AppendLifecycleEvent(ctx, ev)
}

// RecordAudit appends a compliance record.
func (r *Recorder) RecordAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	return r.ledger.AppendAuditEntry(ctx, entry)
}

// HasAudit checks whether an action was already audited for a target.
func (r *Recorder) HasAudit(ctx context.Context, organizationID, action, targetID string) (bool, error) {
	return r.ledger.HasAuditEntry(ctx, organizationID, action, targetID)
}

// RecordPosting appends an immutable ledger posting; duplicates dedupe at the
// storage layer and return false.
func (r *Recorder) RecordPosting(ctx context.Context, p *models.LedgerPosting) (bool, error) {
	return r.ledger.InsertLedgerPosting(ctx, p)
}

// Postings returns the posting history for a booking.
func (r *Recorder) Postings(ctx context.Context, bookingID string) ([]models.LedgerPosting, error) {
	return r.ledger.GetLedgerPostings(ctx, bookingID)
}

// Timeline returns the ordered lifecycle events for a booking.
func (r *Recorder) Timeline(ctx context.Context, organizationID, bookingID string) ([]models.LifecycleEvent, error) {
	return r.ledger.ListLifecycleEvents(ctx, organizationID, bookingID)
}

// Publish forwards a funnel event, best-effort.
func (r *Recorder) Publish(ctx context.Context, key string, event interface{}) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, key, event); err != nil {
		r.logger.Error("Failed to publish funnel event",
			zap.String("key", key),
			zap.Error(err))
	}
}

// auditEntry builds an audit record with JSON-encoded snapshots. Encoding
// failures are logged and the snapshot dropped rather than failing the write.
func (r *Recorder) auditEntry(organizationID, action, targetType, targetID string, actor Actor, before, after, meta interface{}) *models.AuditLogEntry {
	entry := &models.AuditLogEntry{
		OrganizationID: organizationID,
		Action:         action,
		TargetType:     targetType,
		TargetID:       targetID,
		ActorType:      actor.Type,
		ActorEmail:     actor.Email,
		ActorRoles:     actor.Roles,
	}
	entry.Before = r.marshal(action, "before", before)
	entry.After = r.marshal(action, "after", after)
	entry.Meta = r.marshal(action, "meta", meta)
	return entry
}

func (r *Recorder) marshal(action, field string, v interface{}) []byte {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("Failed to encode audit snapshot",
			zap.String("action", action),
			zap.String("field", field),
			zap.Error(err))
		return nil
	}
	return data
}
