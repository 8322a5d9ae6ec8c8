package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// Store is the persistence the coordinator needs. *store.Store satisfies it.
type Store interface {
	CreateIdempotencyRecord(ctx context.Context, rec *models.IdempotencyRecord) (bool, error)
	GetIdempotencyRecord(ctx context.Context, scopeKey string) (*models.IdempotencyRecord, error)
	SaveIdempotencyResponse(ctx context.Context, scopeKey string, status int, body []byte) error
	DeleteIdempotencyRecord(ctx context.Context, scopeKey string) error
}

// Scope identifies one logical request for deduplication purposes.
type Scope struct {
	OrganizationID string
	AgencyID       string
	Endpoint       string
	Method         string
	Path           string
	Key            string
}

// ScopeKey flattens the scope into the stored key.
func (s Scope) ScopeKey() string {
	return strings.Join([]string{s.OrganizationID, s.AgencyID, s.Endpoint, s.Method, s.Path, s.Key}, "|")
}

// ComputeFunc produces the response for a first-seen request. It must be
// side-effect-complete only when it returns without error.
type ComputeFunc func(ctx context.Context) (int, []byte, error)

// ErrKeyConflict is returned when a key is reused with a different request
// body. Maps to 409 IDEMPOTENCY_KEY_CONFLICT.
type ErrKeyConflict struct {
	ScopeKey string
}

func (e *ErrKeyConflict) Error() string {
	return fmt.Sprintf("idempotency key reused with a different payload: %s", e.ScopeKey)
}

// ErrInProgress is returned when a replay arrives while the first call is
// still computing (claimed record without a stored response).
type ErrInProgress struct {
	ScopeKey string
}

func (e *ErrInProgress) Error() string {
	return fmt.Sprintf("request with this idempotency key is still in progress: %s", e.ScopeKey)
}

// Coordinator deduplicates retried client requests per scope key.
type Coordinator struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewCoordinator creates a coordinator with the given record TTL.
func NewCoordinator(store Store, ttl time.Duration) *Coordinator {
	return &Coordinator{
		store:  store,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// Fingerprint hashes a request body for reuse detection.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// StoreOrReplay runs fn on the first sight of a scope key and persists its
// response. Replays with the same fingerprint return the stored response
// without re-running fn; replays with a different fingerprint fail with
// ErrKeyConflict. A claim race loser falls back to the replay path instead of
// erroring. If fn fails, the claim is removed and the next call is a first
// call again.
func (c *Coordinator) StoreOrReplay(ctx context.Context, scope Scope, fingerprint string, fn ComputeFunc) (int, []byte, error) {
	scopeKey := scope.ScopeKey()

	rec := &models.IdempotencyRecord{
		ScopeKey:       scopeKey,
		OrganizationID: scope.OrganizationID,
		AgencyID:       scope.AgencyID,
		Endpoint:       scope.Endpoint,
		Fingerprint:    fingerprint,
		ExpiresAt:      time.Now().Add(c.ttl),
	}

	created, err := c.store.CreateIdempotencyRecord(ctx, rec)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to claim idempotency key: %w", err)
	}

	if !created {
		return c.replay(ctx, scope, scopeKey, fingerprint)
	}

	status, body, err := fn(ctx)
	if err != nil {
		// Nothing was persisted for this key; remove the claim so a retry is
		// treated as a first call.
		if delErr := c.store.DeleteIdempotencyRecord(ctx, scopeKey); delErr != nil {
			c.logger.Error("Failed to release idempotency claim",
				zap.String("scope_key", scopeKey),
				zap.Error(delErr))
		}
		return 0, nil, err
	}

	if err := c.store.SaveIdempotencyResponse(ctx, scopeKey, status, body); err != nil {
		return 0, nil, fmt.Errorf("failed to store idempotent response: %w", err)
	}

	return status, body, nil
}

func (c *Coordinator) replay(ctx context.Context, scope Scope, scopeKey, fingerprint string) (int, []byte, error) {
	stored, err := c.store.GetIdempotencyRecord(ctx, scopeKey)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read idempotency record: %w", err)
	}
	if stored == nil {
		// The winning claim failed and was removed between our insert attempt
		// and this read.
		return 0, nil, &ErrInProgress{ScopeKey: scopeKey}
	}

	if stored.Fingerprint != fingerprint {
		return 0, nil, &ErrKeyConflict{ScopeKey: scopeKey}
	}

	if stored.ResponseStatus == 0 {
		return 0, nil, &ErrInProgress{ScopeKey: scopeKey}
	}

	c.logger.Info("Replaying stored idempotent response",
		zap.String("endpoint", scope.Endpoint),
		zap.String("scope_key", scopeKey))
	util.IdempotentReplaysTotal.WithLabelValues(scope.Endpoint).Inc()

	return stored.ResponseStatus, stored.ResponseBody, nil
}
