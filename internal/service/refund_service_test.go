package service

import (
	"context"
	"net/http"
	"testing"

	"booking-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRefundEnv() (*RefundCaseService, *fakeLedger) {
	ledger := newFakeLedger()
	recorder := NewRecorder(ledger, &fakePublisher{})
	return NewRefundCaseService(newFakeRefunds(), recorder), ledger
}

func TestRefundCaseLegalPathToPaid(t *testing.T) {
	svc, ledger := newRefundEnv()
	ctx := context.Background()
	actor := Actor{Type: "user", Email: "ops@example.com"}

	rc, err := svc.Open(ctx, "org-1", "b-1", 10_000, "USD", actor)
	require.NoError(t, err)
	assert.Equal(t, models.RefundCaseOpen, rc.State)

	path := []string{
		models.RefundCasePendingApproval1,
		models.RefundCasePendingApproval2,
		models.RefundCaseApproved,
		models.RefundCasePaid,
		models.RefundCaseClosed,
	}
	for _, next := range path {
		rc, err = svc.Transition(ctx, "org-1", rc.ID, next, actor)
		require.NoError(t, err, "transition to %s", next)
		assert.Equal(t, next, rc.State)
	}

	// Open plus five transitions.
	assert.Equal(t, 6, ledger.auditCount(models.AuditRefundCaseTransition))
}

func TestRefundCaseRejectionPath(t *testing.T) {
	svc, _ := newRefundEnv()
	ctx := context.Background()
	actor := Actor{Type: "user"}

	rc, err := svc.Open(ctx, "org-1", "b-1", 10_000, "USD", actor)
	require.NoError(t, err)

	rc, err = svc.Transition(ctx, "org-1", rc.ID, models.RefundCaseRejected, actor)
	require.NoError(t, err)

	rc, err = svc.Transition(ctx, "org-1", rc.ID, models.RefundCaseClosed, actor)
	require.NoError(t, err)
	assert.Equal(t, models.RefundCaseClosed, rc.State)
}

func TestRefundCaseIllegalTransition(t *testing.T) {
	svc, _ := newRefundEnv()
	ctx := context.Background()
	actor := Actor{Type: "user"}

	rc, err := svc.Open(ctx, "org-1", "b-1", 10_000, "USD", actor)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, "org-1", rc.ID, models.RefundCaseApproved, actor)

	svcErr := serviceError(t, err)
	assert.Equal(t, http.StatusConflict, svcErr.Status)
	assert.Equal(t, CodeInvalidCaseState, svcErr.Code)
	assert.Equal(t, models.RefundCaseOpen, svcErr.Details["from"])
	assert.Equal(t, models.RefundCaseApproved, svcErr.Details["to"])
}

func TestRefundCaseSameStateIsIdempotent(t *testing.T) {
	svc, ledger := newRefundEnv()
	ctx := context.Background()
	actor := Actor{Type: "user"}

	rc, err := svc.Open(ctx, "org-1", "b-1", 10_000, "USD", actor)
	require.NoError(t, err)

	rc, err = svc.Transition(ctx, "org-1", rc.ID, models.RefundCasePendingApproval1, actor)
	require.NoError(t, err)
	audits := ledger.auditCount(models.AuditRefundCaseTransition)

	// Repeating the completed transition changes nothing and audits nothing.
	rc, err = svc.Transition(ctx, "org-1", rc.ID, models.RefundCasePendingApproval1, actor)
	require.NoError(t, err)
	assert.Equal(t, models.RefundCasePendingApproval1, rc.State)
	assert.Equal(t, audits, ledger.auditCount(models.AuditRefundCaseTransition))
}

func TestRefundCaseNotFound(t *testing.T) {
	svc, _ := newRefundEnv()

	_, err := svc.Transition(context.Background(), "org-1", "missing",
		models.RefundCasePendingApproval1, Actor{Type: "user"})

	svcErr := serviceError(t, err)
	assert.Equal(t, http.StatusNotFound, svcErr.Status)
	assert.Equal(t, CodeCaseNotFound, svcErr.Code)
}
