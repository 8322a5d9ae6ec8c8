package service

import (
	"context"
	"errors"
	"testing"

	"booking-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usdProfile(limit, exposure int64) *models.CreditProfile {
	return &models.CreditProfile{
		OrganizationID: "org-1",
		CreditLimit:    limit,
		Exposure:       exposure,
		Currency:       "USD",
		Active:         true,
	}
}

func TestAuthorizeWithoutProfileIsUnrestricted(t *testing.T) {
	guard := NewCreditGuard(newFakeCreditStore(), nil)

	assert.NoError(t, guard.Authorize(context.Background(), "org-1", 1_000_000_000, "USD"))
}

func TestAuthorizeAgainstLimit(t *testing.T) {
	guard := NewCreditGuard(newFakeCreditStore(usdProfile(50_000, 10_000)), nil)
	ctx := context.Background()

	assert.NoError(t, guard.Authorize(ctx, "org-1", 40_000, "USD"))

	err := guard.Authorize(ctx, "org-1", 40_001, "USD")
	svcErr := serviceError(t, err)
	assert.Equal(t, CodeCreditLimitExceeded, svcErr.Code)
}

func TestAuthorizeCurrencyMismatch(t *testing.T) {
	guard := NewCreditGuard(newFakeCreditStore(usdProfile(50_000, 0)), nil)

	err := guard.Authorize(context.Background(), "org-1", 1_000, "EUR")

	svcErr := serviceError(t, err)
	assert.Equal(t, CodeUnsupportedCurrency, svcErr.Code)
	assert.Equal(t, "EUR", svcErr.Details["currency"])
}

func TestAuthorizePrefersCachedExposure(t *testing.T) {
	cache := newFakeCache()
	require.NoError(t, cache.InitExposure(context.Background(), "org-1", 45_000))

	// Database says 10,000 but the cache is fresher.
	guard := NewCreditGuard(newFakeCreditStore(usdProfile(50_000, 10_000)), cache)

	err := guard.Authorize(context.Background(), "org-1", 10_000, "USD")
	svcErr := serviceError(t, err)
	assert.Equal(t, CodeCreditLimitExceeded, svcErr.Code)
}

func TestAuthorizeFallsBackWhenCacheErrors(t *testing.T) {
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	guard := NewCreditGuard(newFakeCreditStore(usdProfile(50_000, 10_000)), cache)

	assert.NoError(t, guard.Authorize(context.Background(), "org-1", 40_000, "USD"))
}

func TestReserveAndReleaseExposure(t *testing.T) {
	store := newFakeCreditStore(usdProfile(50_000, 0))
	cache := newFakeCache()
	ctx := context.Background()
	require.NoError(t, cache.InitExposure(ctx, "org-1", 0))

	guard := NewCreditGuard(store, cache)

	require.NoError(t, guard.ReserveExposure(ctx, "org-1", 10_000))
	assert.Equal(t, int64(10_000), store.exposure("org-1"))
	assert.Equal(t, int64(10_000), cache.values["org-1"])

	require.NoError(t, guard.ReleaseExposure(ctx, "org-1", 10_000))
	assert.Equal(t, int64(0), store.exposure("org-1"))
	assert.Equal(t, int64(0), cache.values["org-1"])
}

func TestSeedExposureCache(t *testing.T) {
	cache := newFakeCache()
	guard := NewCreditGuard(newFakeCreditStore(usdProfile(50_000, 7_500)), cache)

	require.NoError(t, guard.SeedExposureCache(context.Background(), "org-1"))
	assert.Equal(t, int64(7_500), cache.values["org-1"])

	// Unknown organizations seed nothing and do not error.
	require.NoError(t, guard.SeedExposureCache(context.Background(), "org-2"))
	_, ok := cache.values["org-2"]
	assert.False(t, ok)
}

func TestHasAvailableCredit(t *testing.T) {
	guard := NewCreditGuard(newFakeCreditStore(usdProfile(50_000, 10_000)), nil)
	ctx := context.Background()

	ok, err := guard.HasAvailableCredit(ctx, "org-1", 40_000)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.HasAvailableCredit(ctx, "org-1", 40_001)
	require.NoError(t, err)
	assert.False(t, ok)
}
