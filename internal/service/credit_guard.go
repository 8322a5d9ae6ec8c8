package service

import (
	"context"

	"booking-service/internal/util"

	"go.uber.org/zap"
)

// ExposureCache is the redis fast path for exposure lookups. Implemented by
// redisclient.Client.
type ExposureCache interface {
	GetExposure(ctx context.Context, organizationID string) (int64, bool, error)
	AdjustExposure(ctx context.Context, organizationID string, delta int64) error
	InitExposure(ctx context.Context, organizationID string, exposure int64) error
}

// CreditGuard decides whether a proposed charge fits within an organization's
// remaining credit. The database is the source of truth; redis mirrors the
// exposure for cheap reads and falls back to the database when cold or
// unavailable.
type CreditGuard struct {
	store  CreditStore
	cache  ExposureCache
	logger *zap.Logger
}

// NewCreditGuard creates a credit guard. The cache may be nil; all reads then
// go to the database.
func NewCreditGuard(store CreditStore, cache ExposureCache) *CreditGuard {
	return &CreditGuard{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// Authorize checks the proposed charge against the organization's active
// credit profile. Organizations without a profile are unrestricted. A
// currency mismatch with the settlement currency is an input error, not a
// credit failure.
func (g *CreditGuard) Authorize(ctx context.Context, organizationID string, amount int64, currency string) error {
	profile, err := g.store.GetCreditProfile(ctx, organizationID)
	if err != nil {
		return err
	}
	if profile == nil {
		return nil
	}

	if currency != "" && profile.Currency != "" && currency != profile.Currency {
		return errUnsupportedCurrency(currency, profile.Currency)
	}

	exposure := profile.Exposure
	if g.cache != nil {
		if cached, ok, err := g.cache.GetExposure(ctx, organizationID); err != nil {
			g.logger.Warn("Exposure cache read failed, using database value",
				zap.String("organization_id", organizationID),
				zap.Error(err))
		} else if ok {
			exposure = cached
		}
	}

	if amount > profile.CreditLimit-exposure {
		return errCreditLimitExceeded()
	}
	return nil
}

// HasAvailableCredit reports whether the amount fits within remaining credit.
func (g *CreditGuard) HasAvailableCredit(ctx context.Context, organizationID string, amount int64) (bool, error) {
	err := g.Authorize(ctx, organizationID, amount, "")
	if err == nil {
		return true, nil
	}
	if serviceErr, ok := err.(*Error); ok && serviceErr.Code == CodeCreditLimitExceeded {
		return false, nil
	}
	return false, err
}

// ReserveExposure commits exposure once a booking is confirmed. The database
// write is synchronous; the cache adjustment is best-effort.
func (g *CreditGuard) ReserveExposure(ctx context.Context, organizationID string, amount int64) error {
	if err := g.store.AddExposure(ctx, organizationID, amount); err != nil {
		return err
	}
	g.adjustCache(ctx, organizationID, amount)
	return nil
}

// ReleaseExposure returns exposure on cancellation.
func (g *CreditGuard) ReleaseExposure(ctx context.Context, organizationID string, amount int64) error {
	if err := g.store.AddExposure(ctx, organizationID, -amount); err != nil {
		return err
	}
	g.adjustCache(ctx, organizationID, -amount)
	return nil
}

func (g *CreditGuard) adjustCache(ctx context.Context, organizationID string, delta int64) {
	if g.cache == nil {
		return
	}
	if err := g.cache.AdjustExposure(ctx, organizationID, delta); err != nil {
		g.logger.Warn("Failed to adjust exposure cache",
			zap.String("organization_id", organizationID),
			zap.Int64("delta", delta),
			zap.Error(err))
	}
}

// SeedExposureCache loads an organization's exposure into redis at startup.
func (g *CreditGuard) SeedExposureCache(ctx context.Context, organizationID string) error {
	if g.cache == nil {
		return nil
	}
	profile, err := g.store.GetCreditProfile(ctx, organizationID)
	if err != nil || profile == nil {
		return err
	}
	return g.cache.InitExposure(ctx, organizationID, profile.Exposure)
}
