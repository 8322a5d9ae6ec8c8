package service

import (
	"context"
	"time"
)

// PriceQuote is the breakdown returned by the pricing engine.
type PriceQuote struct {
	Base         int64    `json:"base"`
	Final        int64    `json:"final"`
	Commission   int64    `json:"commission"`
	Margin       int64    `json:"margin"`
	AppliedRules []string `json:"applied_rules"`
}

// PricingEngine is the external pricing collaborator, consumed as a black
// box returning a priced amount plus breakdown.
type PricingEngine interface {
	CalculatePrice(ctx context.Context, organizationID, offerID string, checkIn, checkOut time.Time) (*PriceQuote, error)
}

// NightlyRatePricing is the built-in stand-in: a flat nightly rate with a
// fixed commission percentage. Deployments point the interface at the real
// pricing service.
type NightlyRatePricing struct {
	NightlyRate   int64
	CommissionPct int64
}

// NewNightlyRatePricing creates the stand-in pricing engine.
func NewNightlyRatePricing(nightlyRate, commissionPct int64) *NightlyRatePricing {
	return &NightlyRatePricing{NightlyRate: nightlyRate, CommissionPct: commissionPct}
}

func (p *NightlyRatePricing) CalculatePrice(ctx context.Context, organizationID, offerID string, checkIn, checkOut time.Time) (*PriceQuote, error) {
	nights := int64(checkOut.Sub(checkIn).Hours() / 24)
	if nights < 1 {
		nights = 1
	}

	base := nights * p.NightlyRate
	commission := base * p.CommissionPct / 100

	return &PriceQuote{
		Base:         base,
		Final:        base + commission,
		Commission:   commission,
		Margin:       commission,
		AppliedRules: []string{"nightly_rate", "flat_commission"},
	}, nil
}
