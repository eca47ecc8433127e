package obs

import (
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pricing/internal/pricing"
)

// PricingObserver reports engine events to logs and Prometheus.
type PricingObserver struct {
	Logger zerolog.Logger
}

// UnresolvedUnit logs and counts a unit that fell back to a factor of 1.
func (o PricingObserver) UnresolvedUnit(itemID, planID, unit string) {
	if PricingUnresolvedUnitTotal != nil {
		PricingUnresolvedUnitTotal.Inc()
	}
	o.Logger.Warn().
		Str("item_id", itemID).
		Str("plan_id", planID).
		Str("unit", unit).
		Msg("unresolved_unit")
}

// Resolved counts the cascade rule that priced a line.
func (o PricingObserver) Resolved(itemID string, rule pricing.Rule) {
	if PricingResolutionTotal != nil {
		PricingResolutionTotal.WithLabelValues(rule.String()).Inc()
	}
	if rule == pricing.RuleLegacyLevel {
		o.Logger.Debug().Str("item_id", itemID).Str("rule", rule.String()).Msg("price_currency_mismatch")
	}
}
