package pricing

import "github.com/shopspring/decimal"

// Rule identifies which step of the resolution cascade produced a price.
type Rule int

const (
	// RuleExact matched level, unit and currency.
	RuleExact Rule = iota + 1
	// RuleClientLevel matched the customer's level with the requested unit and currency.
	RuleClientLevel
	// RuleCurrency matched unit and currency, ignoring level.
	RuleCurrency
	// RuleLegacyLevel matched level and unit, ignoring currency. The emitted currency is the tier's.
	RuleLegacyLevel
	// RuleConversion derived the price from the functional fallback price.
	RuleConversion
)

func (r Rule) String() string {
	switch r {
	case RuleExact:
		return "exact"
	case RuleClientLevel:
		return "client_level"
	case RuleCurrency:
		return "currency"
	case RuleLegacyLevel:
		return "legacy_level"
	case RuleConversion:
		return "conversion"
	default:
		return "unknown"
	}
}

// MarshalText renders the rule name in JSON payloads.
func (r Rule) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Rule     Rule            `json:"rule"`
	// TierIndex is the position of the winning tier, or -1 for the conversion fallback.
	TierIndex int `json:"tierIndex"`
}

// Resolver selects prices from tier lists.
type Resolver struct {
	FunctionalCurrency string
}

type tierMatch func(PriceTier) bool

// Resolve walks the specificity cascade and returns the first active match. Within a rule the
// first tier in list order wins. When nothing matches the fallback price is converted into the
// target currency.
func (r Resolver) Resolve(tiers []PriceTier, ctx ResolutionContext, fallbackFunctionalPrice, exchangeRate decimal.Decimal) (Resolution, error) {
	cascade := []struct {
		rule  Rule
		match tierMatch
	}{
		{RuleExact, func(t PriceTier) bool {
			return sameCode(t.Level, ctx.TargetLevel) && sameCode(t.Unit, ctx.TargetUnit) && sameCode(t.Currency, ctx.TargetCurrency)
		}},
		{RuleClientLevel, func(t PriceTier) bool {
			return normalizeCode(ctx.ClientLevel) != "" && sameCode(t.Level, ctx.ClientLevel) &&
				sameCode(t.Unit, ctx.TargetUnit) && sameCode(t.Currency, ctx.TargetCurrency)
		}},
		{RuleCurrency, func(t PriceTier) bool {
			return sameCode(t.Unit, ctx.TargetUnit) && sameCode(t.Currency, ctx.TargetCurrency)
		}},
		{RuleLegacyLevel, func(t PriceTier) bool {
			return sameCode(t.Level, ctx.TargetLevel) && sameCode(t.Unit, ctx.TargetUnit)
		}},
	}

	for _, step := range cascade {
		for i, t := range tiers {
			if !t.Active || !step.match(t) {
				continue
			}
			currency := normalizeCode(ctx.TargetCurrency)
			if step.rule == RuleLegacyLevel {
				currency = normalizeCode(t.Currency)
			}
			return Resolution{
				Price:     clampZero(t.Price),
				Currency:  currency,
				Rule:      step.rule,
				TierIndex: i,
			}, nil
		}
	}

	price, err := Convert(fallbackFunctionalPrice, ctx.TargetCurrency, r.FunctionalCurrency, exchangeRate)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{
		Price:     clampZero(price),
		Currency:  normalizeCode(ctx.TargetCurrency),
		Rule:      RuleConversion,
		TierIndex: -1,
	}, nil
}
