package pricing

import "github.com/shopspring/decimal"

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

func thresholdBasis(threshold decimal.Decimal) decimal.Decimal {
	if threshold.LessThan(one) {
		return one
	}
	return threshold
}

// PriceFromMargin computes cost * max(threshold, 1) * (1 + margin/100), never below zero.
func PriceFromMargin(cost, threshold, marginPercent decimal.Decimal) decimal.Decimal {
	price := cost.Mul(thresholdBasis(threshold)).Mul(one.Add(marginPercent.Div(hundred)))
	return clampZero(price)
}

// MarginFromPrice is the inverse of PriceFromMargin. When the cost basis is zero a positive
// price yields a margin of exactly 100.
// TODO: confirm the zero-cost margin of 100 with the product owner before changing it.
func MarginFromPrice(cost, threshold, price decimal.Decimal) decimal.Decimal {
	basis := cost.Mul(thresholdBasis(threshold))
	if basis.IsPositive() {
		return price.Div(basis).Sub(one).Mul(hundred)
	}
	if price.IsPositive() {
		return hundred
	}
	return decimal.Zero
}

// CostFromPrice re-derives the per-base-unit cost implied by price at the given margin.
func CostFromPrice(price, threshold, marginPercent decimal.Decimal) decimal.Decimal {
	markup := one.Add(marginPercent.Div(hundred))
	if !markup.IsPositive() {
		return decimal.Zero
	}
	return clampZero(price.Div(markup).Div(thresholdBasis(threshold)))
}

// TierCalculator keeps a tier's margin and price consistent for a given cost.
// Cost must already be expressed in the tier's currency.
type TierCalculator struct {
	Cost decimal.Decimal
}

// EditMargin sets the margin and recomputes the price.
func (c TierCalculator) EditMargin(t PriceTier, marginPercent decimal.Decimal) PriceTier {
	t.MarginPercent = marginPercent
	t.Price = PriceFromMargin(c.Cost, t.QuantityThreshold, marginPercent)
	return t
}

// EditPrice sets the price and recomputes the margin.
func (c TierCalculator) EditPrice(t PriceTier, price decimal.Decimal) PriceTier {
	t.Price = clampZero(price)
	t.MarginPercent = MarginFromPrice(c.Cost, t.QuantityThreshold, t.Price)
	return t
}

// EditThreshold sets the quantity basis and recomputes the price from the current margin.
func (c TierCalculator) EditThreshold(t PriceTier, threshold decimal.Decimal) PriceTier {
	t.QuantityThreshold = thresholdBasis(threshold)
	t.Price = PriceFromMargin(c.Cost, t.QuantityThreshold, t.MarginPercent)
	return t
}
