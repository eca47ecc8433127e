package pricing

import "github.com/shopspring/decimal"

// EffectiveRate returns the rate that applies to target. The functional currency is always 1.
func EffectiveRate(target, functional string, rate decimal.Decimal) (decimal.Decimal, error) {
	if sameCode(target, functional) {
		return one, nil
	}
	if !rate.IsPositive() {
		return decimal.Zero, &RateError{Currency: normalizeCode(target), Rate: rate}
	}
	return rate, nil
}

// Convert expresses a functional-currency amount in the target currency.
func Convert(amount decimal.Decimal, target, functional string, rate decimal.Decimal) (decimal.Decimal, error) {
	r, err := EffectiveRate(target, functional, rate)
	if err != nil {
		return decimal.Zero, err
	}
	if r.Equal(one) {
		return amount, nil
	}
	return amount.Div(r), nil
}

// ToFunctional expresses an amount given in source currency in the functional currency.
func ToFunctional(amount decimal.Decimal, source, functional string, rate decimal.Decimal) (decimal.Decimal, error) {
	r, err := EffectiveRate(source, functional, rate)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(r), nil
}
