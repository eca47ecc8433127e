package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func tier(level, unit, currency, price string) PriceTier {
	return PriceTier{Level: level, Unit: unit, Currency: currency, Price: d(price), Active: true}
}

func TestResolveExactMatchWins(t *testing.T) {
	tiers := []PriceTier{
		tier("A", "BOX", "USD", "10"),
		tier("B", "BOX", "USD", "8"),
	}
	r := Resolver{FunctionalCurrency: "DOP"}
	res, err := r.Resolve(tiers, ResolutionContext{TargetLevel: "B", TargetUnit: "BOX", TargetCurrency: "USD"}, d("0"), d("58"))
	require.NoError(t, err)
	require.True(t, res.Price.Equal(d("8")), "got %s", res.Price)
	require.Equal(t, RuleExact, res.Rule)
	require.Equal(t, 1, res.TierIndex)
}

func TestResolveCurrencyBeatsLevel(t *testing.T) {
	tiers := []PriceTier{
		tier("A", "BOX", "DOP", "500"),
		tier("B", "BOX", "USD", "9"),
	}
	r := Resolver{FunctionalCurrency: "DOP"}
	res, err := r.Resolve(tiers, ResolutionContext{TargetLevel: "A", TargetUnit: "BOX", TargetCurrency: "USD"}, d("0"), d("58"))
	require.NoError(t, err)
	require.True(t, res.Price.Equal(d("9")), "got %s", res.Price)
	require.Equal(t, RuleCurrency, res.Rule)
	require.Equal(t, "USD", res.Currency)
}

func TestResolveClientLevelPreferredOverCurrencyRule(t *testing.T) {
	tiers := []PriceTier{
		tier("RETAIL", "UND", "USD", "10"),
		tier("VIP", "UND", "USD", "7"),
	}
	r := Resolver{FunctionalCurrency: "DOP"}
	ctx := ResolutionContext{TargetLevel: "WHOLESALE", TargetUnit: "UND", TargetCurrency: "USD", ClientLevel: "VIP"}

	res, err := r.Resolve(tiers, ctx, d("0"), d("58"))
	require.NoError(t, err)
	require.True(t, res.Price.Equal(d("7")), "got %s", res.Price)
	require.Equal(t, RuleClientLevel, res.Rule)

	ctx.ClientLevel = ""
	res, err = r.Resolve(tiers, ctx, d("0"), d("58"))
	require.NoError(t, err)
	require.True(t, res.Price.Equal(d("10")), "got %s", res.Price)
	require.Equal(t, RuleCurrency, res.Rule)
}

func TestResolveExactStillBeatsClientLevel(t *testing.T) {
	tiers := []PriceTier{
		tier("VIP", "UND", "USD", "7"),
		tier("RETAIL", "UND", "USD", "10"),
	}
	r := Resolver{FunctionalCurrency: "DOP"}
	res, err := r.Resolve(tiers, ResolutionContext{TargetLevel: "RETAIL", TargetUnit: "UND", TargetCurrency: "USD", ClientLevel: "VIP"}, d("0"), d("1"))
	require.NoError(t, err)
	require.Equal(t, RuleExact, res.Rule)
	require.True(t, res.Price.Equal(d("10")))
}

func TestResolveLegacyLevelKeepsTierCurrency(t *testing.T) {
	tiers := []PriceTier{tier("A", "BOX", "dop", "500")}
	r := Resolver{FunctionalCurrency: "DOP"}
	res, err := r.Resolve(tiers, ResolutionContext{TargetLevel: "A", TargetUnit: "BOX", TargetCurrency: "USD"}, d("0"), d("58"))
	require.NoError(t, err)
	require.Equal(t, RuleLegacyLevel, res.Rule)
	require.Equal(t, "DOP", res.Currency)
	require.True(t, res.Price.Equal(d("500")))
}

func TestResolveSkipsInactiveTiers(t *testing.T) {
	inactive := tier("A", "BOX", "USD", "3")
	inactive.Active = false
	tiers := []PriceTier{inactive, tier("Z", "BOX", "USD", "4")}
	r := Resolver{FunctionalCurrency: "DOP"}
	res, err := r.Resolve(tiers, ResolutionContext{TargetLevel: "A", TargetUnit: "BOX", TargetCurrency: "USD"}, d("0"), d("58"))
	require.NoError(t, err)
	require.Equal(t, RuleCurrency, res.Rule)
	require.True(t, res.Price.Equal(d("4")))
}

func TestResolveFirstListOrderMatchWins(t *testing.T) {
	tiers := []PriceTier{
		tier("A", "BOX", "USD", "11"),
		tier("A", "BOX", "USD", "12"),
	}
	r := Resolver{FunctionalCurrency: "DOP"}
	res, err := r.Resolve(tiers, ResolutionContext{TargetLevel: "A", TargetUnit: "BOX", TargetCurrency: "USD"}, d("0"), d("58"))
	require.NoError(t, err)
	require.Equal(t, 0, res.TierIndex)
	require.True(t, res.Price.Equal(d("11")))
}

func TestResolveMatchesCodesCaseInsensitively(t *testing.T) {
	tiers := []PriceTier{tier(" a ", "box", "usd", "10")}
	r := Resolver{FunctionalCurrency: "DOP"}
	res, err := r.Resolve(tiers, ResolutionContext{TargetLevel: "A", TargetUnit: "BOX ", TargetCurrency: "USD"}, d("0"), d("58"))
	require.NoError(t, err)
	require.Equal(t, RuleExact, res.Rule)
}

func TestResolveConversionFallback(t *testing.T) {
	r := Resolver{FunctionalCurrency: "DOP"}
	res, err := r.Resolve(nil, ResolutionContext{TargetLevel: "A", TargetUnit: "UND", TargetCurrency: "USD"}, d("100"), d("58"))
	require.NoError(t, err)
	require.Equal(t, RuleConversion, res.Rule)
	require.Equal(t, -1, res.TierIndex)
	require.Equal(t, "USD", res.Currency)
	require.True(t, res.Price.Round(3).Equal(d("1.724")), "got %s", res.Price)
}

func TestResolveFunctionalFallbackIgnoresRate(t *testing.T) {
	r := Resolver{FunctionalCurrency: "DOP"}
	res, err := r.Resolve(nil, ResolutionContext{TargetLevel: "A", TargetUnit: "UND", TargetCurrency: "dop"}, d("100"), d("0"))
	require.NoError(t, err)
	require.True(t, res.Price.Equal(d("100")))
	require.Equal(t, "DOP", res.Currency)
}

func TestResolveInvalidRate(t *testing.T) {
	r := Resolver{FunctionalCurrency: "DOP"}
	for _, rate := range []string{"0", "-3"} {
		_, err := r.Resolve(nil, ResolutionContext{TargetLevel: "A", TargetUnit: "UND", TargetCurrency: "USD"}, d("100"), d(rate))
		require.True(t, errors.Is(err, ErrInvalidRate), "rate %s: %v", rate, err)
		var rateErr *RateError
		require.ErrorAs(t, err, &rateErr)
		require.Equal(t, "USD", rateErr.Currency)
	}
}

func TestResolveInvalidRateIgnoredWhenTierMatches(t *testing.T) {
	r := Resolver{FunctionalCurrency: "DOP"}
	res, err := r.Resolve([]PriceTier{tier("A", "UND", "USD", "5")}, ResolutionContext{TargetLevel: "A", TargetUnit: "UND", TargetCurrency: "USD"}, d("100"), d("0"))
	require.NoError(t, err)
	require.True(t, res.Price.Equal(d("5")))
}

func TestResolveClampsNegativePrice(t *testing.T) {
	r := Resolver{FunctionalCurrency: "DOP"}
	res, err := r.Resolve([]PriceTier{tier("A", "UND", "USD", "-5")}, ResolutionContext{TargetLevel: "A", TargetUnit: "UND", TargetCurrency: "USD"}, d("0"), d("58"))
	require.NoError(t, err)
	require.True(t, res.Price.IsZero())
}

func TestResolveIsIdempotent(t *testing.T) {
	tiers := []PriceTier{tier("A", "BOX", "DOP", "500"), tier("B", "BOX", "USD", "9")}
	ctx := ResolutionContext{TargetLevel: "A", TargetUnit: "BOX", TargetCurrency: "USD"}
	r := Resolver{FunctionalCurrency: "DOP"}
	first, err := r.Resolve(tiers, ctx, d("100"), d("58"))
	require.NoError(t, err)
	second, err := r.Resolve(tiers, ctx, d("100"), d("58"))
	require.NoError(t, err)
	require.True(t, first.Price.Equal(second.Price))
	require.Equal(t, first.Rule, second.Rule)
	require.Equal(t, first.TierIndex, second.TierIndex)
	require.Equal(t, first.Currency, second.Currency)
}
