package document_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pricing/internal/document"
	"github.com/noah-isme/backend-pricing/internal/pricing"
)

type recordingObserver struct {
	unresolved []string
	rules      []pricing.Rule
}

func (r *recordingObserver) UnresolvedUnit(itemID, planID, unit string) {
	r.unresolved = append(r.unresolved, itemID+"/"+planID+"/"+unit)
}

func (r *recordingObserver) Resolved(_ string, rule pricing.Rule) {
	r.rules = append(r.rules, rule)
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func testConfig() pricing.PricingConfig {
	return pricing.PricingConfig{
		FunctionalCurrency: "DOP",
		DefaultLevel:       "RETAIL",
		MoneyPlaces:        2,
		DefaultTaxRate:     dec("0.18"),
	}
}

func soap() *pricing.CatalogItem {
	return &pricing.CatalogItem{
		ID:            "SOAP-1",
		Description:   "Bar soap",
		ReferenceCost: dec("20"),
		BasePrice:     dec("30"),
		BaseUnit:      "UND",
		Plan: &pricing.UnitPlan{ID: "PLAN-12", BaseUnit: "UND", Factors: []pricing.UnitFactor{
			{Unit: "CAJA", Factor: dec("12")},
		}},
		Tiers: []pricing.PriceTier{
			{Level: "RETAIL", Unit: "UND", Currency: "DOP", Price: dec("35"), Active: true},
			{Level: "RETAIL", Unit: "CAJA", Currency: "DOP", Price: dec("400"), Active: true},
			{Level: "WHOLESALE", Unit: "CAJA", Currency: "DOP", Price: dec("360"), Active: true},
			{Level: "RETAIL", Unit: "UND", Currency: "USD", Price: dec("0.65"), Active: true},
		},
	}
}

func TestAddItemResolvesPrice(t *testing.T) {
	obs := &recordingObserver{}
	doc, err := document.New(document.KindSale, testConfig(), "", decimal.Zero, document.WithObserver(obs))
	require.NoError(t, err)
	require.Equal(t, "DOP", doc.Currency())
	require.True(t, doc.Rate().Equal(dec("1")))

	line, err := doc.AddItem(soap(), dec("2"), "")
	require.NoError(t, err)
	require.Equal(t, "UND", line.Unit)
	require.True(t, line.UnitPrice.Equal(dec("35")))
	require.True(t, line.UnitConversionFactor.Equal(dec("1")))
	require.Equal(t, pricing.RuleExact, line.PriceRule)
	require.Equal(t, []pricing.Rule{pricing.RuleExact}, obs.rules)
}

func TestUnitChangeRecomputesFactorAndPrice(t *testing.T) {
	doc, err := document.New(document.KindSale, testConfig(), "DOP", dec("1"))
	require.NoError(t, err)
	line, err := doc.AddItem(soap(), dec("3"), "UND")
	require.NoError(t, err)

	require.NoError(t, doc.SetUnit(line.ID, "caja"))
	updated, err := doc.Line(line.ID)
	require.NoError(t, err)
	require.True(t, updated.UnitConversionFactor.Equal(dec("12")))
	require.True(t, updated.UnitPrice.Equal(dec("400")))
	require.True(t, updated.BaseQuantity().Equal(dec("36")))
	require.True(t, updated.Quantity.Equal(dec("3")), "entered quantity must not be rewritten")
}

func TestLevelChangeRecomputesPrice(t *testing.T) {
	doc, err := document.New(document.KindQuotation, testConfig(), "DOP", dec("1"))
	require.NoError(t, err)
	line, err := doc.AddItem(soap(), dec("1"), "CAJA")
	require.NoError(t, err)
	require.NoError(t, doc.SetLevel(line.ID, "WHOLESALE"))
	updated, _ := doc.Line(line.ID)
	require.True(t, updated.UnitPrice.Equal(dec("360")))
}

func TestCurrencyChangeRecomputesEveryLine(t *testing.T) {
	doc, err := document.New(document.KindSale, testConfig(), "DOP", dec("1"))
	require.NoError(t, err)
	und, err := doc.AddItem(soap(), dec("1"), "UND")
	require.NoError(t, err)
	caja, err := doc.AddItem(soap(), dec("1"), "CAJA")
	require.NoError(t, err)

	require.NoError(t, doc.SetCurrency("usd", dec("58")))
	require.Equal(t, "USD", doc.Currency())

	l1, _ := doc.Line(und.ID)
	require.True(t, l1.UnitPrice.Equal(dec("0.65")))
	require.Equal(t, "USD", l1.PriceCurrency)

	// no USD tier for CAJA: RETAIL/CAJA/DOP matches the legacy rule and keeps its currency
	l2, _ := doc.Line(caja.ID)
	require.Equal(t, pricing.RuleLegacyLevel, l2.PriceRule)
	require.Equal(t, "DOP", l2.PriceCurrency)
}

func TestCurrencyChangeRejectsInvalidRate(t *testing.T) {
	doc, err := document.New(document.KindSale, testConfig(), "DOP", dec("1"))
	require.NoError(t, err)
	_, err = doc.AddItem(soap(), dec("1"), "UND")
	require.NoError(t, err)

	err = doc.SetCurrency("EUR", dec("0"))
	require.True(t, errors.Is(err, pricing.ErrInvalidRate))
	require.Equal(t, "DOP", doc.Currency())

	_, err = document.New(document.KindSale, testConfig(), "USD", dec("-1"))
	require.True(t, errors.Is(err, pricing.ErrInvalidRate))
}

func TestFallbackUsesKindSpecificBasis(t *testing.T) {
	item := soap()
	item.Tiers = nil

	sale, err := document.New(document.KindSale, testConfig(), "USD", dec("60"))
	require.NoError(t, err)
	line, err := sale.AddItem(item, dec("1"), "CAJA")
	require.NoError(t, err)
	require.Equal(t, pricing.RuleConversion, line.PriceRule)
	require.True(t, line.UnitPrice.Equal(dec("6")), "30*12/60, got %s", line.UnitPrice)

	purchase, err := document.New(document.KindPurchase, testConfig(), "USD", dec("60"))
	require.NoError(t, err)
	line, err = purchase.AddItem(item, dec("1"), "CAJA")
	require.NoError(t, err)
	require.True(t, line.UnitPrice.Equal(dec("4")), "20*12/60, got %s", line.UnitPrice)
}

func TestUnresolvedUnitIsObservedAndPassesThrough(t *testing.T) {
	obs := &recordingObserver{}
	doc, err := document.New(document.KindTransfer, testConfig(), "DOP", dec("1"), document.WithObserver(obs))
	require.NoError(t, err)
	line, err := doc.AddItem(soap(), dec("5"), "PALLET")
	require.NoError(t, err)
	require.True(t, line.UnitConversionFactor.Equal(dec("1")))
	require.True(t, line.BaseQuantity().Equal(dec("5")))
	require.Equal(t, []string{"SOAP-1/PLAN-12/PALLET"}, obs.unresolved)
}

func TestManualPriceLifecycle(t *testing.T) {
	doc, err := document.New(document.KindSale, testConfig(), "DOP", dec("1"))
	require.NoError(t, err)
	line, err := doc.AddItem(soap(), dec("1"), "UND")
	require.NoError(t, err)

	require.NoError(t, doc.SetPrice(line.ID, dec("31")))
	require.NoError(t, doc.SetQuantity(line.ID, dec("4")))
	updated, _ := doc.Line(line.ID)
	require.True(t, updated.ManualPrice)
	require.True(t, updated.UnitPrice.Equal(dec("31")))

	require.NoError(t, doc.SetUnit(line.ID, "UND"))
	updated, _ = doc.Line(line.ID)
	require.False(t, updated.ManualPrice)
	require.True(t, updated.UnitPrice.Equal(dec("35")))

	require.ErrorIs(t, doc.SetPrice(line.ID, dec("-1")), document.ErrNegativePrice)
}

func TestTotalsWithDiscountsAndPromotion(t *testing.T) {
	doc, err := document.New(document.KindSale, testConfig(), "DOP", dec("1"))
	require.NoError(t, err)
	item := &pricing.CatalogItem{ID: "X", BaseUnit: "UND", Tiers: []pricing.PriceTier{
		{Level: "RETAIL", Unit: "UND", Currency: "DOP", Price: dec("100"), Active: true},
	}}
	for i := 0; i < 3; i++ {
		_, err := doc.AddItem(item, dec("1"), "UND")
		require.NoError(t, err)
	}
	require.NoError(t, doc.SetOrderDiscount(dec("100")))
	require.NoError(t, doc.ApplyPromotion(document.Promotion{Discount: dec("50"), Names: []string{"2x1"}}))

	totals, err := doc.Totals()
	require.NoError(t, err)
	require.True(t, totals.NetSubtotal.Equal(dec("150")))
	require.True(t, totals.NetTax.Equal(dec("27")))
	require.True(t, totals.GrandTotal.Equal(dec("177")))
	require.Equal(t, []string{"2x1"}, doc.Promotion().Names)
}

func TestLineDiscountValidation(t *testing.T) {
	doc, err := document.New(document.KindReturn, testConfig(), "DOP", dec("1"))
	require.NoError(t, err)
	line, err := doc.AddItem(soap(), dec("2"), "UND")
	require.NoError(t, err)

	err = doc.SetLineDiscount(line.ID, dec("70.01"))
	require.True(t, errors.Is(err, pricing.ErrDiscountExceedsLine))
	require.NoError(t, doc.SetLineDiscount(line.ID, dec("70")))

	_, err = doc.Totals()
	require.NoError(t, err)
}

func TestEditsBelowExistingDiscountAreRejected(t *testing.T) {
	doc, err := document.New(document.KindSale, testConfig(), "DOP", dec("1"))
	require.NoError(t, err)
	line, err := doc.AddItem(soap(), dec("2"), "UND")
	require.NoError(t, err)
	require.NoError(t, doc.SetLineDiscount(line.ID, dec("60")))

	err = doc.SetQuantity(line.ID, dec("1"))
	require.ErrorIs(t, err, pricing.ErrDiscountExceedsLine)
	err = doc.SetPrice(line.ID, dec("20"))
	require.ErrorIs(t, err, pricing.ErrDiscountExceedsLine)
	require.NoError(t, doc.SetLevel(line.ID, "RETAIL"))

	got, _ := doc.Line(line.ID)
	require.True(t, got.Quantity.Equal(dec("2")))
	require.True(t, got.UnitPrice.Equal(dec("35")))
	require.False(t, got.ManualPrice)

	totals, err := doc.Totals()
	require.NoError(t, err)
	require.True(t, totals.LineDiscountTotal.Equal(dec("60")))

	require.NoError(t, doc.SetQuantity(line.ID, dec("3")))
}

func TestCurrencyChangeConvertsDiscounts(t *testing.T) {
	doc, err := document.New(document.KindSale, testConfig(), "DOP", dec("1"))
	require.NoError(t, err)
	line, err := doc.AddItem(soap(), dec("2"), "UND")
	require.NoError(t, err)
	require.NoError(t, doc.SetLineDiscount(line.ID, dec("10")))
	require.NoError(t, doc.SetOrderDiscount(dec("20")))
	require.NoError(t, doc.ApplyPromotion(document.Promotion{Discount: dec("5.8"), Names: []string{"promo"}}))

	require.NoError(t, doc.SetCurrency("USD", dec("58")))

	got, _ := doc.Line(line.ID)
	require.True(t, got.Amount().Equal(dec("1.3")))
	require.True(t, got.LineDiscount.Equal(dec("10").Div(dec("58"))), "got %s", got.LineDiscount)
	require.True(t, doc.Promotion().Discount.Equal(dec("0.1")))

	totals, err := doc.Totals()
	require.NoError(t, err)
	require.True(t, totals.OrderDiscount.Equal(dec("20").Div(dec("58"))))
	require.True(t, totals.RawSubtotal.Equal(dec("1.3")))

	require.NoError(t, doc.SetCurrency("DOP", dec("1")))
	got, _ = doc.Line(line.ID)
	require.Equal(t, "10", got.LineDiscount.Round(2).String())
	totals, err = doc.Totals()
	require.NoError(t, err)
	require.Equal(t, "20", totals.OrderDiscount.Round(2).String())
}

func TestCurrencyChangeRefusedWhenDiscountNoLongerFits(t *testing.T) {
	doc, err := document.New(document.KindSale, testConfig(), "DOP", dec("1"))
	require.NoError(t, err)
	line, err := doc.AddItem(soap(), dec("1"), "UND")
	require.NoError(t, err)
	require.NoError(t, doc.SetLineDiscount(line.ID, dec("35")))
	require.NoError(t, doc.SetOrderDiscount(dec("4")))

	// 35 DOP at 40 is 0.875 USD, above the 0.65 USD tier price
	err = doc.SetCurrency("USD", dec("40"))
	require.ErrorIs(t, err, pricing.ErrDiscountExceedsLine)

	require.Equal(t, "DOP", doc.Currency())
	require.True(t, doc.Rate().Equal(dec("1")))
	got, _ := doc.Line(line.ID)
	require.True(t, got.LineDiscount.Equal(dec("35")))
	require.True(t, got.UnitPrice.Equal(dec("35")))
	totals, err := doc.Totals()
	require.NoError(t, err)
	require.True(t, totals.OrderDiscount.Equal(dec("4")))
}

func TestRemoveLine(t *testing.T) {
	doc, err := document.New(document.KindSale, testConfig(), "DOP", dec("1"))
	require.NoError(t, err)
	a, _ := doc.AddItem(soap(), dec("1"), "UND")
	b, _ := doc.AddItem(soap(), dec("2"), "UND")
	require.NoError(t, doc.RemoveLine(a.ID))
	lines := doc.Lines()
	require.Len(t, lines, 1)
	require.Equal(t, b.ID, lines[0].ID)
	require.ErrorIs(t, doc.RemoveLine(uuid.New()), document.ErrLineNotFound)
}

func TestInvalidInputs(t *testing.T) {
	doc, err := document.New(document.KindSale, testConfig(), "DOP", dec("1"))
	require.NoError(t, err)
	_, err = doc.AddItem(nil, dec("1"), "UND")
	require.ErrorIs(t, err, document.ErrMissingItem)
	_, err = doc.AddItem(soap(), dec("0"), "UND")
	require.ErrorIs(t, err, document.ErrInvalidQuantity)
	require.ErrorIs(t, doc.SetOrderDiscount(dec("-5")), pricing.ErrNegativeDiscount)

	kind, err := document.ParseKind(" Purchase ")
	require.NoError(t, err)
	require.Equal(t, document.KindPurchase, kind)
	_, err = document.ParseKind("invoice")
	require.Error(t, err)
}
