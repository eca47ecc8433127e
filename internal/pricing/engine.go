package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Line describes an already-priced document line used for totals aggregation.
type Line struct {
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	LineDiscount decimal.Decimal
	TaxRate      decimal.Decimal
}

// Amount returns quantity * unit price before any discount.
func (l Line) Amount() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// OrderTotals aggregates the computed document components.
type OrderTotals struct {
	RawSubtotal       decimal.Decimal `json:"rawSubtotal"`
	LineDiscountTotal decimal.Decimal `json:"lineDiscountTotal"`
	LineTaxTotal      decimal.Decimal `json:"lineTaxTotal"`
	OrderDiscount     decimal.Decimal `json:"orderDiscountAmount"`
	PromotionDiscount decimal.Decimal `json:"externalPromotionDiscount"`
	NetSubtotal       decimal.Decimal `json:"netSubtotal"`
	NetTax            decimal.Decimal `json:"netTax"`
	GrandTotal        decimal.Decimal `json:"grandTotal"`
}

// Round returns a copy with every component rounded to places.
func (t OrderTotals) Round(places int32) OrderTotals {
	return OrderTotals{
		RawSubtotal:       t.RawSubtotal.Round(places),
		LineDiscountTotal: t.LineDiscountTotal.Round(places),
		LineTaxTotal:      t.LineTaxTotal.Round(places),
		OrderDiscount:     t.OrderDiscount.Round(places),
		PromotionDiscount: t.PromotionDiscount.Round(places),
		NetSubtotal:       t.NetSubtotal.Round(places),
		NetTax:            t.NetTax.Round(places),
		GrandTotal:        t.GrandTotal.Round(places),
	}
}

// Aggregate computes document totals. Order-level and promotion discounts reduce the taxable
// base, and the accumulated line tax shrinks by the same proportion.
func Aggregate(lines []Line, orderDiscount, promotionDiscount decimal.Decimal) (OrderTotals, error) {
	if orderDiscount.IsNegative() {
		return OrderTotals{}, fmt.Errorf("order discount %s: %w", orderDiscount, ErrNegativeDiscount)
	}
	if promotionDiscount.IsNegative() {
		return OrderTotals{}, fmt.Errorf("promotion discount %s: %w", promotionDiscount, ErrNegativeDiscount)
	}

	var raw, lineDiscounts, lineTax decimal.Decimal
	for i, l := range lines {
		amount := l.Amount()
		if l.LineDiscount.IsNegative() {
			return OrderTotals{}, &LineError{Index: i, Err: ErrNegativeDiscount}
		}
		if l.LineDiscount.GreaterThan(amount) {
			return OrderTotals{}, &LineError{Index: i, Err: ErrDiscountExceedsLine}
		}
		base := amount.Sub(l.LineDiscount)
		raw = raw.Add(amount)
		lineDiscounts = lineDiscounts.Add(l.LineDiscount)
		lineTax = lineTax.Add(base.Mul(l.TaxRate))
	}

	totals := OrderTotals{
		RawSubtotal:       raw,
		LineDiscountTotal: lineDiscounts,
		LineTaxTotal:      lineTax,
		OrderDiscount:     orderDiscount,
		PromotionDiscount: promotionDiscount,
	}
	if !raw.IsPositive() {
		totals.NetSubtotal = decimal.Zero
		totals.NetTax = decimal.Zero
		totals.GrandTotal = decimal.Zero
		return totals, nil
	}

	discount := orderDiscount.Add(promotionDiscount)
	net := clampZero(raw.Sub(discount))
	factor := net.Div(raw)
	totals.NetSubtotal = net
	totals.NetTax = clampZero(lineTax.Mul(factor))
	totals.GrandTotal = totals.NetSubtotal.Add(totals.NetTax)
	return totals, nil
}
