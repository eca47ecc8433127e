package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CatalogItem is an immutable snapshot of a catalog entry as supplied by the catalog service.
type CatalogItem struct {
	ID            string          `json:"id"`
	Description   string          `json:"description"`
	Category      string          `json:"category,omitempty"`
	ReferenceCost decimal.Decimal `json:"referenceCost"`
	BasePrice     decimal.Decimal `json:"basePrice"`
	BaseUnit      string          `json:"baseUnit"`
	Plan          *UnitPlan       `json:"unitPlan,omitempty"`
	Tiers         []PriceTier     `json:"priceTiers"`
}

// UnitPlan groups the conversion factors of alternate units relative to BaseUnit.
type UnitPlan struct {
	ID       string       `json:"id"`
	BaseUnit string       `json:"baseUnit"`
	Factors  []UnitFactor `json:"factors"`
}

// UnitFactor states how many base units one Unit represents.
type UnitFactor struct {
	Unit   string          `json:"unit"`
	Factor decimal.Decimal `json:"factor"`
}

// PriceTier is one priced (level, unit, currency) bracket of a catalog item.
type PriceTier struct {
	Level             string          `json:"level"`
	Unit              string          `json:"unit"`
	Currency          string          `json:"currency"`
	QuantityThreshold decimal.Decimal `json:"quantityThreshold"`
	MarginPercent     decimal.Decimal `json:"marginPercent"`
	Price             decimal.Decimal `json:"price"`
	Active            bool            `json:"active"`
}

// ResolutionContext is the per-line request the Price Tier Resolver answers.
type ResolutionContext struct {
	TargetCurrency string `json:"targetCurrency"`
	TargetLevel    string `json:"targetLevel"`
	TargetUnit     string `json:"targetUnit"`
	// ClientLevel is the customer's own price level. Empty means unset.
	ClientLevel string `json:"clientLevel,omitempty"`
}

// PricingConfig carries the settings that used to live in screen-level state.
type PricingConfig struct {
	FunctionalCurrency string
	DefaultLevel       string
	DefaultWarehouse   string
	OnlyActiveItems    bool
	MoneyPlaces        int32
	DefaultTaxRate     decimal.Decimal
}

// IsFunctional reports whether currency is the configured functional currency.
func (c PricingConfig) IsFunctional(currency string) bool {
	return sameCode(c.FunctionalCurrency, currency)
}

// Round applies the configured presentation precision.
func (c PricingConfig) Round(v decimal.Decimal) decimal.Decimal {
	places := c.MoneyPlaces
	if places <= 0 {
		places = 2
	}
	return v.Round(places)
}

func sameCode(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func normalizeCode(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

func clampZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
