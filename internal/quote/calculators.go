package quote

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pricing/internal/pricing"
)

// ResolveRequest asks for the price of one (level, unit, currency) target. Tiers are taken from
// the catalog when ItemID is set, otherwise from the request.
type ResolveRequest struct {
	ItemID        string                    `json:"itemId" validate:"required_without=Tiers,max=64"`
	Kind          string                    `json:"kind" validate:"omitempty,oneof=sale quotation return purchase transfer"`
	Tiers         []pricing.PriceTier       `json:"tiers"`
	FallbackPrice decimal.Decimal           `json:"fallbackPrice"`
	ExchangeRate  decimal.Decimal           `json:"exchangeRate"`
	Context       pricing.ResolutionContext `json:"context"`
}

// ResolveTier runs the price tier cascade for a single target.
func (s *Service) ResolveTier(ctx context.Context, req ResolveRequest) (pricing.Resolution, error) {
	target := req.Context
	if strings.TrimSpace(target.TargetCurrency) == "" {
		target.TargetCurrency = s.cfg.FunctionalCurrency
	}
	if strings.TrimSpace(target.TargetLevel) == "" {
		target.TargetLevel = s.cfg.DefaultLevel
	}
	rate, err := pricing.EffectiveRate(target.TargetCurrency, s.cfg.FunctionalCurrency, req.ExchangeRate)
	if err != nil {
		return pricing.Resolution{}, err
	}

	tiers, fallback := req.Tiers, req.FallbackPrice
	if id := strings.TrimSpace(req.ItemID); id != "" {
		item, err := s.item(ctx, id)
		if err != nil {
			return pricing.Resolution{}, err
		}
		if strings.TrimSpace(target.TargetUnit) == "" {
			target.TargetUnit = item.BaseUnit
		}
		factor, _ := pricing.ResolveUnit(item, target.TargetUnit, s.observer)
		basis := item.BasePrice
		if req.Kind == "purchase" || req.Kind == "transfer" {
			basis = item.ReferenceCost
		}
		tiers, fallback = item.Tiers, basis.Mul(factor)
	}

	res, err := pricing.Resolver{FunctionalCurrency: s.cfg.FunctionalCurrency}.Resolve(tiers, target, fallback, rate)
	if err != nil {
		return pricing.Resolution{}, err
	}
	s.observer.Resolved(req.ItemID, res.Rule)
	return res, nil
}

// MarginEdit names the tier field being edited.
type MarginEdit string

const (
	EditMargin    MarginEdit = "margin"
	EditPrice     MarginEdit = "price"
	EditThreshold MarginEdit = "threshold"
)

// MarginRequest edits one field of a tier and recomputes its counterpart. Cost is the reference
// cost in the functional currency; it is converted into the tier currency at ExchangeRate.
type MarginRequest struct {
	Cost         decimal.Decimal   `json:"cost"`
	ExchangeRate decimal.Decimal   `json:"exchangeRate"`
	Tier         pricing.PriceTier `json:"tier"`
	Edit         MarginEdit        `json:"edit" validate:"required,oneof=margin price threshold"`
	Value        decimal.Decimal   `json:"value"`
}

// Margin applies the co-calculation rules to a single tier.
func (s *Service) Margin(req MarginRequest) (pricing.PriceTier, error) {
	currency := req.Tier.Currency
	if strings.TrimSpace(currency) == "" {
		currency = s.cfg.FunctionalCurrency
	}
	cost, err := pricing.Convert(req.Cost, currency, s.cfg.FunctionalCurrency, req.ExchangeRate)
	if err != nil {
		return pricing.PriceTier{}, err
	}
	calc := pricing.TierCalculator{Cost: cost}
	switch req.Edit {
	case EditMargin:
		return calc.EditMargin(req.Tier, req.Value), nil
	case EditPrice:
		return calc.EditPrice(req.Tier, req.Value), nil
	case EditThreshold:
		return calc.EditThreshold(req.Tier, req.Value), nil
	default:
		return pricing.PriceTier{}, fmt.Errorf("%w: unknown edit %q", ErrInvalidRequest, req.Edit)
	}
}

// UnitRequest converts a quantity entered in Unit into base units.
type UnitRequest struct {
	ItemID   string            `json:"itemId" validate:"required_without=Plan,max=64"`
	Plan     *pricing.UnitPlan `json:"plan"`
	Quantity decimal.Decimal   `json:"quantity"`
	Unit     string            `json:"unit" validate:"required,max=16"`
}

// UnitConversion is the outcome of ConvertUnits. Resolved is false when the unit fell back to 1.
type UnitConversion struct {
	Factor       decimal.Decimal `json:"factor"`
	Resolved     bool            `json:"resolved"`
	BaseQuantity decimal.Decimal `json:"baseQuantity"`
	BaseUnit     string          `json:"baseUnit"`
}

// ConvertUnits resolves a unit factor against an item plan or an inline plan.
func (s *Service) ConvertUnits(ctx context.Context, req UnitRequest) (UnitConversion, error) {
	var item *pricing.CatalogItem
	if itemID := strings.TrimSpace(req.ItemID); itemID != "" {
		found, err := s.item(ctx, itemID)
		if err != nil {
			return UnitConversion{}, err
		}
		item = found
	} else {
		if req.Plan == nil {
			return UnitConversion{}, fmt.Errorf("%w: itemId or plan is required", ErrInvalidRequest)
		}
		if err := req.Plan.Validate(); err != nil {
			return UnitConversion{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		item = &pricing.CatalogItem{BaseUnit: req.Plan.BaseUnit, Plan: req.Plan}
	}

	factor, ok := pricing.ResolveUnit(item, req.Unit, s.observer)
	return UnitConversion{
		Factor:       factor,
		Resolved:     ok,
		BaseQuantity: req.Quantity.Mul(factor),
		BaseUnit:     item.BaseUnit,
	}, nil
}

// CurrencyDirection selects the conversion direction.
type CurrencyDirection string

const (
	// FromFunctional expresses a functional amount in Currency.
	FromFunctional CurrencyDirection = "from_functional"
	// ToFunctional expresses an amount in Currency in the functional currency.
	ToFunctional CurrencyDirection = "to_functional"
)

// CurrencyRequest converts an amount between Currency and the functional currency.
type CurrencyRequest struct {
	Amount       decimal.Decimal   `json:"amount"`
	Currency     string            `json:"currency" validate:"required,alpha,len=3"`
	ExchangeRate decimal.Decimal   `json:"exchangeRate"`
	Direction    CurrencyDirection `json:"direction" validate:"omitempty,oneof=from_functional to_functional"`
}

// CurrencyConversion is the outcome of ConvertCurrency.
type CurrencyConversion struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Rate     decimal.Decimal `json:"rate"`
}

// ConvertCurrency applies the currency converter.
func (s *Service) ConvertCurrency(req CurrencyRequest) (CurrencyConversion, error) {
	functional := s.cfg.FunctionalCurrency
	rate, err := pricing.EffectiveRate(req.Currency, functional, req.ExchangeRate)
	if err != nil {
		return CurrencyConversion{}, err
	}
	if req.Direction == ToFunctional {
		amount, err := pricing.ToFunctional(req.Amount, req.Currency, functional, rate)
		if err != nil {
			return CurrencyConversion{}, err
		}
		return CurrencyConversion{Amount: s.cfg.Round(amount), Currency: strings.ToUpper(functional), Rate: rate}, nil
	}
	amount, err := pricing.Convert(req.Amount, req.Currency, functional, rate)
	if err != nil {
		return CurrencyConversion{}, err
	}
	return CurrencyConversion{Amount: s.cfg.Round(amount), Currency: strings.ToUpper(strings.TrimSpace(req.Currency)), Rate: rate}, nil
}

func (s *Service) item(ctx context.Context, id string) (*pricing.CatalogItem, error) {
	items, err := s.items.Items(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	item, ok := items[id]
	if !ok || item == nil {
		return nil, fmt.Errorf("%w: item %s missing from lookup", ErrInvalidRequest, id)
	}
	return item, nil
}
