package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LookupFactor returns the number of base units one unit represents. The boolean is false
// when the unit could not be resolved and the pass-through factor of 1 was applied.
func LookupFactor(plan *UnitPlan, unit string) (decimal.Decimal, bool) {
	if plan == nil {
		return decimal.NewFromInt(1), false
	}
	if sameCode(unit, plan.BaseUnit) {
		return decimal.NewFromInt(1), true
	}
	for _, f := range plan.Factors {
		if sameCode(f.Unit, unit) {
			return f.Factor, true
		}
	}
	return decimal.NewFromInt(1), false
}

// FactorFor resolves the conversion factor, falling back to 1 for unknown units or a missing plan.
func FactorFor(plan *UnitPlan, unit string) decimal.Decimal {
	factor, _ := LookupFactor(plan, unit)
	return factor
}

// TotalInBaseUnits reports quantity expressed in the plan's base unit.
func TotalInBaseUnits(quantity decimal.Decimal, plan *UnitPlan, unit string) decimal.Decimal {
	return quantity.Mul(FactorFor(plan, unit))
}

// Validate checks the plan invariants: one factor per unit code, positive factors,
// and an implicit factor of 1 for the base unit.
func (p UnitPlan) Validate() error {
	seen := make(map[string]struct{}, len(p.Factors))
	for _, f := range p.Factors {
		code := normalizeCode(f.Unit)
		if code == "" {
			return fmt.Errorf("plan %s: empty unit code: %w", p.ID, ErrInvalidFactor)
		}
		if _, dup := seen[code]; dup {
			return fmt.Errorf("plan %s unit %s: %w", p.ID, code, ErrDuplicateUnit)
		}
		seen[code] = struct{}{}
		if !f.Factor.IsPositive() {
			return fmt.Errorf("plan %s unit %s factor %s: %w", p.ID, code, f.Factor, ErrInvalidFactor)
		}
		if sameCode(f.Unit, p.BaseUnit) && !f.Factor.Equal(one) {
			return fmt.Errorf("plan %s base unit %s factor %s: %w", p.ID, code, f.Factor, ErrInvalidFactor)
		}
	}
	return nil
}

// PlanID returns the id of the item's unit plan, or "" when it has none.
func (i *CatalogItem) PlanID() string {
	if i == nil || i.Plan == nil {
		return ""
	}
	return i.Plan.ID
}

// ItemFactor resolves unit against the item's base unit first, then its plan.
func ItemFactor(item *CatalogItem, unit string) (decimal.Decimal, bool) {
	if item == nil {
		return LookupFactor(nil, unit)
	}
	if sameCode(unit, item.BaseUnit) {
		return one, true
	}
	return LookupFactor(item.Plan, unit)
}

// ResolveUnit is ItemFactor that also reports an unresolved unit to o.
func ResolveUnit(item *CatalogItem, unit string, o Observer) (decimal.Decimal, bool) {
	factor, ok := ItemFactor(item, unit)
	if !ok && o != nil {
		id := ""
		if item != nil {
			id = item.ID
		}
		o.UnresolvedUnit(id, item.PlanID(), unit)
	}
	return factor, ok
}
