package pricing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func cajaPlan() *UnitPlan {
	return &UnitPlan{ID: "P1", BaseUnit: "UND", Factors: []UnitFactor{{Unit: "CAJA", Factor: d("12")}, {Unit: "DOC", Factor: d("6")}}}
}

func TestTotalInBaseUnits(t *testing.T) {
	total := TotalInBaseUnits(d("3"), cajaPlan(), "CAJA")
	require.True(t, total.Equal(d("36")), "got %s", total)
}

func TestLookupFactor(t *testing.T) {
	plan := cajaPlan()

	f, ok := LookupFactor(plan, "und")
	require.True(t, ok)
	require.True(t, f.Equal(d("1")))

	f, ok = LookupFactor(plan, " caja ")
	require.True(t, ok)
	require.True(t, f.Equal(d("12")))

	f, ok = LookupFactor(plan, "PALLET")
	require.False(t, ok)
	require.True(t, f.Equal(d("1")))

	f, ok = LookupFactor(nil, "CAJA")
	require.False(t, ok)
	require.True(t, f.Equal(d("1")))
}

func TestUnconvertibleUnitPassesQuantityThrough(t *testing.T) {
	require.True(t, TotalInBaseUnits(d("7"), nil, "CAJA").Equal(d("7")))
	require.True(t, TotalInBaseUnits(d("7"), cajaPlan(), "PALLET").Equal(d("7")))
}

func TestUnitPlanValidate(t *testing.T) {
	require.NoError(t, cajaPlan().Validate())

	dup := cajaPlan()
	dup.Factors = append(dup.Factors, UnitFactor{Unit: "caja", Factor: d("24")})
	require.True(t, errors.Is(dup.Validate(), ErrDuplicateUnit))

	zero := UnitPlan{ID: "P2", BaseUnit: "UND", Factors: []UnitFactor{{Unit: "CAJA", Factor: d("0")}}}
	require.True(t, errors.Is(zero.Validate(), ErrInvalidFactor))

	base := UnitPlan{ID: "P3", BaseUnit: "UND", Factors: []UnitFactor{{Unit: "UND", Factor: d("2")}}}
	require.True(t, errors.Is(base.Validate(), ErrInvalidFactor))

	baseOne := UnitPlan{ID: "P4", BaseUnit: "UND", Factors: []UnitFactor{{Unit: "UND", Factor: d("1")}}}
	require.NoError(t, baseOne.Validate())
}

type unitEvents struct {
	NopObserver
	got []string
}

func (u *unitEvents) UnresolvedUnit(itemID, planID, unit string) {
	u.got = append(u.got, itemID+"/"+planID+"/"+unit)
}

func TestResolveUnitAgainstItem(t *testing.T) {
	events := &unitEvents{}

	// base unit of an item without a plan resolves without a plan lookup
	planless := &CatalogItem{ID: "NAIL", BaseUnit: "KG"}
	f, ok := ResolveUnit(planless, "kg", events)
	require.True(t, ok)
	require.True(t, f.Equal(d("1")))

	item := &CatalogItem{ID: "SOAP", BaseUnit: "UND", Plan: cajaPlan()}
	f, ok = ResolveUnit(item, "doc", events)
	require.True(t, ok)
	require.True(t, f.Equal(d("6")))

	f, ok = ResolveUnit(item, "PALLET", events)
	require.False(t, ok)
	require.True(t, f.Equal(d("1")))
	_, ok = ResolveUnit(planless, "SACO", events)
	require.False(t, ok)

	require.Equal(t, []string{"SOAP/P1/PALLET", "NAIL//SACO"}, events.got)
	require.Empty(t, (*CatalogItem)(nil).PlanID())
}
