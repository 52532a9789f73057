/*
Package budget prices construction budgets.

PURPOSE:
  A Budget ("orcamento") is a set of cost Compositions, each a list of
  priced line items plus an overhead rate (BDI). The budget package turns
  those inputs into direct cost, overhead, taxes and a final sale price,
  and derives the analyses built on top: ABC (Pareto) classification,
  an income-statement projection (DRE) and viability alerts.

KEY CONCEPTS IN THIS FILE (types.go):
  - LineItem: quantity x unit value
  - Composition: line items + overhead rate
  - TaxProfile: which taxes apply (ISS, revenue tier)
  - Budget: compositions + tax profile + optional built area

PIPELINE:
  Composition.Recompute -> Value (valuation.go) -> ProjectDRE (dre.go)
                                                -> EvaluateAlerts (alerts.go)
  ClassifyABC (abc.go) reads line items only and feeds nothing back.

INVARIANTS:
  - Derived fields are pure functions of inputs and are only written by
    Recompute / Value
  - Rates are fractions (0.25); fields named *Percent are 0..100

SEE ALSO:
  - service.go: CRUD that keeps stored derived fields current
  - report.go: one-pass bundle for presentation and export
*/
package budget

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CATEGORIES
// =============================================================================

// CompositionCategory groups compositions for the overhead policy.
type CompositionCategory string

const (
	CategoryTools     CompositionCategory = "tools"
	CategoryLabor     CompositionCategory = "labor"
	CategoryMaterials CompositionCategory = "materials"
	CategoryEquipment CompositionCategory = "equipment"
	CategoryServices  CompositionCategory = "services"
	CategoryOther     CompositionCategory = "other"
)

// ItemCategory classifies a line item.
type ItemCategory string

const (
	ItemMaterial  ItemCategory = "material"
	ItemLabor     ItemCategory = "labor"
	ItemEquipment ItemCategory = "equipment"
	ItemService   ItemCategory = "service"
	ItemOther     ItemCategory = "other"
)

// =============================================================================
// LINE ITEMS AND COMPOSITIONS
// =============================================================================

// LineItem is one priced row of a composition.
type LineItem struct {
	Code        string          `json:"code,omitempty"`
	Description string          `json:"description"`
	Unit        string          `json:"unit,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitValue   decimal.Decimal `json:"unit_value"`
	Category    ItemCategory    `json:"category,omitempty"`

	// Subtotal is derived: Quantity x UnitValue.
	Subtotal decimal.Decimal `json:"subtotal"`
}

// Composition is a group of line items sharing one overhead rate.
type Composition struct {
	ID           string              `json:"id"`
	BudgetID     string              `json:"budget_id"`
	Name         string              `json:"name"`
	Category     CompositionCategory `json:"category"`
	Sequence     int                 `json:"sequence"`
	OverheadRate decimal.Decimal     `json:"overhead_rate"`
	Items        []LineItem          `json:"items"`

	// Derived by Recompute.
	DirectCost        decimal.Decimal `json:"direct_cost"`
	OverheadAmount    decimal.Decimal `json:"overhead_amount"`
	TotalWithOverhead decimal.Decimal `json:"total_with_overhead"`

	UpdatedAt time.Time `json:"updated_at"`
}

// SortCompositions orders compositions by Sequence, then ID.
func SortCompositions(cs []Composition) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Sequence != cs[j].Sequence {
			return cs[i].Sequence < cs[j].Sequence
		}
		return cs[i].ID < cs[j].ID
	})
}

// =============================================================================
// BUDGET
// =============================================================================

// TaxProfile selects the taxes applied on top of the budget subtotal.
type TaxProfile struct {
	ISSEnabled bool            `json:"iss_enabled"`
	ISSRate    decimal.Decimal `json:"iss_rate"`

	// RevenueTier is an explicit bracket selection (1-based). Zero means
	// RevenueTierRate is used as given.
	RevenueTier     int             `json:"revenue_tier,omitempty"`
	RevenueTierRate decimal.Decimal `json:"revenue_tier_rate"`
}

// Budget is a priced proposal.
type Budget struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Client       string           `json:"client,omitempty"`
	TaxProfile   TaxProfile       `json:"tax_profile"`
	TotalArea    *decimal.Decimal `json:"total_area,omitempty"`
	Compositions []Composition    `json:"compositions,omitempty"`

	// Valuation is derived from the compositions and tax profile.
	Valuation Valuation `json:"valuation"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AllItems flattens the line items of every composition, in order, and
// returns the owning composition name for each.
func (b Budget) AllItems() ([]LineItem, []string) {
	var items []LineItem
	var sources []string
	for _, c := range b.Compositions {
		for _, it := range c.Items {
			items = append(items, it)
			sources = append(sources, c.Name)
		}
	}
	return items, sources
}
