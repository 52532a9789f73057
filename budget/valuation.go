package budget

import (
	"github.com/shopspring/decimal"

	"github.com/warp/cost-engine/generic"
)

// CompositionSummary is a composition's contribution to its budget.
type CompositionSummary struct {
	CompositionID           string              `json:"composition_id"`
	Name                    string              `json:"name"`
	Category                CompositionCategory `json:"category"`
	OverheadRate            decimal.Decimal     `json:"overhead_rate"`
	DirectCost              decimal.Decimal     `json:"direct_cost"`
	OverheadAmount          decimal.Decimal     `json:"overhead_amount"`
	TotalWithOverhead       decimal.Decimal     `json:"total_with_overhead"`
	ShareOfBudgetDirectCost decimal.Decimal     `json:"share_of_budget_direct_cost"`
}

// Valuation is the priced view of a budget.
type Valuation struct {
	TotalDirectCost decimal.Decimal `json:"total_direct_cost"`
	TotalOverhead   decimal.Decimal `json:"total_overhead"`
	Subtotal        decimal.Decimal `json:"subtotal"`

	ISSRate         decimal.Decimal `json:"iss_rate"`
	RevenueTierRate decimal.Decimal `json:"revenue_tier_rate"`
	CombinedTaxRate decimal.Decimal `json:"combined_tax_rate"`
	TotalTaxAmount  decimal.Decimal `json:"total_tax_amount"`
	FinalSalePrice  decimal.Decimal `json:"final_sale_price"`

	// AverageOverheadRate is a percentage (0..100).
	AverageOverheadRate decimal.Decimal  `json:"average_overhead_rate"`
	PricePerArea        *decimal.Decimal `json:"price_per_area,omitempty"`

	TaxBracket  TaxBracket  `json:"tax_bracket"`
	NextBracket *TaxBracket `json:"next_bracket,omitempty"`

	Compositions []CompositionSummary `json:"compositions"`
}

func validateBudget(b Budget) error {
	if b.TaxProfile.ISSRate.IsNegative() || b.TaxProfile.ISSRate.GreaterThan(generic.One) {
		return generic.Invalid("tax_profile.iss_rate", "must be between 0 and 1")
	}
	if b.TotalArea != nil && b.TotalArea.IsNegative() {
		return generic.Invalid("total_area", "must not be negative")
	}
	return nil
}

// Value aggregates every composition of b and applies taxes. It is pure:
// compositions are recomputed from their line items, nothing is mutated.
func Value(b Budget, table TaxTable) (Valuation, error) {
	if err := validateBudget(b); err != nil {
		return Valuation{}, err
	}
	bracket, tierRate, err := table.Resolve(b.TaxProfile)
	if err != nil {
		return Valuation{}, err
	}

	comps := make([]Composition, len(b.Compositions))
	direct, overhead := decimal.Zero, decimal.Zero
	for i, c := range b.Compositions {
		comps[i] = c.Recompute()
		direct = direct.Add(comps[i].DirectCost)
		overhead = overhead.Add(comps[i].OverheadAmount)
	}

	v := Valuation{
		TotalDirectCost: direct,
		TotalOverhead:   overhead,
		Subtotal:        direct.Add(overhead),
		ISSRate:         decimal.Zero,
		RevenueTierRate: tierRate,
		TaxBracket:      bracket,
		Compositions:    make([]CompositionSummary, len(comps)),
	}
	if b.TaxProfile.ISSEnabled {
		v.ISSRate = b.TaxProfile.ISSRate
	}
	v.CombinedTaxRate = v.ISSRate.Add(v.RevenueTierRate)
	v.TotalTaxAmount = v.Subtotal.Mul(v.CombinedTaxRate)
	v.FinalSalePrice = v.Subtotal.Add(v.TotalTaxAmount)
	v.AverageOverheadRate = generic.Percent(overhead, direct)

	if b.TotalArea != nil && b.TotalArea.IsPositive() {
		ppa := v.FinalSalePrice.Div(*b.TotalArea)
		v.PricePerArea = &ppa
	}
	if next, ok := table.Next(bracket.Tier); ok {
		v.NextBracket = &next
	}

	for i, c := range comps {
		v.Compositions[i] = CompositionSummary{
			CompositionID:           c.ID,
			Name:                    c.Name,
			Category:                c.Category,
			OverheadRate:            c.OverheadRate,
			DirectCost:              c.DirectCost,
			OverheadAmount:          c.OverheadAmount,
			TotalWithOverhead:       c.TotalWithOverhead,
			ShareOfBudgetDirectCost: generic.Percent(c.DirectCost, direct),
		}
	}
	return v, nil
}
