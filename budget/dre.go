package budget

import (
	"github.com/shopspring/decimal"

	"github.com/warp/cost-engine/generic"
)

// DRE is an income-statement projection of a valuation.
type DRE struct {
	GrossRevenue       decimal.Decimal `json:"gross_revenue"`
	Taxes              decimal.Decimal `json:"taxes"`
	NetRevenue         decimal.Decimal `json:"net_revenue"`
	DirectCosts        decimal.Decimal `json:"direct_costs"`
	GrossProfit        decimal.Decimal `json:"gross_profit"`
	GrossMarginPercent decimal.Decimal `json:"gross_margin_percent"`
	Overhead           decimal.Decimal `json:"overhead"`
	NetProfit          decimal.Decimal `json:"net_profit"`
	NetMarginPercent   decimal.Decimal `json:"net_margin_percent"`
}

// ProjectDRE derives the income statement. Gross margin is over net
// revenue; net margin is over the final sale price. Either is zero when its
// denominator is not positive.
func ProjectDRE(v Valuation) DRE {
	netRevenue := v.FinalSalePrice.Sub(v.TotalTaxAmount)
	grossProfit := netRevenue.Sub(v.TotalDirectCost)
	netProfit := grossProfit.Sub(v.TotalOverhead)

	return DRE{
		GrossRevenue:       v.FinalSalePrice,
		Taxes:              v.TotalTaxAmount,
		NetRevenue:         netRevenue,
		DirectCosts:        v.TotalDirectCost,
		GrossProfit:        grossProfit,
		GrossMarginPercent: generic.Percent(grossProfit, netRevenue),
		Overhead:           v.TotalOverhead,
		NetProfit:          netProfit,
		NetMarginPercent:   generic.Percent(netProfit, v.FinalSalePrice),
	}
}
