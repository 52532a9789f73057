package budget_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cost-engine/budget"
)

func TestProjectDRE_FromValuation(t *testing.T) {
	v, err := budget.Value(twoCompositionBudget(), budget.DefaultTaxTable())
	require.NoError(t, err)

	dre := budget.ProjectDRE(v)

	assert.Equal(t, "1353.6", dre.GrossRevenue.String())
	assert.Equal(t, "178.6", dre.Taxes.String())
	assert.Equal(t, "1175", dre.NetRevenue.String())
	assert.Equal(t, "1000", dre.DirectCosts.String())
	assert.Equal(t, "175", dre.GrossProfit.String())
	assert.Equal(t, "14.89", dre.GrossMarginPercent.StringFixed(2))
	assert.Equal(t, "175", dre.Overhead.String())
	// Price is built as cost + overhead + taxes, so nothing is left over.
	assert.True(t, dre.NetProfit.IsZero())
	assert.True(t, dre.NetMarginPercent.IsZero())
}

func TestProjectDRE_NegativeProfit(t *testing.T) {
	dre := budget.ProjectDRE(budget.Valuation{
		FinalSalePrice:  d("1000"),
		TotalTaxAmount:  d("100"),
		TotalDirectCost: d("800"),
		TotalOverhead:   d("150"),
	})

	assert.Equal(t, "900", dre.NetRevenue.String())
	assert.Equal(t, "100", dre.GrossProfit.String())
	assert.Equal(t, "-50", dre.NetProfit.String())
	assert.Equal(t, "-5", dre.NetMarginPercent.String())
	assert.Equal(t, "11.11", dre.GrossMarginPercent.StringFixed(2))
}

func TestProjectDRE_MarginSignFollowsProfit(t *testing.T) {
	cases := []budget.Valuation{
		{FinalSalePrice: d("1000"), TotalTaxAmount: d("50"), TotalDirectCost: d("700"), TotalOverhead: d("100")},
		{FinalSalePrice: d("1000"), TotalTaxAmount: d("50"), TotalDirectCost: d("900"), TotalOverhead: d("100")},
		{FinalSalePrice: d("1000"), TotalTaxAmount: d("0"), TotalDirectCost: d("900"), TotalOverhead: d("100")},
	}
	for _, v := range cases {
		dre := budget.ProjectDRE(v)
		assert.Equal(t, dre.NetProfit.Sign(), dre.NetMarginPercent.Sign())
	}
}

func TestProjectDRE_ZeroRevenue(t *testing.T) {
	dre := budget.ProjectDRE(budget.Valuation{})
	assert.True(t, dre.GrossMarginPercent.IsZero())
	assert.True(t, dre.NetMarginPercent.IsZero())
}
