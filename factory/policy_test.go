package factory_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cost-engine/budget"
	"github.com/warp/cost-engine/factory"
	"github.com/warp/cost-engine/generic"
)

func TestParsePolicy_EmptyDocumentKeepsDefaults(t *testing.T) {
	policy, table, err := factory.NewPolicyFactory().ParsePolicy(`{}`)
	require.NoError(t, err)

	assert.Equal(t, budget.DefaultAlertPolicy(), policy)
	assert.Equal(t, budget.DefaultTaxTable(), table)
}

func TestParsePolicy_OverridesSelectedThresholds(t *testing.T) {
	// GIVEN: A document changing the minimum BDI and the tools target
	// WHEN: Parsed
	// THEN: Only those values change

	policy, _, err := factory.NewPolicyFactory().ParsePolicy(`{
		"alerts": {
			"minimum_average_overhead_percent": 18,
			"category_overhead_percent": {"tools": 12, "labor": "30"}
		}
	}`)
	require.NoError(t, err)

	assert.Equal(t, "18", policy.MinimumAverageOverheadPercent.String())
	assert.Equal(t, "5", policy.LowMarginPercent.String())
	assert.Equal(t, "12", policy.ExpectedOverheadPercent(budget.CategoryTools).String())
	assert.Equal(t, "30", policy.ExpectedOverheadPercent(budget.CategoryLabor).String())
	assert.Equal(t, "25", policy.ExpectedOverheadPercent(budget.CategoryMaterials).String())
}

func TestParsePolicy_ReplacesTaxSchedule(t *testing.T) {
	_, table, err := factory.NewPolicyFactory().ParsePolicy(`{
		"tax": {
			"brackets": [
				{"revenue_ceiling": 100000, "rate": 0.06},
				{"revenue_ceiling": 500000, "rate": 0.11}
			]
		}
	}`)
	require.NoError(t, err)

	require.Len(t, table.Brackets, 2)
	assert.Equal(t, 2, table.Brackets[1].Tier)
	assert.Equal(t, 2, table.DefaultTier)
	assert.Equal(t, "0.11", table.Brackets[1].Rate.String())
}

func TestParsePolicy_RejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"negative threshold", `{"alerts": {"low_margin_percent": -1}}`},
		{"decreasing rates", `{"tax": {"brackets": [
			{"revenue_ceiling": 100, "rate": 0.2},
			{"revenue_ceiling": 200, "rate": 0.1}]}}`},
		{"default tier out of range", `{"tax": {"default_tier": 9}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := factory.NewPolicyFactory().ParsePolicy(tc.json)
			assert.ErrorIs(t, err, generic.ErrValidation)
		})
	}

	_, _, err := factory.NewPolicyFactory().ParsePolicy(`{not json`)
	assert.Error(t, err)
}

func TestDefaultPolicyJSON_ParsesBackToDefaults(t *testing.T) {
	policy, table, err := factory.NewPolicyFactory().ParsePolicy(factory.DefaultPolicyJSON())
	require.NoError(t, err)

	assert.True(t, policy.MinimumAverageOverheadPercent.Equal(budget.DefaultAlertPolicy().MinimumAverageOverheadPercent))
	require.Len(t, table.Brackets, 6)
	assert.True(t, table.Brackets[5].Rate.Equal(budget.DefaultTaxTable().Brackets[5].Rate))
	assert.Equal(t, budget.DefaultTier, table.DefaultTier)
}

func TestLoadPolicyFile(t *testing.T) {
	policy, _, err := factory.LoadPolicyFile("")
	require.NoError(t, err)
	assert.Equal(t, "15", policy.MinimumAverageOverheadPercent.String())

	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"alerts": {"low_margin_percent": 7.5}}`), 0o600))

	policy, _, err = factory.LoadPolicyFile(path)
	require.NoError(t, err)
	assert.Equal(t, "7.5", policy.LowMarginPercent.String())

	_, _, err = factory.LoadPolicyFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
