/*
Package factory provides JSON to Go pricing-policy conversion.

PURPOSE:
  Converts a JSON policy document into the budget.AlertPolicy and
  budget.TaxTable the engine prices with. Estimators can tune BDI targets,
  margin thresholds and the tax schedule without a rebuild.

JSON SCHEMA:
  {
    "alerts": {
      "minimum_average_overhead_percent": 15,
      "low_margin_percent": 5,
      "overhead_tolerance_points": 3,
      "default_overhead_percent": 25,
      "category_overhead_percent": {"tools": 10}
    },
    "tax": {
      "default_tier": 4,
      "brackets": [
        {"tier": 1, "revenue_ceiling": 180000, "rate": 0.045},
        ...
      ]
    }
  }

DEFAULTS:
  Every omitted field keeps its DefaultAlertPolicy / DefaultTaxTable value.
  A "brackets" list replaces the whole schedule; it is never merged tier by
  tier. Tiers may be omitted and are then numbered in order.

USAGE:
  f := NewPolicyFactory()
  policy, table, err := f.ParsePolicy(jsonString)

  // or from disk
  policy, table, err := LoadPolicyFile("policy.json")

SEE ALSO:
  - budget/alerts.go: AlertPolicy
  - budget/tax.go: TaxTable
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/warp/cost-engine/budget"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a pricing policy.
type PolicyJSON struct {
	Alerts *AlertsJSON `json:"alerts,omitempty"`
	Tax    *TaxJSON    `json:"tax,omitempty"`
}

// AlertsJSON holds alert thresholds (percentages).
type AlertsJSON struct {
	MinimumAverageOverheadPercent *decimal.Decimal           `json:"minimum_average_overhead_percent,omitempty"`
	LowMarginPercent              *decimal.Decimal           `json:"low_margin_percent,omitempty"`
	OverheadTolerancePoints       *decimal.Decimal           `json:"overhead_tolerance_points,omitempty"`
	DefaultOverheadPercent        *decimal.Decimal           `json:"default_overhead_percent,omitempty"`
	CategoryOverheadPercent       map[string]decimal.Decimal `json:"category_overhead_percent,omitempty"`
}

// TaxJSON holds the revenue schedule.
type TaxJSON struct {
	DefaultTier int           `json:"default_tier,omitempty"`
	Brackets    []BracketJSON `json:"brackets,omitempty"`
}

// BracketJSON is one tier of the schedule.
type BracketJSON struct {
	Tier           int             `json:"tier,omitempty"`
	RevenueCeiling decimal.Decimal `json:"revenue_ceiling"`
	Rate           decimal.Decimal `json:"rate"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON policies to Go structs.
type PolicyFactory struct{}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a JSON string into an AlertPolicy and a TaxTable.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (budget.AlertPolicy, budget.TaxTable, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return budget.AlertPolicy{}, budget.TaxTable{}, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON applies pj on top of the defaults and validates the result.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (budget.AlertPolicy, budget.TaxTable, error) {
	policy := budget.DefaultAlertPolicy()
	if pj.Alerts != nil {
		policy = applyAlerts(policy, *pj.Alerts)
	}

	table := budget.DefaultTaxTable()
	if pj.Tax != nil {
		table = applyTax(table, *pj.Tax)
	}

	if err := policy.Validate(); err != nil {
		return budget.AlertPolicy{}, budget.TaxTable{}, fmt.Errorf("invalid alert policy: %w", err)
	}
	if err := table.Validate(); err != nil {
		return budget.AlertPolicy{}, budget.TaxTable{}, fmt.Errorf("invalid tax table: %w", err)
	}
	return policy, table, nil
}

// ToJSON converts a policy and table back to their JSON form.
func (f *PolicyFactory) ToJSON(policy budget.AlertPolicy, table budget.TaxTable) PolicyJSON {
	alerts := &AlertsJSON{
		MinimumAverageOverheadPercent: ptr(policy.MinimumAverageOverheadPercent),
		LowMarginPercent:              ptr(policy.LowMarginPercent),
		OverheadTolerancePoints:       ptr(policy.OverheadTolerancePoints),
		DefaultOverheadPercent:        ptr(policy.DefaultOverheadPercent),
		CategoryOverheadPercent:       make(map[string]decimal.Decimal, len(policy.CategoryOverheadPercent)),
	}
	for c, v := range policy.CategoryOverheadPercent {
		alerts.CategoryOverheadPercent[string(c)] = v
	}

	tax := &TaxJSON{DefaultTier: table.DefaultTier}
	for _, b := range table.Brackets {
		tax.Brackets = append(tax.Brackets, BracketJSON{
			Tier:           b.Tier,
			RevenueCeiling: b.RevenueCeiling,
			Rate:           b.Rate,
		})
	}
	return PolicyJSON{Alerts: alerts, Tax: tax}
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func applyAlerts(p budget.AlertPolicy, aj AlertsJSON) budget.AlertPolicy {
	set := func(dst *decimal.Decimal, src *decimal.Decimal) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.MinimumAverageOverheadPercent, aj.MinimumAverageOverheadPercent)
	set(&p.LowMarginPercent, aj.LowMarginPercent)
	set(&p.OverheadTolerancePoints, aj.OverheadTolerancePoints)
	set(&p.DefaultOverheadPercent, aj.DefaultOverheadPercent)

	if aj.CategoryOverheadPercent != nil {
		p.CategoryOverheadPercent = make(map[budget.CompositionCategory]decimal.Decimal, len(aj.CategoryOverheadPercent))
		for c, v := range aj.CategoryOverheadPercent {
			p.CategoryOverheadPercent[budget.CompositionCategory(c)] = v
		}
	}
	return p
}

func applyTax(t budget.TaxTable, tj TaxJSON) budget.TaxTable {
	if len(tj.Brackets) > 0 {
		t.Brackets = make([]budget.TaxBracket, len(tj.Brackets))
		for i, bj := range tj.Brackets {
			tier := bj.Tier
			if tier == 0 {
				tier = i + 1
			}
			t.Brackets[i] = budget.TaxBracket{Tier: tier, RevenueCeiling: bj.RevenueCeiling, Rate: bj.Rate}
		}
		// A shorter schedule would leave the stock default tier dangling.
		if t.DefaultTier > len(t.Brackets) {
			t.DefaultTier = len(t.Brackets)
		}
	}
	if tj.DefaultTier != 0 {
		t.DefaultTier = tj.DefaultTier
	}
	return t
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

// =============================================================================
// FILES AND PRESETS
// =============================================================================

// LoadPolicyFile reads and parses a policy document. An empty path returns
// the defaults.
func LoadPolicyFile(path string) (budget.AlertPolicy, budget.TaxTable, error) {
	if path == "" {
		return budget.DefaultAlertPolicy(), budget.DefaultTaxTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return budget.AlertPolicy{}, budget.TaxTable{}, fmt.Errorf("read policy file: %w", err)
	}
	return NewPolicyFactory().ParsePolicy(string(data))
}

// DefaultPolicyJSON renders the built-in policy as an editable document.
func DefaultPolicyJSON() string {
	pj := NewPolicyFactory().ToJSON(budget.DefaultAlertPolicy(), budget.DefaultTaxTable())
	data, err := json.MarshalIndent(pj, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("marshal default policy: %v", err))
	}
	return string(data)
}
