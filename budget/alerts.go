package budget

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/cost-engine/generic"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// AlertCode identifies the rule that fired.
type AlertCode string

const (
	AlertNegativeProfit       AlertCode = "negative_profit"
	AlertLowMargin            AlertCode = "low_margin"
	AlertOverheadBelowMinimum AlertCode = "overhead_below_minimum"
	AlertOverheadOutOfPolicy  AlertCode = "overhead_out_of_policy"
)

// Alert is a viability warning with enough context to render a message.
type Alert struct {
	Code            AlertCode       `json:"code"`
	Severity        Severity        `json:"severity"`
	Message         string          `json:"message"`
	CompositionID   string          `json:"composition_id,omitempty"`
	CompositionName string          `json:"composition_name,omitempty"`
	Observed        decimal.Decimal `json:"observed"`
	Expected        decimal.Decimal `json:"expected"`
}

// AlertPolicy holds the thresholds. All values are percentages.
type AlertPolicy struct {
	MinimumAverageOverheadPercent decimal.Decimal                         `json:"minimum_average_overhead_percent"`
	LowMarginPercent              decimal.Decimal                         `json:"low_margin_percent"`
	OverheadTolerancePoints       decimal.Decimal                         `json:"overhead_tolerance_points"`
	DefaultOverheadPercent        decimal.Decimal                         `json:"default_overhead_percent"`
	CategoryOverheadPercent       map[CompositionCategory]decimal.Decimal `json:"category_overhead_percent"`
}

// DefaultAlertPolicy: BDI at least 15% on average, margins under 5% flagged,
// composition BDI within 3 points of 10% (tools) or 25% (everything else).
func DefaultAlertPolicy() AlertPolicy {
	return AlertPolicy{
		MinimumAverageOverheadPercent: decimal.NewFromInt(15),
		LowMarginPercent:              decimal.NewFromInt(5),
		OverheadTolerancePoints:       decimal.NewFromInt(3),
		DefaultOverheadPercent:        decimal.NewFromInt(25),
		CategoryOverheadPercent: map[CompositionCategory]decimal.Decimal{
			CategoryTools: decimal.NewFromInt(10),
		},
	}
}

// ExpectedOverheadPercent is the policy BDI for a composition category.
func (p AlertPolicy) ExpectedOverheadPercent(c CompositionCategory) decimal.Decimal {
	if v, ok := p.CategoryOverheadPercent[c]; ok {
		return v
	}
	return p.DefaultOverheadPercent
}

// Validate rejects negative thresholds.
func (p AlertPolicy) Validate() error {
	checks := []struct {
		name  string
		value decimal.Decimal
	}{
		{"minimum_average_overhead_percent", p.MinimumAverageOverheadPercent},
		{"low_margin_percent", p.LowMarginPercent},
		{"overhead_tolerance_points", p.OverheadTolerancePoints},
		{"default_overhead_percent", p.DefaultOverheadPercent},
	}
	for _, c := range checks {
		if c.value.IsNegative() {
			return generic.Invalid(c.name, "must not be negative")
		}
	}
	for c, v := range p.CategoryOverheadPercent {
		if v.IsNegative() {
			return generic.Invalid("category_overhead_percent."+string(c), "must not be negative")
		}
	}
	return nil
}

// EvaluateAlerts runs every rule independently; several can fire at once.
// It reads its inputs only.
func EvaluateAlerts(b Budget, v Valuation, d DRE, p AlertPolicy) []Alert {
	alerts := []Alert{}

	if d.NetProfit.IsNegative() {
		alerts = append(alerts, Alert{
			Code:     AlertNegativeProfit,
			Severity: SeverityError,
			Message:  fmt.Sprintf("Net profit is negative (%s)", d.NetProfit.StringFixed(2)),
			Observed: d.NetProfit,
			Expected: decimal.Zero,
		})
	}

	if d.NetMarginPercent.IsPositive() && d.NetMarginPercent.LessThan(p.LowMarginPercent) {
		alerts = append(alerts, Alert{
			Code:     AlertLowMargin,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("Net margin of %s%% is below %s%%",
				d.NetMarginPercent.StringFixed(2), p.LowMarginPercent.StringFixed(2)),
			Observed: d.NetMarginPercent,
			Expected: p.LowMarginPercent,
		})
	}

	if v.AverageOverheadRate.LessThan(p.MinimumAverageOverheadPercent) {
		alerts = append(alerts, Alert{
			Code:     AlertOverheadBelowMinimum,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("Average BDI of %s%% is below the %s%% minimum",
				v.AverageOverheadRate.StringFixed(2), p.MinimumAverageOverheadPercent.StringFixed(2)),
			Observed: v.AverageOverheadRate,
			Expected: p.MinimumAverageOverheadPercent,
		})
	}

	for _, c := range b.Compositions {
		observed := generic.FractionToPercent(c.OverheadRate)
		expected := p.ExpectedOverheadPercent(c.Category)
		if observed.Sub(expected).Abs().LessThanOrEqual(p.OverheadTolerancePoints) {
			continue
		}
		alerts = append(alerts, Alert{
			Code:     AlertOverheadOutOfPolicy,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("Composition %q has BDI %s%%, policy is %s%% (+/- %s)",
				c.Name, observed.StringFixed(2), expected.StringFixed(2), p.OverheadTolerancePoints.StringFixed(2)),
			CompositionID:   c.ID,
			CompositionName: c.Name,
			Observed:        observed,
			Expected:        expected,
		})
	}
	return alerts
}

// HasErrors reports whether any alert has error severity.
func HasErrors(alerts []Alert) bool {
	for _, a := range alerts {
		if a.Severity == SeverityError {
			return true
		}
	}
	return false
}
