package labor

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/cost-engine/generic"
)

// HazardPayRate is the premium on base salary for hazardous positions.
var HazardPayRate = decimal.RequireFromString("0.30")

// Compute derives every labor cost figure from the inputs and the
// configuration. The steps run in a fixed order and only the hourly cost
// is rounded; intermediate sums keep full precision.
func Compute(in PositionInput, cfg SalaryConfiguration) (Derived, error) {
	if err := validateCostInputs(in); err != nil {
		return Derived{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Derived{}, err
	}

	grade := normalizeGrade(in.InsalubrityGrade)
	tierRate, _ := grade.Rate()

	var d Derived
	if in.HasHazardPay {
		d.HazardPayAmount = in.BaseSalary.Mul(HazardPayRate)
	} else {
		d.HazardPayAmount = decimal.Zero
	}
	d.InsalubrityAmount = cfg.MinimumWageReference.Mul(tierRate)
	d.TotalSalary = generic.Sum(in.BaseSalary, d.HazardPayAmount, d.InsalubrityAmount)
	d.SocialChargesAmount = d.TotalSalary.Mul(cfg.SocialChargesRate)
	d.TotalMiscCosts = in.MiscCosts.Total()
	d.TotalLaborCost = generic.Sum(d.TotalSalary, d.SocialChargesAmount, d.TotalMiscCosts)

	if in.MonthlyHours.IsPositive() {
		d.HourlyCost = generic.RoundMoney(d.TotalLaborCost.Div(in.MonthlyHours))
	} else {
		d.HourlyCost = decimal.Zero
	}
	return d, nil
}

// validateCostInputs rejects inputs the formulas cannot price.
func validateCostInputs(in PositionInput) error {
	if !in.BaseSalary.IsPositive() {
		return generic.Invalid("base_salary", "must be greater than zero")
	}
	if in.MonthlyHours.IsNegative() {
		return generic.Invalid("monthly_hours", "must not be negative")
	}
	if _, ok := normalizeGrade(in.InsalubrityGrade).Rate(); !ok {
		return generic.Invalid("insalubrity_grade", "unknown grade %q", in.InsalubrityGrade)
	}

	fields := in.MiscCosts.fields()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if fields[name].IsNegative() {
			return generic.Invalid("misc_costs."+name, "must not be negative")
		}
	}
	return nil
}

// normalizeGrade treats an omitted grade as none.
func normalizeGrade(g InsalubrityGrade) InsalubrityGrade {
	if g == "" {
		return InsalubrityNone
	}
	return g
}
