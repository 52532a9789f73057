/*
Package labor computes fully loaded labor costs for job positions.

PURPOSE:
  A Position ("cargo") is a job title with a base salary, occupational
  premiums and benefit costs. The labor package turns those raw inputs
  into a monthly labor cost and an hourly cost that budgets use to price
  labor line items.

KEY CONCEPTS IN THIS FILE (types.go):
  - SalaryConfiguration: the single process-wide reference (minimum wage
    reference, social charges rate)
  - PositionInput: what a user types in
  - Derived: what the calculator produces (never hand-edited)
  - Position: the stored record (id + inputs + derived + lifecycle)

INVARIANTS:
  - Derived fields are a pure function of PositionInput and the
    SalaryConfiguration that was current when they were written
  - A configuration change recomputes every stored Position (cascade)

SEE ALSO:
  - calculator.go: the formulas
  - registry.go: CRUD and the configuration cascade
  - repository.go: persistence interface
*/
package labor

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/cost-engine/generic"
)

// =============================================================================
// SALARY CONFIGURATION - Process-wide reference values
// =============================================================================

var (
	// DefaultMinimumWageReference is the reference wage insalubrity premiums
	// are computed from.
	DefaultMinimumWageReference = decimal.NewFromInt(1612)

	// DefaultSocialChargesRate is the employer payroll load (58.7%).
	DefaultSocialChargesRate = decimal.RequireFromString("0.587")
)

// SalaryConfiguration is the singleton every labor cost is computed against.
type SalaryConfiguration struct {
	MinimumWageReference decimal.Decimal `json:"minimum_wage_reference"`
	SocialChargesRate    decimal.Decimal `json:"social_charges_rate"`
	LastUpdated          time.Time       `json:"last_updated"`
}

// DefaultConfiguration is used until a configuration is stored.
func DefaultConfiguration() SalaryConfiguration {
	return SalaryConfiguration{
		MinimumWageReference: DefaultMinimumWageReference,
		SocialChargesRate:    DefaultSocialChargesRate,
	}
}

func (c SalaryConfiguration) Validate() error {
	if !c.MinimumWageReference.IsPositive() {
		return generic.Invalid("minimum_wage_reference", "must be greater than zero")
	}
	if c.SocialChargesRate.IsNegative() || c.SocialChargesRate.GreaterThan(generic.One) {
		return generic.Invalid("social_charges_rate", "must be between 0 and 1")
	}
	return nil
}

// ConfigurationPatch changes some configuration values. Nil fields are kept.
type ConfigurationPatch struct {
	MinimumWageReference *decimal.Decimal `json:"minimum_wage_reference,omitempty"`
	SocialChargesRate    *decimal.Decimal `json:"social_charges_rate,omitempty"`
}

// Apply returns the patched configuration and whether any value that feeds
// labor costs changed.
func (p ConfigurationPatch) Apply(cur SalaryConfiguration, now time.Time) (SalaryConfiguration, bool) {
	next := cur
	if p.MinimumWageReference != nil {
		next.MinimumWageReference = *p.MinimumWageReference
	}
	if p.SocialChargesRate != nil {
		next.SocialChargesRate = *p.SocialChargesRate
	}
	next.LastUpdated = now

	changed := !next.MinimumWageReference.Equal(cur.MinimumWageReference) ||
		!next.SocialChargesRate.Equal(cur.SocialChargesRate)
	return next, changed
}

func (p ConfigurationPatch) IsEmpty() bool {
	return p.MinimumWageReference == nil && p.SocialChargesRate == nil
}

// =============================================================================
// ENUMERATIONS
// =============================================================================

// InsalubrityGrade grades unhealthy working conditions.
type InsalubrityGrade string

const (
	InsalubrityNone    InsalubrityGrade = "none"
	InsalubrityMinimal InsalubrityGrade = "minimal"
	InsalubrityMedium  InsalubrityGrade = "medium"
	InsalubrityMaximum InsalubrityGrade = "maximum"
)

// insalubrityRates is a fixed lookup, never interpolated.
var insalubrityRates = map[InsalubrityGrade]decimal.Decimal{
	InsalubrityNone:    decimal.Zero,
	InsalubrityMinimal: decimal.RequireFromString("0.10"),
	InsalubrityMedium:  decimal.RequireFromString("0.20"),
	InsalubrityMaximum: decimal.RequireFromString("0.40"),
}

// Rate returns the share of the minimum wage reference paid as premium.
func (g InsalubrityGrade) Rate() (decimal.Decimal, bool) {
	r, ok := insalubrityRates[g]
	return r, ok
}

// Category is where a position works.
type Category string

const (
	CategoryFabrication Category = "fabrication"
	CategoryAssembly    Category = "assembly"
	CategoryBoth        Category = "both"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryFabrication, CategoryAssembly, CategoryBoth:
		return true
	}
	return false
}

// Matches reports whether a position of category c shows up under filter.
// A "both" position matches every filter.
func (c Category) Matches(filter Category) bool {
	return c == filter || c == CategoryBoth
}

// =============================================================================
// POSITION
// =============================================================================

// MiscCosts are monthly benefit and overhead costs per worker.
type MiscCosts struct {
	MealBreakfast    decimal.Decimal `json:"meal_breakfast"`
	MealLunch        decimal.Decimal `json:"meal_lunch"`
	MealDinner       decimal.Decimal `json:"meal_dinner"`
	BasicFoodBasket  decimal.Decimal `json:"basic_food_basket"`
	Transport        decimal.Decimal `json:"transport"`
	Uniform          decimal.Decimal `json:"uniform"`
	AdmissionFees    decimal.Decimal `json:"admission_fees"`
	HealthAssistance decimal.Decimal `json:"health_assistance"`
	PPE              decimal.Decimal `json:"ppe"`
	Other            decimal.Decimal `json:"other"`
}

// Meals is the sum of the three meal fields.
func (m MiscCosts) Meals() decimal.Decimal {
	return generic.Sum(m.MealBreakfast, m.MealLunch, m.MealDinner)
}

// Total adds the meals first, then the remaining fields.
func (m MiscCosts) Total() decimal.Decimal {
	return generic.Sum(
		m.Meals(),
		m.BasicFoodBasket,
		m.Transport,
		m.Uniform,
		m.AdmissionFees,
		m.HealthAssistance,
		m.PPE,
		m.Other,
	)
}

func (m MiscCosts) fields() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"meal_breakfast":    m.MealBreakfast,
		"meal_lunch":        m.MealLunch,
		"meal_dinner":       m.MealDinner,
		"basic_food_basket": m.BasicFoodBasket,
		"transport":         m.Transport,
		"uniform":           m.Uniform,
		"admission_fees":    m.AdmissionFees,
		"health_assistance": m.HealthAssistance,
		"ppe":               m.PPE,
		"other":             m.Other,
	}
}

// PositionInput holds the user-editable attributes of a position.
type PositionInput struct {
	Name             string           `json:"name"`
	BaseSalary       decimal.Decimal  `json:"base_salary"`
	HasHazardPay     bool             `json:"has_hazard_pay"`
	InsalubrityGrade InsalubrityGrade `json:"insalubrity_grade"`
	MonthlyHours     decimal.Decimal  `json:"monthly_hours"`
	MiscCosts        MiscCosts        `json:"misc_costs"`
	Category         Category         `json:"category"`
}

// Derived holds the calculator outputs.
type Derived struct {
	HazardPayAmount     decimal.Decimal `json:"hazard_pay_amount"`
	InsalubrityAmount   decimal.Decimal `json:"insalubrity_amount"`
	TotalSalary         decimal.Decimal `json:"total_salary"`
	SocialChargesAmount decimal.Decimal `json:"social_charges_amount"`
	TotalMiscCosts      decimal.Decimal `json:"total_misc_costs"`
	TotalLaborCost      decimal.Decimal `json:"total_labor_cost"`
	HourlyCost          decimal.Decimal `json:"hourly_cost"`
}

// Position is the stored record.
type Position struct {
	ID string `json:"id"`
	PositionInput
	Derived
	State     generic.Lifecycle `json:"state"`
	Version   int               `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (p Position) IsActive() bool { return p.State.IsActive() }

// MiscCostsPatch changes individual misc cost fields.
type MiscCostsPatch struct {
	MealBreakfast    *decimal.Decimal `json:"meal_breakfast,omitempty"`
	MealLunch        *decimal.Decimal `json:"meal_lunch,omitempty"`
	MealDinner       *decimal.Decimal `json:"meal_dinner,omitempty"`
	BasicFoodBasket  *decimal.Decimal `json:"basic_food_basket,omitempty"`
	Transport        *decimal.Decimal `json:"transport,omitempty"`
	Uniform          *decimal.Decimal `json:"uniform,omitempty"`
	AdmissionFees    *decimal.Decimal `json:"admission_fees,omitempty"`
	HealthAssistance *decimal.Decimal `json:"health_assistance,omitempty"`
	PPE              *decimal.Decimal `json:"ppe,omitempty"`
	Other            *decimal.Decimal `json:"other,omitempty"`
}

func (p MiscCostsPatch) apply(m MiscCosts) MiscCosts {
	set := func(dst *decimal.Decimal, src *decimal.Decimal) {
		if src != nil {
			*dst = *src
		}
	}
	set(&m.MealBreakfast, p.MealBreakfast)
	set(&m.MealLunch, p.MealLunch)
	set(&m.MealDinner, p.MealDinner)
	set(&m.BasicFoodBasket, p.BasicFoodBasket)
	set(&m.Transport, p.Transport)
	set(&m.Uniform, p.Uniform)
	set(&m.AdmissionFees, p.AdmissionFees)
	set(&m.HealthAssistance, p.HealthAssistance)
	set(&m.PPE, p.PPE)
	set(&m.Other, p.Other)
	return m
}

// PositionPatch is a partial edit. It is merged onto the stored inputs
// before anything is recomputed.
type PositionPatch struct {
	Name             *string           `json:"name,omitempty"`
	BaseSalary       *decimal.Decimal  `json:"base_salary,omitempty"`
	HasHazardPay     *bool             `json:"has_hazard_pay,omitempty"`
	InsalubrityGrade *InsalubrityGrade `json:"insalubrity_grade,omitempty"`
	MonthlyHours     *decimal.Decimal  `json:"monthly_hours,omitempty"`
	MiscCosts        *MiscCostsPatch   `json:"misc_costs,omitempty"`
	Category         *Category         `json:"category,omitempty"`

	// ExpectedVersion, when set, must match the stored version.
	ExpectedVersion *int `json:"expected_version,omitempty"`
}

// Merge returns in with the patch applied.
func (p PositionPatch) Merge(in PositionInput) PositionInput {
	if p.Name != nil {
		in.Name = *p.Name
	}
	if p.BaseSalary != nil {
		in.BaseSalary = *p.BaseSalary
	}
	if p.HasHazardPay != nil {
		in.HasHazardPay = *p.HasHazardPay
	}
	if p.InsalubrityGrade != nil {
		in.InsalubrityGrade = *p.InsalubrityGrade
	}
	if p.MonthlyHours != nil {
		in.MonthlyHours = *p.MonthlyHours
	}
	if p.MiscCosts != nil {
		in.MiscCosts = p.MiscCosts.apply(in.MiscCosts)
	}
	if p.Category != nil {
		in.Category = *p.Category
	}
	return in
}
