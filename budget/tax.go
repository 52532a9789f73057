package budget

import (
	"github.com/shopspring/decimal"

	"github.com/warp/cost-engine/generic"
)

// =============================================================================
// TAX BRACKETS - Progressive revenue schedule
// =============================================================================

// RateMatchTolerance is how far (as a fraction, 0.5 percentage points) a
// stored rate may be from a bracket rate and still resolve to it.
var RateMatchTolerance = decimal.RequireFromString("0.005")

// DefaultTier is resolved when a rate matches no bracket.
const DefaultTier = 4

// TaxBracket is one tier of the revenue schedule.
type TaxBracket struct {
	Tier           int             `json:"tier"`
	RevenueCeiling decimal.Decimal `json:"revenue_ceiling"`
	Rate           decimal.Decimal `json:"rate"`
}

// TaxTable is an ordered progressive schedule.
type TaxTable struct {
	Brackets    []TaxBracket `json:"brackets"`
	DefaultTier int          `json:"default_tier"`
}

// DefaultTaxTable is the six-tier simplified regime for construction
// services, keyed by cumulative annual revenue.
func DefaultTaxTable() TaxTable {
	return TaxTable{
		Brackets: []TaxBracket{
			{Tier: 1, RevenueCeiling: decimal.RequireFromString("180000"), Rate: decimal.RequireFromString("0.045")},
			{Tier: 2, RevenueCeiling: decimal.RequireFromString("360000"), Rate: decimal.RequireFromString("0.09")},
			{Tier: 3, RevenueCeiling: decimal.RequireFromString("720000"), Rate: decimal.RequireFromString("0.102")},
			{Tier: 4, RevenueCeiling: decimal.RequireFromString("1800000"), Rate: decimal.RequireFromString("0.14")},
			{Tier: 5, RevenueCeiling: decimal.RequireFromString("3600000"), Rate: decimal.RequireFromString("0.22")},
			{Tier: 6, RevenueCeiling: decimal.RequireFromString("4800000"), Rate: decimal.RequireFromString("0.33")},
		},
		DefaultTier: DefaultTier,
	}
}

// Validate checks the schedule is numbered 1..n and never decreases.
func (t TaxTable) Validate() error {
	if len(t.Brackets) == 0 {
		return generic.Invalid("tax_brackets", "at least one bracket is required")
	}
	for i, b := range t.Brackets {
		if b.Tier != i+1 {
			return generic.Invalid("tax_brackets", "tier %d is out of order (want %d)", b.Tier, i+1)
		}
		if b.Rate.IsNegative() || b.Rate.GreaterThan(generic.One) {
			return generic.Invalid("tax_brackets", "tier %d rate must be between 0 and 1", b.Tier)
		}
		if !b.RevenueCeiling.IsPositive() {
			return generic.Invalid("tax_brackets", "tier %d ceiling must be positive", b.Tier)
		}
		if i == 0 {
			continue
		}
		prev := t.Brackets[i-1]
		if b.RevenueCeiling.LessThanOrEqual(prev.RevenueCeiling) {
			return generic.Invalid("tax_brackets", "tier %d ceiling must exceed tier %d", b.Tier, prev.Tier)
		}
		if b.Rate.LessThan(prev.Rate) {
			return generic.Invalid("tax_brackets", "tier %d rate is lower than tier %d", b.Tier, prev.Tier)
		}
	}
	if t.DefaultTier < 1 || t.DefaultTier > len(t.Brackets) {
		return generic.Invalid("default_tier", "must be between 1 and %d", len(t.Brackets))
	}
	return nil
}

// ByTier resolves an explicit selection.
func (t TaxTable) ByTier(tier int) (TaxBracket, error) {
	if tier < 1 || tier > len(t.Brackets) {
		return TaxBracket{}, generic.Invalid("revenue_tier", "tier %d does not exist (1-%d)", tier, len(t.Brackets))
	}
	return t.Brackets[tier-1], nil
}

// ByRate returns the bracket whose rate is nearest to rate, provided it is
// within RateMatchTolerance. Otherwise it returns the default tier.
// Equal distances resolve to the lower tier.
func (t TaxTable) ByRate(rate decimal.Decimal) TaxBracket {
	best := -1
	var bestDiff decimal.Decimal
	for i, b := range t.Brackets {
		diff := b.Rate.Sub(rate).Abs()
		if best == -1 || diff.LessThan(bestDiff) {
			best, bestDiff = i, diff
		}
	}
	if best >= 0 && bestDiff.LessThanOrEqual(RateMatchTolerance) {
		return t.Brackets[best]
	}
	return t.defaultBracket()
}

func (t TaxTable) defaultBracket() TaxBracket {
	if b, err := t.ByTier(t.DefaultTier); err == nil {
		return b
	}
	if len(t.Brackets) == 0 {
		return TaxBracket{}
	}
	return t.Brackets[len(t.Brackets)-1]
}

// Next returns the bracket after tier, if there is one.
func (t TaxTable) Next(tier int) (TaxBracket, bool) {
	if tier < 1 || tier >= len(t.Brackets) {
		return TaxBracket{}, false
	}
	return t.Brackets[tier], true
}

// ForRevenue returns the first bracket whose ceiling covers revenue.
func (t TaxTable) ForRevenue(revenue decimal.Decimal) (TaxBracket, error) {
	if revenue.IsNegative() {
		return TaxBracket{}, generic.Invalid("annual_revenue", "must not be negative")
	}
	for _, b := range t.Brackets {
		if revenue.LessThanOrEqual(b.RevenueCeiling) {
			return b, nil
		}
	}
	return TaxBracket{}, generic.Invalid("annual_revenue", "exceeds the last bracket ceiling")
}

// Resolve returns the bracket for the profile and the revenue-tier rate to
// charge. An explicit tier charges that tier's rate; otherwise the stored
// rate is charged as is and the bracket is matched by rate for display.
func (t TaxTable) Resolve(p TaxProfile) (TaxBracket, decimal.Decimal, error) {
	if p.RevenueTier != 0 {
		b, err := t.ByTier(p.RevenueTier)
		if err != nil {
			return TaxBracket{}, decimal.Zero, err
		}
		return b, b.Rate, nil
	}
	if p.RevenueTierRate.IsNegative() || p.RevenueTierRate.GreaterThan(generic.One) {
		return TaxBracket{}, decimal.Zero, generic.Invalid("revenue_tier_rate", "must be between 0 and 1")
	}
	return t.ByRate(p.RevenueTierRate), p.RevenueTierRate, nil
}
