/*
Package generic provides the shared kernel of the cost engine.

PURPOSE:
  Domain-agnostic building blocks used by the labor and budget packages:
  decimal arithmetic helpers, record identity, lifecycle state and the
  error taxonomy. Nothing in this package knows what a Position or a
  Budget is.

KEY CONCEPTS IN THIS FILE (types.go):
  - Decimal helpers: percentages, money rounding, safe division
  - Lifecycle: explicit record state (active, archived) instead of a flag
  - Identity: uuid-based record ids and an injectable clock

DESIGN PRINCIPLES:
  1. Precision: all money and rates are decimal.Decimal, never float64
  2. Rounding happens once, at the edge that owns it (hourly cost, display)
  3. Division is always guarded: a zero or negative denominator yields zero

USAGE:
  share := generic.Percent(part, total) // 0 when total <= 0
  cost  := generic.RoundMoney(total.Div(hours))

SEE ALSO:
  - errors.go: ValidationError, NotFoundError, ConflictError, CascadeFailure
  - labor/calculator.go: labor cost formulas built on these helpers
  - budget/valuation.go: budget aggregation built on these helpers
*/
package generic

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// MoneyPlaces is the number of decimal places money is rounded to.
const MoneyPlaces int32 = 2

var (
	// Hundred converts fractions to percentages.
	Hundred = decimal.NewFromInt(100)

	// One is the upper bound of every fractional rate.
	One = decimal.NewFromInt(1)
)

// MustDecimal parses a decimal literal. It panics on malformed input and is
// meant for constants and tests.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("generic: invalid decimal literal %q: %v", s, err))
	}
	return d
}

// RoundMoney rounds half away from zero to two decimal places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// SafeDiv returns num/den, or zero when den <= 0.
func SafeDiv(num, den decimal.Decimal) decimal.Decimal {
	if !den.IsPositive() {
		return decimal.Zero
	}
	return num.Div(den)
}

// Percent returns part/whole x 100, or zero when whole <= 0.
// The multiplication happens first so exact shares (80/100) stay exact.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Mul(Hundred).Div(whole)
}

// FractionToPercent converts 0.25 to 25.
func FractionToPercent(f decimal.Decimal) decimal.Decimal {
	return f.Mul(Hundred)
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Lifecycle is the state of a soft-deletable record.
type Lifecycle string

const (
	LifecycleActive   Lifecycle = "active"
	LifecycleArchived Lifecycle = "archived"
)

func (l Lifecycle) Valid() bool {
	return l == LifecycleActive || l == LifecycleArchived
}

func (l Lifecycle) IsActive() bool { return l == LifecycleActive }

// =============================================================================
// IDENTITY AND TIME
// =============================================================================

// NewID returns a random record id.
func NewID() string {
	return uuid.NewString()
}

// Clock returns the current time. Services take one so tests can pin time.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
