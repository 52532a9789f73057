package budget

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/cost-engine/generic"
)

// Computed returns the item with its subtotal recomputed from its inputs.
func (it LineItem) Computed() LineItem {
	it.Subtotal = it.Quantity.Mul(it.UnitValue)
	return it
}

func (it LineItem) validate(index int) error {
	field := func(name string) string { return fmt.Sprintf("items[%d].%s", index, name) }
	if strings.TrimSpace(it.Description) == "" {
		return generic.Invalid(field("description"), "is required")
	}
	if it.Quantity.IsNegative() {
		return generic.Invalid(field("quantity"), "must not be negative")
	}
	if it.UnitValue.IsNegative() {
		return generic.Invalid(field("unit_value"), "must not be negative")
	}
	return nil
}

// Validate checks the composition inputs.
func (c Composition) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return generic.Invalid("name", "is required")
	}
	if c.OverheadRate.IsNegative() || c.OverheadRate.GreaterThan(generic.One) {
		return generic.Invalid("overhead_rate", "must be between 0 and 1")
	}
	for i, it := range c.Items {
		if err := it.validate(i); err != nil {
			return err
		}
	}
	return nil
}

// Recompute returns a copy of c with every derived field rebuilt from the
// line item inputs. Stored subtotals are never trusted.
func (c Composition) Recompute() Composition {
	items := make([]LineItem, len(c.Items))
	direct := decimal.Zero
	for i, it := range c.Items {
		items[i] = it.Computed()
		direct = direct.Add(items[i].Subtotal)
	}
	c.Items = items
	c.DirectCost = direct
	c.OverheadAmount = direct.Mul(c.OverheadRate)
	c.TotalWithOverhead = direct.Add(c.OverheadAmount)
	return c
}

// ShareOfBudgetDirectCost is the composition's percentage of the budget's
// total direct cost, or zero when the budget has no direct cost.
func ShareOfBudgetDirectCost(c Composition, budgetTotalDirectCost decimal.Decimal) decimal.Decimal {
	return generic.Percent(c.Recompute().DirectCost, budgetTotalDirectCost)
}
