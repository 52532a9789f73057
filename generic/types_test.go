package generic_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cost-engine/generic"
)

func d(s string) decimal.Decimal { return generic.MustDecimal(s) }

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

func TestPercent_GuardsZeroAndNegativeDenominator(t *testing.T) {
	assert.True(t, generic.Percent(d("10"), decimal.Zero).IsZero())
	assert.True(t, generic.Percent(d("10"), d("-5")).IsZero())
	assert.True(t, generic.Percent(d("80"), d("100")).Equal(d("80")))
}

func TestPercent_ExactShareStaysExact(t *testing.T) {
	// 95 of 100 must be exactly 95, not 94.999...
	assert.Equal(t, "95", generic.Percent(d("95"), d("100")).String())
}

func TestSafeDiv(t *testing.T) {
	assert.True(t, generic.SafeDiv(d("10"), decimal.Zero).IsZero())
	assert.True(t, generic.SafeDiv(d("10"), d("4")).Equal(d("2.5")))
}

func TestRoundMoney_HalfAwayFromZero(t *testing.T) {
	assert.Equal(t, "14.48", generic.RoundMoney(d("2664.55").Div(d("184"))).StringFixed(2))
	assert.Equal(t, "0.13", generic.RoundMoney(d("0.125")).StringFixed(2))
	assert.Equal(t, "-0.13", generic.RoundMoney(d("-0.125")).StringFixed(2))
}

func TestSum(t *testing.T) {
	assert.True(t, generic.Sum().IsZero())
	assert.True(t, generic.Sum(d("1.1"), d("2.2"), d("3.3")).Equal(d("6.6")))
}

func TestMustDecimal_PanicsOnGarbage(t *testing.T) {
	assert.Panics(t, func() { generic.MustDecimal("abc") })
}

func TestLifecycle(t *testing.T) {
	assert.True(t, generic.LifecycleActive.Valid())
	assert.True(t, generic.LifecycleArchived.Valid())
	assert.False(t, generic.Lifecycle("pending").Valid())
	assert.False(t, generic.LifecycleArchived.IsActive())
}

func TestNewID_Unique(t *testing.T) {
	assert.NotEqual(t, generic.NewID(), generic.NewID())
}

// =============================================================================
// ERRORS
// =============================================================================

func TestErrors_UnwrapToSentinels(t *testing.T) {
	wrapped := fmt.Errorf("create position: %w", generic.Invalid("base_salary", "must be greater than zero"))
	assert.True(t, errors.Is(wrapped, generic.ErrValidation))
	assert.True(t, generic.IsClientError(wrapped))

	var ve *generic.ValidationError
	require.True(t, errors.As(wrapped, &ve))
	assert.Equal(t, "base_salary", ve.Field)

	nf := &generic.NotFoundError{Kind: "budget", ID: "b-1"}
	assert.True(t, generic.IsNotFound(nf))
	assert.Contains(t, nf.Error(), "b-1")

	assert.True(t, generic.IsClientError(&generic.ArchivedError{Kind: "position", ID: "p"}))
}

func TestCheckVersion(t *testing.T) {
	assert.NoError(t, generic.CheckVersion("position", "p-1", nil, 3))

	three := 3
	assert.NoError(t, generic.CheckVersion("position", "p-1", &three, 3))

	two := 2
	err := generic.CheckVersion("position", "p-1", &two, 3)
	require.Error(t, err)
	assert.True(t, generic.IsConflict(err))

	var ce *generic.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 2, ce.Expected)
	assert.Equal(t, 3, ce.Actual)
}

func TestCascadeFailure_MessageListsFailures(t *testing.T) {
	cf := &generic.CascadeFailure{
		Succeeded: []string{"a", "b"},
		Failed: map[string]error{
			"d": errors.New("boom"),
			"c": errors.New("bad salary"),
		},
	}
	assert.True(t, errors.Is(cf, generic.ErrCascadeFailed))
	assert.Equal(t, "cascade recompute failed for 2 of 4 records (c: bad salary; d: boom)", cf.Error())
}
