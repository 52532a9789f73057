package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cost-engine/budget"
	"github.com/warp/cost-engine/generic"
	"github.com/warp/cost-engine/labor"
	"github.com/warp/cost-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func d(s string) decimal.Decimal { return generic.MustDecimal(s) }

func welder() labor.PositionInput {
	return labor.PositionInput{
		Name:             "Welder",
		BaseSalary:       d("1650"),
		InsalubrityGrade: labor.InsalubrityMedium,
		MonthlyHours:     d("184"),
		MiscCosts:        labor.MiscCosts{MealLunch: d("20"), Transport: d("26")},
		Category:         labor.CategoryFabrication,
	}
}

// =============================================================================
// LABOR
// =============================================================================

func TestSQLite_PositionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := store.Labor()

	p := labor.Position{
		ID:            "p-1",
		PositionInput: welder(),
		Derived:       labor.Derived{TotalLaborCost: d("3176.1988"), HourlyCost: d("17.26")},
		State:         generic.LifecycleActive,
		Version:       3,
		UpdatedAt:     time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.PutPosition(ctx, p))

	got, err := repo.GetPosition(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Welder", got.Name)
	assert.Equal(t, 3, got.Version)
	assert.Equal(t, "3176.1988", got.TotalLaborCost.String())
	assert.Equal(t, "20", got.MiscCosts.MealLunch.String())
	assert.True(t, got.UpdatedAt.Equal(p.UpdatedAt))

	p.Name = "Senior welder"
	p.Version = 4
	require.NoError(t, repo.PutPosition(ctx, p))
	all, err := repo.ListPositions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Senior welder", all[0].Name)

	require.NoError(t, repo.DeletePosition(ctx, "p-1"))
	_, err = repo.GetPosition(ctx, "p-1")
	assert.True(t, generic.IsNotFound(err))
	assert.True(t, generic.IsNotFound(repo.DeletePosition(ctx, "p-1")))
}

func TestSQLite_ConfigurationSingleton(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := store.Labor()

	_, found, err := repo.GetConfiguration(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	cfg := labor.DefaultConfiguration()
	cfg.MinimumWageReference = d("1700")
	require.NoError(t, repo.PutConfiguration(ctx, cfg))
	require.NoError(t, repo.PutConfiguration(ctx, cfg))

	got, found, err := repo.GetConfiguration(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1700", got.MinimumWageReference.String())
}

func TestSQLite_TxRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := store.Labor()

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx labor.Repository) error {
		if err := tx.PutPosition(ctx, labor.Position{ID: "p-1", PositionInput: welder()}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	all, err := repo.ListPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLite_RegistryCascade(t *testing.T) {
	// GIVEN: A medium-grade position stored in SQLite
	// WHEN: The minimum wage reference changes
	// THEN: The stored record is recomputed inside the same transaction

	store := newTestStore(t)
	ctx := context.Background()
	reg := labor.NewRegistry(store.Labor(), nil)

	p, err := reg.Create(ctx, welder())
	require.NoError(t, err)

	report, err := reg.UpdateConfiguration(ctx, labor.ConfigurationPatch{MinimumWageReference: ptr(d("1700"))})
	require.NoError(t, err)
	assert.Equal(t, []string{p.ID}, report.Succeeded)

	got, err := reg.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "17.6", got.TotalSalary.Sub(p.TotalSalary).String())
	assert.Equal(t, 2, got.Version)
}

func TestSQLite_CascadeIsAtomicForReaders(t *testing.T) {
	// GIVEN: Medium-grade positions in SQLite and readers listing them in a loop
	// WHEN: The minimum wage reference changes repeatedly
	// THEN: No list mixes positions priced with different references

	store := newTestStore(t)
	ctx := context.Background()
	reg := labor.NewRegistry(store.Labor(), nil)
	for i := 0; i < 50; i++ {
		in := welder()
		in.Name = fmt.Sprintf("Welder %02d", i)
		_, err := reg.Create(ctx, in)
		require.NoError(t, err)
	}

	done := make(chan struct{})
	var (
		mu           sync.Mutex
		mixed, reads int
		readErr      error
		wg           sync.WaitGroup
	)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				list, err := reg.List(ctx)
				amounts := map[string]struct{}{}
				for _, p := range list {
					amounts[p.InsalubrityAmount.String()] = struct{}{}
				}
				mu.Lock()
				if err != nil && readErr == nil {
					readErr = err
				}
				reads++
				if len(amounts) > 1 {
					mixed++
				}
				mu.Unlock()

				select {
				case <-done:
					return
				default:
				}
			}
		}()
	}

	var cascadeErr error
	for i := 0; i < 10 && cascadeErr == nil; i++ {
		_, cascadeErr = reg.UpdateConfiguration(ctx, labor.ConfigurationPatch{
			MinimumWageReference: ptr(decimal.NewFromInt(int64(1700 + 10*i))),
		})
	}
	close(done)
	wg.Wait()

	require.NoError(t, cascadeErr)
	require.NoError(t, readErr)
	assert.Zero(t, mixed)
	assert.GreaterOrEqual(t, reads, 4)

	all, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 50)
	for _, p := range all {
		assert.True(t, p.InsalubrityAmount.Equal(d("358")), p.Name) // 1790 x 0.20
	}
}

// =============================================================================
// BUDGETS
// =============================================================================

func TestSQLite_CompositionsFollowBudget(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	repo := store.Budgets()

	err := repo.PutComposition(ctx, budget.Composition{ID: "c-0", BudgetID: "missing", Name: "x"})
	assert.True(t, generic.IsNotFound(err))

	require.NoError(t, repo.PutBudget(ctx, budget.Budget{ID: "b-1", Name: "Warehouse"}))
	require.NoError(t, repo.PutComposition(ctx, budget.Composition{ID: "c-2", BudgetID: "b-1", Name: "Roof", Sequence: 2}))
	require.NoError(t, repo.PutComposition(ctx, budget.Composition{
		ID: "c-1", BudgetID: "b-1", Name: "Structure", Sequence: 1,
		Items: []budget.LineItem{{Description: "beam", Quantity: d("2"), UnitValue: d("10.5")}},
	}))

	comps, err := repo.ListCompositions(ctx, "b-1")
	require.NoError(t, err)
	require.Len(t, comps, 2)
	assert.Equal(t, "c-1", comps[0].ID)
	assert.Equal(t, "10.5", comps[0].Items[0].UnitValue.String())
	assert.NotNil(t, comps[1].Items)

	require.NoError(t, repo.DeleteComposition(ctx, "c-2"))
	assert.True(t, generic.IsNotFound(repo.DeleteComposition(ctx, "c-2")))

	require.NoError(t, repo.DeleteBudget(ctx, "b-1"))
	_, err = repo.GetComposition(ctx, "c-1")
	assert.True(t, generic.IsNotFound(err))

	comps, err = repo.ListCompositions(ctx, "b-1")
	require.NoError(t, err)
	assert.NotNil(t, comps)
	assert.Empty(t, comps)
}

func TestSQLite_BudgetServiceEndToEnd(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := budget.NewService(store.Budgets(), budget.DefaultTaxTable(), budget.DefaultAlertPolicy(), nil)

	b, err := svc.CreateBudget(ctx, budget.BudgetInput{
		Name:       "Fit-out",
		TaxProfile: budget.TaxProfile{RevenueTierRate: d("0.118")},
	})
	require.NoError(t, err)

	_, err = svc.AddComposition(ctx, b.ID, budget.CompositionInput{
		Name:  "Services",
		Items: []budget.LineItem{{Description: "crew", Quantity: d("1"), UnitValue: d("1000")}},
	})
	require.NoError(t, err)

	got, err := svc.GetBudget(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "1118", got.Valuation.FinalSalePrice.String())
	require.Len(t, got.Compositions, 1)

	list, err := svc.ListBudgets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Compositions)
}

func TestSQLite_Reset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Labor().PutPosition(ctx, labor.Position{ID: "p-1"}))
	require.NoError(t, store.Budgets().PutBudget(ctx, budget.Budget{ID: "b-1", Name: "x"}))

	require.NoError(t, store.Reset(ctx))

	positions, err := store.Labor().ListPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
	require.NoError(t, store.Ping(ctx))
}

func ptr[T any](v T) *T { return &v }
