package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cost-engine/budget"
	"github.com/warp/cost-engine/generic"
	"github.com/warp/cost-engine/labor"
	"github.com/warp/cost-engine/store/memory"
)

func TestLaborView_TxRollsBackOnError(t *testing.T) {
	store := memory.New()
	repo := store.Labor()
	ctx := context.Background()

	require.NoError(t, repo.PutPosition(ctx, labor.Position{ID: "p-1", Version: 1}))

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx labor.Repository) error {
		if err := tx.PutPosition(ctx, labor.Position{ID: "p-2"}); err != nil {
			return err
		}
		if err := tx.PutConfiguration(ctx, labor.DefaultConfiguration()); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = repo.GetPosition(ctx, "p-2")
	assert.True(t, generic.IsNotFound(err))
	_, found, err := repo.GetConfiguration(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLaborView_NestedTxReusesOuter(t *testing.T) {
	repo := memory.New().Labor()
	ctx := context.Background()

	err := repo.WithTx(ctx, func(tx labor.Repository) error {
		return tx.WithTx(ctx, func(inner labor.Repository) error {
			return inner.PutPosition(ctx, labor.Position{ID: "p-1"})
		})
	})
	require.NoError(t, err)

	all, err := repo.ListPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestBudgetView_CompositionsFollowBudget(t *testing.T) {
	repo := memory.New().Budgets()
	ctx := context.Background()

	err := repo.PutComposition(ctx, budget.Composition{ID: "c-0", BudgetID: "missing"})
	assert.True(t, generic.IsNotFound(err))

	require.NoError(t, repo.PutBudget(ctx, budget.Budget{ID: "b-1", Name: "Warehouse"}))
	require.NoError(t, repo.PutComposition(ctx, budget.Composition{ID: "c-2", BudgetID: "b-1", Sequence: 2}))
	require.NoError(t, repo.PutComposition(ctx, budget.Composition{ID: "c-1", BudgetID: "b-1", Sequence: 1}))

	comps, err := repo.ListCompositions(ctx, "b-1")
	require.NoError(t, err)
	require.Len(t, comps, 2)
	assert.Equal(t, "c-1", comps[0].ID)

	require.NoError(t, repo.DeleteBudget(ctx, "b-1"))
	_, err = repo.GetComposition(ctx, "c-1")
	assert.True(t, generic.IsNotFound(err))

	comps, err = repo.ListCompositions(ctx, "b-1")
	require.NoError(t, err)
	assert.NotNil(t, comps)
	assert.Empty(t, comps)
}

func TestBudgetView_ReturnedRecordsDoNotAlias(t *testing.T) {
	repo := memory.New().Budgets()
	ctx := context.Background()

	require.NoError(t, repo.PutBudget(ctx, budget.Budget{ID: "b-1"}))
	require.NoError(t, repo.PutComposition(ctx, budget.Composition{
		ID: "c-1", BudgetID: "b-1",
		Items: []budget.LineItem{{Description: "brick", Quantity: decimal.NewFromInt(10)}},
	}))

	c, err := repo.GetComposition(ctx, "c-1")
	require.NoError(t, err)
	c.Items[0].Description = "changed"

	again, err := repo.GetComposition(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "brick", again.Items[0].Description)
}

func TestBudgetView_PutBudgetDropsCompositions(t *testing.T) {
	repo := memory.New().Budgets()
	ctx := context.Background()

	require.NoError(t, repo.PutBudget(ctx, budget.Budget{
		ID:           "b-1",
		Compositions: []budget.Composition{{ID: "inline"}},
	}))

	b, err := repo.GetBudget(ctx, "b-1")
	require.NoError(t, err)
	assert.Empty(t, b.Compositions)
	_, err = repo.GetComposition(ctx, "inline")
	assert.True(t, generic.IsNotFound(err))
}

func TestStore_Reset(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.Labor().PutPosition(ctx, labor.Position{ID: "p-1"}))
	require.NoError(t, store.Budgets().PutBudget(ctx, budget.Budget{ID: "b-1"}))

	store.Reset()

	positions, err := store.Labor().ListPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
	budgets, err := store.Budgets().ListBudgets(ctx)
	require.NoError(t, err)
	assert.Empty(t, budgets)
}
