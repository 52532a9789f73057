package budget

import "context"

// Repository persists budgets and their compositions.
// See generic/store.go for the contract every implementation follows.
type Repository interface {
	GetBudget(ctx context.Context, id string) (Budget, error)
	ListBudgets(ctx context.Context) ([]Budget, error)

	// PutBudget stores the header and valuation; Compositions is ignored.
	PutBudget(ctx context.Context, b Budget) error

	// DeleteBudget also removes the budget's compositions.
	DeleteBudget(ctx context.Context, id string) error

	GetComposition(ctx context.Context, id string) (Composition, error)

	// ListCompositions returns the budget's compositions ordered by Sequence.
	ListCompositions(ctx context.Context, budgetID string) ([]Composition, error)

	// PutComposition fails with NotFoundError when the budget doesn't exist.
	PutComposition(ctx context.Context, c Composition) error
	DeleteComposition(ctx context.Context, id string) error

	WithTx(ctx context.Context, fn func(Repository) error) error
}
