/*
service.go - Budget and composition CRUD

PURPOSE:
  The Service is the only writer of Budget and Composition records. Every
  write recomputes the touched composition and re-values its budget in
  the same repository transaction, so a stored budget's valuation always
  matches its stored compositions.

OPERATIONS:
  Budgets:       CreateBudget, GetBudget, ListBudgets, UpdateBudget, DeleteBudget
  Compositions:  AddComposition, GetComposition, UpdateComposition, RemoveComposition
  Analysis:      Report (valuation + DRE + ABC + alerts in one pass)

VERSIONING:
  Budget.Version increments on every write, including composition edits
  (they change the valuation). BudgetPatch.ExpectedVersion turns a stale
  edit into a ConflictError.

SEE ALSO:
  - valuation.go: Value
  - report.go: BuildReport
  - repository.go: persistence interface
*/
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/cost-engine/generic"
)

const (
	budgetKind      = "budget"
	compositionKind = "composition"
)

// Service manages budgets on top of a Repository.
type Service struct {
	repo   Repository
	taxes  TaxTable
	policy AlertPolicy
	logger *slog.Logger

	// Now stamps records and reports. Defaults to the wall clock.
	Now generic.Clock
}

// NewService creates a service. A nil logger discards output.
func NewService(repo Repository, taxes TaxTable, policy AlertPolicy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		repo:   repo,
		taxes:  taxes,
		policy: policy,
		logger: logger.With("component", "budget_service"),
		Now:    generic.SystemClock,
	}
}

// TaxTable returns the schedule budgets are taxed with.
func (s *Service) TaxTable() TaxTable { return s.taxes }

// AlertPolicy returns the thresholds reports are evaluated with.
func (s *Service) AlertPolicy() AlertPolicy { return s.policy }

// =============================================================================
// INPUTS
// =============================================================================

// BudgetInput holds the editable budget header.
type BudgetInput struct {
	Name       string           `json:"name"`
	Client     string           `json:"client,omitempty"`
	TaxProfile TaxProfile       `json:"tax_profile"`
	TotalArea  *decimal.Decimal `json:"total_area,omitempty"`
}

// BudgetPatch is a partial header edit.
type BudgetPatch struct {
	Name           *string          `json:"name,omitempty"`
	Client         *string          `json:"client,omitempty"`
	TaxProfile     *TaxProfile      `json:"tax_profile,omitempty"`
	TotalArea      *decimal.Decimal `json:"total_area,omitempty"`
	ClearTotalArea bool             `json:"clear_total_area,omitempty"`

	ExpectedVersion *int `json:"expected_version,omitempty"`
}

func (p BudgetPatch) apply(b Budget) Budget {
	if p.Name != nil {
		b.Name = *p.Name
	}
	if p.Client != nil {
		b.Client = *p.Client
	}
	if p.TaxProfile != nil {
		b.TaxProfile = *p.TaxProfile
	}
	if p.ClearTotalArea {
		b.TotalArea = nil
	} else if p.TotalArea != nil {
		area := *p.TotalArea
		b.TotalArea = &area
	}
	return b
}

// CompositionInput holds the editable fields of a new composition.
type CompositionInput struct {
	Name         string              `json:"name"`
	Category     CompositionCategory `json:"category"`
	OverheadRate decimal.Decimal     `json:"overhead_rate"`
	Items        []LineItem          `json:"items"`
}

// CompositionPatch is a partial composition edit. Items, when present,
// replaces the whole item list.
type CompositionPatch struct {
	Name         *string              `json:"name,omitempty"`
	Category     *CompositionCategory `json:"category,omitempty"`
	OverheadRate *decimal.Decimal     `json:"overhead_rate,omitempty"`
	Items        *[]LineItem          `json:"items,omitempty"`
}

func (p CompositionPatch) apply(c Composition) Composition {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Category != nil {
		c.Category = *p.Category
	}
	if p.OverheadRate != nil {
		c.OverheadRate = *p.OverheadRate
	}
	if p.Items != nil {
		c.Items = append([]LineItem(nil), (*p.Items)...)
	}
	return c
}

// =============================================================================
// BUDGETS
// =============================================================================

// CreateBudget stores a new, empty budget.
func (s *Service) CreateBudget(ctx context.Context, in BudgetInput) (Budget, error) {
	b := Budget{
		ID:         generic.NewID(),
		Name:       strings.TrimSpace(in.Name),
		Client:     strings.TrimSpace(in.Client),
		TaxProfile: in.TaxProfile,
		TotalArea:  in.TotalArea,
		CreatedAt:  s.Now(),
	}
	if b.Name == "" {
		return Budget{}, generic.Invalid("name", "is required")
	}

	var created Budget
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		var err error
		created, err = s.revalue(ctx, tx, b)
		return err
	})
	if err != nil {
		return Budget{}, fmt.Errorf("create budget: %w", err)
	}

	s.logger.Info("budget created", "id", created.ID, "name", created.Name)
	return created, nil
}

// GetBudget returns a budget with its compositions, valued with the
// service's current tax table.
func (s *Service) GetBudget(ctx context.Context, id string) (Budget, error) {
	var b Budget
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		var err error
		b, err = loadBudget(ctx, tx, id)
		return err
	})
	if err != nil {
		return Budget{}, err
	}
	return s.current(b), nil
}

// ListBudgets returns budget headers (no compositions) valued with the
// service's current tax table.
func (s *Service) ListBudgets(ctx context.Context) ([]Budget, error) {
	var budgets []Budget
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		headers, err := tx.ListBudgets(ctx)
		if err != nil {
			return err
		}
		budgets = make([]Budget, 0, len(headers))
		for _, b := range headers {
			if b, err = loadBudget(ctx, tx, b.ID); err != nil {
				return err
			}
			b = s.current(b)
			b.Compositions = nil
			budgets = append(budgets, b)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return budgets, nil
}

// current replaces the stored valuation with one computed from the current
// tax table, so reads agree with Report and the exports. A budget the table
// can no longer value keeps its stored figures.
func (s *Service) current(b Budget) Budget {
	v, err := Value(b, s.taxes)
	if err != nil {
		s.logger.Warn("budget kept stored valuation", "id", b.ID, "error", err)
		return b
	}
	b.Valuation = v
	return b
}

// =============================================================================
// COMPOSITIONS
// =============================================================================

// AddComposition appends a composition to a budget.
func (s *Service) AddComposition(ctx context.Context, budgetID string, in CompositionInput) (Composition, error) {
	c := Composition{
		ID:           generic.NewID(),
		BudgetID:     budgetID,
		Name:         strings.TrimSpace(in.Name),
		Sequence:     1,
		Category:     in.Category,
		OverheadRate: in.OverheadRate,
		Items:        append([]LineItem(nil), in.Items...),
	}
	if c.Category == "" {
		c.Category = CategoryOther
	}
	if err := c.Validate(); err != nil {
		return Composition{}, err
	}

	err := s.repo.WithTx(ctx, func(tx Repository) error {
		b, err := tx.GetBudget(ctx, budgetID)
		if err != nil {
			return err
		}
		existing, err := tx.ListCompositions(ctx, budgetID)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.Sequence >= c.Sequence {
				c.Sequence = e.Sequence + 1
			}
		}
		c.UpdatedAt = s.Now()
		c = c.Recompute()
		if err := tx.PutComposition(ctx, c); err != nil {
			return err
		}
		_, err = s.revalue(ctx, tx, b)
		return err
	})
	if err != nil {
		return Composition{}, fmt.Errorf("add composition to budget %s: %w", budgetID, err)
	}

	s.logger.Info("composition added", "budget_id", budgetID, "id", c.ID,
		"direct_cost", c.DirectCost.StringFixed(2))
	return c, nil
}

// GetComposition returns one composition of a budget.
func (s *Service) GetComposition(ctx context.Context, budgetID, id string) (Composition, error) {
	c, err := s.repo.GetComposition(ctx, id)
	if err != nil {
		return Composition{}, err
	}
	if c.BudgetID != budgetID {
		return Composition{}, &generic.NotFoundError{Kind: compositionKind, ID: id}
	}
	return c, nil
}

// UpdateComposition applies patch, recomputes the composition and
// re-values its budget.
func (s *Service) UpdateComposition(ctx context.Context, budgetID, id string, patch CompositionPatch) (Composition, error) {
	var updated Composition
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		stored, err := tx.GetComposition(ctx, id)
		if err != nil {
			return err
		}
		if stored.BudgetID != budgetID {
			return &generic.NotFoundError{Kind: compositionKind, ID: id}
		}
		next := patch.apply(stored)
		next.Name = strings.TrimSpace(next.Name)
		if err := next.Validate(); err != nil {
			return err
		}
		next.UpdatedAt = s.Now()
		updated = next.Recompute()
		if err := tx.PutComposition(ctx, updated); err != nil {
			return err
		}
		b, err := tx.GetBudget(ctx, budgetID)
		if err != nil {
			return err
		}
		_, err = s.revalue(ctx, tx, b)
		return err
	})
	if err != nil {
		return Composition{}, fmt.Errorf("update composition %s: %w", id, err)
	}

	s.logger.Info("composition updated", "budget_id", budgetID, "id", id,
		"direct_cost", updated.DirectCost.StringFixed(2))
	return updated, nil
}

// RemoveComposition deletes a composition and re-values its budget.
func (s *Service) RemoveComposition(ctx context.Context, budgetID, id string) error {
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		stored, err := tx.GetComposition(ctx, id)
		if err != nil {
			return err
		}
		if stored.BudgetID != budgetID {
			return &generic.NotFoundError{Kind: compositionKind, ID: id}
		}
		if err := tx.DeleteComposition(ctx, id); err != nil {
			return err
		}
		b, err := tx.GetBudget(ctx, budgetID)
		if err != nil {
			return err
		}
		_, err = s.revalue(ctx, tx, b)
		return err
	})
	if err != nil {
		return fmt.Errorf("remove composition %s: %w", id, err)
	}
	s.logger.Info("composition removed", "budget_id", budgetID, "id", id)
	return nil
}

// =============================================================================
// ANALYSIS
// =============================================================================

// Report values the budget and derives the DRE, ABC and alerts, all from
// one consistent read.
func (s *Service) Report(ctx context.Context, id string) (Report, error) {
	var b Budget
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		var err error
		b, err = loadBudget(ctx, tx, id)
		return err
	})
	if err != nil {
		return Report{}, err
	}

	report, err := BuildReport(b, s.taxes, s.policy, s.Now())
	if err != nil {
		return Report{}, fmt.Errorf("report budget %s: %w", id, err)
	}
	s.logger.Debug("budget report built", "id", id, "alerts", len(report.Alerts))
	return report, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func loadBudget(ctx context.Context, tx Repository, id string) (Budget, error) {
	b, err := tx.GetBudget(ctx, id)
	if err != nil {
		return Budget{}, err
	}
	comps, err := tx.ListCompositions(ctx, id)
	if err != nil {
		return Budget{}, fmt.Errorf("list compositions of budget %s: %w", id, err)
	}
	b.Compositions = comps
	return b, nil
}

// revalue reloads the budget's compositions, recomputes its valuation,
// bumps its version and stores it. Must run inside WithTx.
func (s *Service) revalue(ctx context.Context, tx Repository, b Budget) (Budget, error) {
	comps, err := tx.ListCompositions(ctx, b.ID)
	if err != nil {
		return Budget{}, fmt.Errorf("list compositions of budget %s: %w", b.ID, err)
	}
	b.Compositions = comps

	v, err := Value(b, s.taxes)
	if err != nil {
		return Budget{}, err
	}
	b.Valuation = v
	b.Version++
	b.UpdatedAt = s.Now()
	if err := tx.PutBudget(ctx, b); err != nil {
		return Budget{}, fmt.Errorf("save budget %s: %w", b.ID, err)
	}
	return b, nil
}
