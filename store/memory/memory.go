// Package memory provides an in-memory implementation of the labor and
// budget repositories (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/cost-engine/budget"
	"github.com/warp/cost-engine/generic"
	"github.com/warp/cost-engine/labor"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Store keeps every record in maps guarded by one RWMutex. Use Labor() and
// Budgets() to get the repository views.
type Store struct {
	mu           sync.RWMutex
	positions    map[string]labor.Position
	config       *labor.SalaryConfiguration
	budgets      map[string]budget.Budget
	compositions map[string]budget.Composition
}

func New() *Store {
	return &Store{
		positions:    make(map[string]labor.Position),
		budgets:      make(map[string]budget.Budget),
		compositions: make(map[string]budget.Composition),
	}
}

// Labor returns the labor.Repository view of the store.
func (s *Store) Labor() labor.Repository {
	return &laborView{s: s}
}

// Budgets returns the budget.Repository view of the store.
func (s *Store) Budgets() budget.Repository {
	return &budgetView{s: s}
}

// Reset drops every record.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = make(map[string]labor.Position)
	s.config = nil
	s.budgets = make(map[string]budget.Budget)
	s.compositions = make(map[string]budget.Composition)
}

// withTx holds the write lock for the whole of fn. On error the maps are
// restored from a snapshot taken before fn ran.
func (s *Store) withTx(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	positions    map[string]labor.Position
	config       *labor.SalaryConfiguration
	budgets      map[string]budget.Budget
	compositions map[string]budget.Composition
}

func (s *Store) snapshot() memorySnapshot {
	snap := memorySnapshot{
		positions:    make(map[string]labor.Position, len(s.positions)),
		budgets:      make(map[string]budget.Budget, len(s.budgets)),
		compositions: make(map[string]budget.Composition, len(s.compositions)),
	}
	for k, v := range s.positions {
		snap.positions[k] = v
	}
	if s.config != nil {
		cfg := *s.config
		snap.config = &cfg
	}
	for k, v := range s.budgets {
		snap.budgets[k] = cloneBudget(v)
	}
	for k, v := range s.compositions {
		snap.compositions[k] = cloneComposition(v)
	}
	return snap
}

func (s *Store) restore(snap memorySnapshot) {
	s.positions = snap.positions
	s.config = snap.config
	s.budgets = snap.budgets
	s.compositions = snap.compositions
}

// lock helpers return the matching unlock. Views created inside a
// transaction already hold the write lock and skip locking.
func lockRead(s *Store, inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func lockWrite(s *Store, inTx bool) func() {
	if inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// =============================================================================
// LABOR VIEW
// =============================================================================

type laborView struct {
	s    *Store
	inTx bool
}

func (v *laborView) GetPosition(_ context.Context, id string) (labor.Position, error) {
	defer lockRead(v.s, v.inTx)()
	p, ok := v.s.positions[id]
	if !ok {
		return labor.Position{}, &generic.NotFoundError{Kind: "position", ID: id}
	}
	return p, nil
}

func (v *laborView) ListPositions(_ context.Context) ([]labor.Position, error) {
	defer lockRead(v.s, v.inTx)()
	result := make([]labor.Position, 0, len(v.s.positions))
	for _, p := range v.s.positions {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (v *laborView) PutPosition(_ context.Context, p labor.Position) error {
	defer lockWrite(v.s, v.inTx)()
	v.s.positions[p.ID] = p
	return nil
}

func (v *laborView) DeletePosition(_ context.Context, id string) error {
	defer lockWrite(v.s, v.inTx)()
	if _, ok := v.s.positions[id]; !ok {
		return &generic.NotFoundError{Kind: "position", ID: id}
	}
	delete(v.s.positions, id)
	return nil
}

func (v *laborView) GetConfiguration(_ context.Context) (labor.SalaryConfiguration, bool, error) {
	defer lockRead(v.s, v.inTx)()
	if v.s.config == nil {
		return labor.SalaryConfiguration{}, false, nil
	}
	return *v.s.config, true, nil
}

func (v *laborView) PutConfiguration(_ context.Context, cfg labor.SalaryConfiguration) error {
	defer lockWrite(v.s, v.inTx)()
	v.s.config = &cfg
	return nil
}

func (v *laborView) WithTx(_ context.Context, fn func(labor.Repository) error) error {
	if v.inTx {
		return fn(v)
	}
	return v.s.withTx(func() error {
		return fn(&laborView{s: v.s, inTx: true})
	})
}

// =============================================================================
// BUDGET VIEW
// =============================================================================

type budgetView struct {
	s    *Store
	inTx bool
}

func (v *budgetView) GetBudget(_ context.Context, id string) (budget.Budget, error) {
	defer lockRead(v.s, v.inTx)()
	b, ok := v.s.budgets[id]
	if !ok {
		return budget.Budget{}, &generic.NotFoundError{Kind: "budget", ID: id}
	}
	return cloneBudget(b), nil
}

func (v *budgetView) ListBudgets(_ context.Context) ([]budget.Budget, error) {
	defer lockRead(v.s, v.inTx)()
	result := make([]budget.Budget, 0, len(v.s.budgets))
	for _, b := range v.s.budgets {
		result = append(result, cloneBudget(b))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (v *budgetView) PutBudget(_ context.Context, b budget.Budget) error {
	defer lockWrite(v.s, v.inTx)()
	b = cloneBudget(b)
	b.Compositions = nil
	v.s.budgets[b.ID] = b
	return nil
}

func (v *budgetView) DeleteBudget(_ context.Context, id string) error {
	defer lockWrite(v.s, v.inTx)()
	if _, ok := v.s.budgets[id]; !ok {
		return &generic.NotFoundError{Kind: "budget", ID: id}
	}
	delete(v.s.budgets, id)
	for cid, c := range v.s.compositions {
		if c.BudgetID == id {
			delete(v.s.compositions, cid)
		}
	}
	return nil
}

func (v *budgetView) GetComposition(_ context.Context, id string) (budget.Composition, error) {
	defer lockRead(v.s, v.inTx)()
	c, ok := v.s.compositions[id]
	if !ok {
		return budget.Composition{}, &generic.NotFoundError{Kind: "composition", ID: id}
	}
	return cloneComposition(c), nil
}

func (v *budgetView) ListCompositions(_ context.Context, budgetID string) ([]budget.Composition, error) {
	defer lockRead(v.s, v.inTx)()
	result := []budget.Composition{}
	for _, c := range v.s.compositions {
		if c.BudgetID == budgetID {
			result = append(result, cloneComposition(c))
		}
	}
	budget.SortCompositions(result)
	return result, nil
}

func (v *budgetView) PutComposition(_ context.Context, c budget.Composition) error {
	defer lockWrite(v.s, v.inTx)()
	if _, ok := v.s.budgets[c.BudgetID]; !ok {
		return &generic.NotFoundError{Kind: "budget", ID: c.BudgetID}
	}
	v.s.compositions[c.ID] = cloneComposition(c)
	return nil
}

func (v *budgetView) DeleteComposition(_ context.Context, id string) error {
	defer lockWrite(v.s, v.inTx)()
	if _, ok := v.s.compositions[id]; !ok {
		return &generic.NotFoundError{Kind: "composition", ID: id}
	}
	delete(v.s.compositions, id)
	return nil
}

func (v *budgetView) WithTx(_ context.Context, fn func(budget.Repository) error) error {
	if v.inTx {
		return fn(v)
	}
	return v.s.withTx(func() error {
		return fn(&budgetView{s: v.s, inTx: true})
	})
}

// =============================================================================
// CLONING - records handed out must not alias stored slices
// =============================================================================

func cloneComposition(c budget.Composition) budget.Composition {
	items := make([]budget.LineItem, len(c.Items))
	copy(items, c.Items)
	c.Items = items
	return c
}

func cloneBudget(b budget.Budget) budget.Budget {
	if b.Compositions != nil {
		comps := make([]budget.Composition, len(b.Compositions))
		for i, c := range b.Compositions {
			comps[i] = cloneComposition(c)
		}
		b.Compositions = comps
	}
	summaries := make([]budget.CompositionSummary, len(b.Valuation.Compositions))
	copy(summaries, b.Valuation.Compositions)
	b.Valuation.Compositions = summaries
	if b.Valuation.NextBracket != nil {
		next := *b.Valuation.NextBracket
		b.Valuation.NextBracket = &next
	}
	if b.TotalArea != nil {
		area := *b.TotalArea
		b.TotalArea = &area
	}
	if b.Valuation.PricePerArea != nil {
		ppa := *b.Valuation.PricePerArea
		b.Valuation.PricePerArea = &ppa
	}
	return b
}
