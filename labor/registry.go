/*
registry.go - Position CRUD and the configuration cascade

PURPOSE:
  The Registry is the only writer of Position records. It validates
  inputs, runs the calculator and persists the result, so stored derived
  fields always match stored inputs.

OPERATIONS:
  Create, Get, Update (partial patch), Archive (soft delete), Restore,
  Delete (hard delete), List, ListActive, ListByCategory,
  Configuration, UpdateConfiguration.

CASCADE:
  UpdateConfiguration is the one cross-record operation. Inside a single
  repository transaction it:
    1. reads the configuration once
    2. writes the new configuration
    3. recomputes every stored position (active and archived) against it
    4. writes every recomputed position
  Readers see either the old set or the new set, never a mix.
  Positions are independent, so the cascade is best-effort per record:
  a position that fails to recompute is reported in a CascadeFailure and
  the ones that succeeded stay written.

CONCURRENCY:
  Every write goes through Repository.WithTx, so a Create that races a
  cascade is computed against whichever configuration committed first.
  Last writer wins unless the caller sends PositionPatch.ExpectedVersion.

SEE ALSO:
  - calculator.go: Compute
  - generic/errors.go: CascadeFailure, ConflictError
*/
package labor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/warp/cost-engine/generic"
)

const positionKind = "position"

// Registry manages positions on top of a Repository.
type Registry struct {
	repo   Repository
	logger *slog.Logger

	// Now stamps CreatedAt/UpdatedAt/LastUpdated. Defaults to the wall clock.
	Now generic.Clock
}

// NewRegistry creates a registry. A nil logger discards output.
func NewRegistry(repo Repository, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		repo:   repo,
		logger: logger.With("component", "position_registry"),
		Now:    generic.SystemClock,
	}
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Configuration returns the stored configuration, or the default when none
// was ever saved.
func (r *Registry) Configuration(ctx context.Context) (SalaryConfiguration, error) {
	return loadConfiguration(ctx, r.repo)
}

func loadConfiguration(ctx context.Context, repo Repository) (SalaryConfiguration, error) {
	cfg, found, err := repo.GetConfiguration(ctx)
	if err != nil {
		return SalaryConfiguration{}, fmt.Errorf("load salary configuration: %w", err)
	}
	if !found {
		return DefaultConfiguration(), nil
	}
	return cfg, nil
}

// CascadeError names a position that failed to recompute.
type CascadeError struct {
	PositionID string `json:"position_id"`
	Reason     string `json:"reason"`
}

// CascadeReport describes the outcome of a configuration update.
type CascadeReport struct {
	Configuration SalaryConfiguration `json:"configuration"`
	Cascaded      bool                `json:"cascaded"`
	Succeeded     []string            `json:"succeeded"`
	Failed        []CascadeError      `json:"failed"`

	errs map[string]error
}

func (rep *CascadeReport) fail(id string, err error) {
	if rep.errs == nil {
		rep.errs = make(map[string]error)
	}
	rep.errs[id] = err
	rep.Failed = append(rep.Failed, CascadeError{PositionID: id, Reason: err.Error()})
}

// Err returns a *generic.CascadeFailure when any position failed.
func (rep CascadeReport) Err() error {
	if len(rep.Failed) == 0 {
		return nil
	}
	failed := make(map[string]error, len(rep.errs))
	for id, err := range rep.errs {
		failed[id] = err
	}
	return &generic.CascadeFailure{
		Succeeded: append([]string(nil), rep.Succeeded...),
		Failed:    failed,
	}
}

// UpdateConfiguration applies patch and, when a cost-relevant value
// changed, recomputes every stored position in the same transaction.
// A partial cascade returns the report together with a CascadeFailure.
func (r *Registry) UpdateConfiguration(ctx context.Context, patch ConfigurationPatch) (CascadeReport, error) {
	if patch.IsEmpty() {
		return CascadeReport{}, generic.Invalid("", "configuration patch has no fields")
	}

	var report CascadeReport
	err := r.repo.WithTx(ctx, func(tx Repository) error {
		report = CascadeReport{Succeeded: []string{}, Failed: []CascadeError{}}

		current, err := loadConfiguration(ctx, tx)
		if err != nil {
			return err
		}
		now := r.Now()
		next, changed := patch.Apply(current, now)
		if err := next.Validate(); err != nil {
			return err
		}
		if err := tx.PutConfiguration(ctx, next); err != nil {
			return fmt.Errorf("save salary configuration: %w", err)
		}
		report.Configuration = next
		if !changed {
			return nil
		}

		report.Cascaded = true
		positions, err := tx.ListPositions(ctx)
		if err != nil {
			return fmt.Errorf("list positions for cascade: %w", err)
		}
		for _, p := range positions {
			derived, err := Compute(p.PositionInput, next)
			if err != nil {
				report.fail(p.ID, err)
				continue
			}
			p.Derived = derived
			p.Version++
			p.UpdatedAt = now
			if err := tx.PutPosition(ctx, p); err != nil {
				report.fail(p.ID, err)
				continue
			}
			report.Succeeded = append(report.Succeeded, p.ID)
		}
		return nil
	})
	if err != nil {
		return CascadeReport{}, fmt.Errorf("update salary configuration: %w", err)
	}

	r.logger.Info("salary configuration updated",
		"minimum_wage_reference", report.Configuration.MinimumWageReference.String(),
		"social_charges_rate", report.Configuration.SocialChargesRate.String(),
		"cascaded", report.Cascaded,
		"recomputed", len(report.Succeeded),
		"failed", len(report.Failed),
	)
	if err := report.Err(); err != nil {
		r.logger.Warn("cascade recompute incomplete", "error", err)
		return report, err
	}
	return report, nil
}

// =============================================================================
// POSITION CRUD
// =============================================================================

// Create validates in, computes its costs and stores a new active position.
func (r *Registry) Create(ctx context.Context, in PositionInput) (Position, error) {
	in = normalizeInput(in)
	if err := validateIdentity(in); err != nil {
		return Position{}, err
	}

	var created Position
	err := r.repo.WithTx(ctx, func(tx Repository) error {
		cfg, err := loadConfiguration(ctx, tx)
		if err != nil {
			return err
		}
		derived, err := Compute(in, cfg)
		if err != nil {
			return err
		}
		now := r.Now()
		created = Position{
			ID:            generic.NewID(),
			PositionInput: in,
			Derived:       derived,
			State:         generic.LifecycleActive,
			Version:       1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return tx.PutPosition(ctx, created)
	})
	if err != nil {
		return Position{}, fmt.Errorf("create position: %w", err)
	}

	r.logger.Info("position created", "id", created.ID, "name", created.Name,
		"hourly_cost", created.HourlyCost.StringFixed(2))
	return created, nil
}

// Get returns a position by id.
func (r *Registry) Get(ctx context.Context, id string) (Position, error) {
	return r.repo.GetPosition(ctx, id)
}

// Update merges patch onto the stored inputs and recomputes.
func (r *Registry) Update(ctx context.Context, id string, patch PositionPatch) (Position, error) {
	var updated Position
	err := r.repo.WithTx(ctx, func(tx Repository) error {
		stored, err := tx.GetPosition(ctx, id)
		if err != nil {
			return err
		}
		if !stored.IsActive() {
			return &generic.ArchivedError{Kind: positionKind, ID: id}
		}
		if err := generic.CheckVersion(positionKind, id, patch.ExpectedVersion, stored.Version); err != nil {
			return err
		}

		in := normalizeInput(patch.Merge(stored.PositionInput))
		if err := validateIdentity(in); err != nil {
			return err
		}
		cfg, err := loadConfiguration(ctx, tx)
		if err != nil {
			return err
		}
		derived, err := Compute(in, cfg)
		if err != nil {
			return err
		}

		updated = stored
		updated.PositionInput = in
		updated.Derived = derived
		updated.Version++
		updated.UpdatedAt = r.Now()
		return tx.PutPosition(ctx, updated)
	})
	if err != nil {
		return Position{}, fmt.Errorf("update position %s: %w", id, err)
	}

	r.logger.Info("position updated", "id", id, "version", updated.Version,
		"hourly_cost", updated.HourlyCost.StringFixed(2))
	return updated, nil
}

// Archive soft-deletes a position. Archived positions are hidden from
// ListActive and reject edits, but still follow configuration cascades.
func (r *Registry) Archive(ctx context.Context, id string) (Position, error) {
	return r.setState(ctx, id, generic.LifecycleArchived)
}

// Restore brings an archived position back, recomputed against the
// current configuration.
func (r *Registry) Restore(ctx context.Context, id string) (Position, error) {
	return r.setState(ctx, id, generic.LifecycleActive)
}

func (r *Registry) setState(ctx context.Context, id string, state generic.Lifecycle) (Position, error) {
	var updated Position
	err := r.repo.WithTx(ctx, func(tx Repository) error {
		stored, err := tx.GetPosition(ctx, id)
		if err != nil {
			return err
		}
		if stored.State == state {
			updated = stored
			return nil
		}
		updated = stored
		updated.State = state
		if state.IsActive() {
			cfg, err := loadConfiguration(ctx, tx)
			if err != nil {
				return err
			}
			derived, err := Compute(stored.PositionInput, cfg)
			if err != nil {
				return err
			}
			updated.Derived = derived
		}
		updated.Version++
		updated.UpdatedAt = r.Now()
		return tx.PutPosition(ctx, updated)
	})
	if err != nil {
		return Position{}, fmt.Errorf("set position %s %s: %w", id, state, err)
	}

	r.logger.Info("position state changed", "id", id, "state", string(state))
	return updated, nil
}

// Delete removes a position permanently.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.DeletePosition(ctx, id); err != nil {
		return fmt.Errorf("delete position %s: %w", id, err)
	}
	r.logger.Info("position deleted", "id", id)
	return nil
}

// List returns every position, active or archived, ordered by name.
func (r *Registry) List(ctx context.Context) ([]Position, error) {
	return r.list(ctx, func(Position) bool { return true })
}

// ListActive returns active positions ordered by name.
func (r *Registry) ListActive(ctx context.Context) ([]Position, error) {
	return r.list(ctx, Position.IsActive)
}

// ListByCategory returns active positions usable for category. Positions
// in category "both" match any filter.
func (r *Registry) ListByCategory(ctx context.Context, category Category) ([]Position, error) {
	if !category.Valid() {
		return nil, generic.Invalid("category", "unknown category %q", category)
	}
	return r.list(ctx, func(p Position) bool {
		return p.IsActive() && p.Category.Matches(category)
	})
}

func (r *Registry) list(ctx context.Context, keep func(Position) bool) ([]Position, error) {
	all, err := r.repo.ListPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	result := make([]Position, 0, len(all))
	for _, p := range all {
		if keep(p) {
			result = append(result, p)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func normalizeInput(in PositionInput) PositionInput {
	in.Name = strings.TrimSpace(in.Name)
	in.InsalubrityGrade = normalizeGrade(in.InsalubrityGrade)
	return in
}

// validateIdentity checks the fields the calculator doesn't look at.
func validateIdentity(in PositionInput) error {
	if in.Name == "" {
		return generic.Invalid("name", "is required")
	}
	if !in.Category.Valid() {
		return generic.Invalid("category", "must be fabrication, assembly or both")
	}
	return nil
}
