/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures that are specific to the HTTP surface.
  Domain records (labor.Position, budget.Budget, budget.Report, ...) carry
  their own JSON tags and are served as-is; only wrappers, envelopes and
  request shapes that have no domain type live here.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DECIMALS:
  Money, rates and quantities are shopspring decimals. They are written as
  JSON strings ("1353.6") and accepted as either strings or numbers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON type
*/
package api

import (
	"time"

	"github.com/warp/cost-engine/budget"
	"github.com/warp/cost-engine/factory"
	"github.com/warp/cost-engine/labor"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// CascadeDTO is the response of a configuration update. It is returned with
// 200 when every position recomputed and 207 when some failed.
type CascadeDTO struct {
	labor.CascadeReport
	Error string `json:"error,omitempty"`
}

// PositionListDTO wraps a position listing with the filters that produced it.
type PositionListDTO struct {
	Positions  []labor.Position `json:"positions"`
	ActiveOnly bool             `json:"active_only"`
	Category   string           `json:"category,omitempty"`
}

// BudgetSummaryDTO is a budget without its compositions, for listings.
type BudgetSummaryDTO struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Client    string           `json:"client,omitempty"`
	Valuation budget.Valuation `json:"valuation"`
	Version   int              `json:"version"`
	UpdatedAt string           `json:"updated_at"`
}

// TaxBracketsDTO lists the revenue tax schedule in force.
type TaxBracketsDTO struct {
	DefaultTier int                 `json:"default_tier"`
	Brackets    []budget.TaxBracket `json:"brackets"`
}

// PolicyDTO is the pricing policy in force, in its JSON document form.
type PolicyDTO struct {
	Policy factory.PolicyJSON `json:"policy"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// LoadScenarioDTO summarizes what a scenario created.
type LoadScenarioDTO struct {
	Scenario  ScenarioDTO `json:"scenario"`
	Positions int         `json:"positions"`
	Budgets   []string    `json:"budgets"`
}

// HealthDTO is the /healthz body.
type HealthDTO struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toBudgetSummary(b budget.Budget) BudgetSummaryDTO {
	return BudgetSummaryDTO{
		ID:        b.ID,
		Name:      b.Name,
		Client:    b.Client,
		Valuation: b.Valuation,
		Version:   b.Version,
		UpdatedAt: b.UpdatedAt.Format(time.RFC3339),
	}
}

func toBudgetSummaries(bs []budget.Budget) []BudgetSummaryDTO {
	dtos := make([]BudgetSummaryDTO, len(bs))
	for i, b := range bs {
		dtos[i] = toBudgetSummary(b)
	}
	return dtos
}
