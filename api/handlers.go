/*
handlers.go - HTTP API handlers for the cost engine

PURPOSE:
  Exposes the labor registry and the budget service via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.
  No pricing rule lives here.

ENDPOINTS:
  Salary configuration:
    GET    /api/configuration                 Current configuration
    PUT    /api/configuration                 Patch it; cascades to positions

  Positions:
    GET    /api/positions                     List (?active=true&category=assembly)
    POST   /api/positions                     Create
    GET    /api/positions/{id}                Get
    PATCH  /api/positions/{id}                Partial update
    DELETE /api/positions/{id}                Archive (?hard=true deletes)
    POST   /api/positions/{id}/restore        Restore an archived position

  Budgets:
    GET    /api/budgets                       List (summaries)
    POST   /api/budgets                       Create
    GET    /api/budgets/{id}                  Get with compositions
    PATCH  /api/budgets/{id}                  Edit header / tax profile
    DELETE /api/budgets/{id}                  Delete with compositions
    POST   /api/budgets/{id}/compositions     Add composition
    GET    /api/budgets/{id}/compositions/{cid}
    PUT    /api/budgets/{id}/compositions/{cid}
    DELETE /api/budgets/{id}/compositions/{cid}
    GET    /api/budgets/{id}/report           Valuation + DRE + ABC + alerts
    GET    /api/budgets/{id}/export.xlsx      Workbook download
    GET    /api/budgets/{id}/export.pdf       PDF download

  Reference data:
    GET    /api/tax-brackets                  Revenue tax schedule
    GET    /api/policy                        Pricing policy document

ERROR HANDLING:
  Errors are returned as JSON ErrorResponse with appropriate HTTP status:
  - 400: Validation errors, edits to archived positions, bad JSON
  - 404: Position, budget or composition not found
  - 409: Version conflict (reload and retry)
  - 207: Configuration saved but some positions failed to recompute
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
  - metrics.go: Prometheus collectors
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/warp/cost-engine/budget"
	"github.com/warp/cost-engine/export"
	"github.com/warp/cost-engine/factory"
	"github.com/warp/cost-engine/generic"
	"github.com/warp/cost-engine/labor"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Positions     *labor.Registry
	Budgets       *budget.Service
	PolicyFactory *factory.PolicyFactory
	Metrics       *Metrics

	// Reset clears all stored data before a scenario loads.
	Reset func(ctx context.Context) error
	// Ping reports storage health for /healthz. Nil means healthy.
	Ping func(ctx context.Context) error

	logger *slog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over the registry and budget service.
// A nil logger discards output.
func NewHandler(positions *labor.Registry, budgets *budget.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		Positions:     positions,
		Budgets:       budgets,
		PolicyFactory: factory.NewPolicyFactory(),
		Metrics:       NewMetrics(),
		logger:        logger.With("component", "api"),
	}
}

// =============================================================================
// CONFIGURATION HANDLERS
// =============================================================================

// GetConfiguration returns the salary configuration in force.
func (h *Handler) GetConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Positions.Configuration(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to load configuration", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateConfiguration patches the configuration and reports the cascade.
func (h *Handler) UpdateConfiguration(w http.ResponseWriter, r *http.Request) {
	var patch labor.ConfigurationPatch
	if !decodeBody(w, r, &patch) {
		return
	}

	report, err := h.Positions.UpdateConfiguration(r.Context(), patch)
	h.Metrics.recordCascade(len(report.Succeeded), len(report.Failed))
	switch {
	case errors.Is(err, generic.ErrCascadeFailed):
		writeJSON(w, http.StatusMultiStatus, CascadeDTO{CascadeReport: report, Error: err.Error()})
	case err != nil:
		h.writeDomainError(w, "Failed to update configuration", err)
	default:
		writeJSON(w, http.StatusOK, CascadeDTO{CascadeReport: report})
	}
}

// =============================================================================
// POSITION HANDLERS
// =============================================================================

// ListPositions lists positions. ?category= implies active only.
func (h *Handler) ListPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := q.Get("category")
	activeOnly := q.Get("active") == "true"

	var (
		positions []labor.Position
		err       error
	)
	switch {
	case category != "":
		activeOnly = true
		positions, err = h.Positions.ListByCategory(r.Context(), labor.Category(category))
	case activeOnly:
		positions, err = h.Positions.ListActive(r.Context())
	default:
		positions, err = h.Positions.List(r.Context())
	}
	if err != nil {
		h.writeDomainError(w, "Failed to list positions", err)
		return
	}

	writeJSON(w, http.StatusOK, PositionListDTO{
		Positions:  positions,
		ActiveOnly: activeOnly,
		Category:   category,
	})
}

// CreatePosition computes and stores a new position.
func (h *Handler) CreatePosition(w http.ResponseWriter, r *http.Request) {
	var in labor.PositionInput
	if !decodeBody(w, r, &in) {
		return
	}

	p, err := h.Positions.Create(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, "Failed to create position", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetPosition returns a single position.
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	p, err := h.Positions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to get position", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdatePosition applies a partial edit.
func (h *Handler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	var patch labor.PositionPatch
	if !decodeBody(w, r, &patch) {
		return
	}

	p, err := h.Positions.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeDomainError(w, "Failed to update position", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeletePosition archives a position, or removes it with ?hard=true.
func (h *Handler) DeletePosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	hard, _ := strconv.ParseBool(r.URL.Query().Get("hard"))
	if hard {
		if err := h.Positions.Delete(r.Context(), id); err != nil {
			h.writeDomainError(w, "Failed to delete position", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	p, err := h.Positions.Archive(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to archive position", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RestorePosition reactivates an archived position.
func (h *Handler) RestorePosition(w http.ResponseWriter, r *http.Request) {
	p, err := h.Positions.Restore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to restore position", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// =============================================================================
// BUDGET HANDLERS
// =============================================================================

// ListBudgets returns budget summaries.
func (h *Handler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := h.Budgets.ListBudgets(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list budgets", err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetSummaries(budgets))
}

// CreateBudget stores a new empty budget.
func (h *Handler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	var in budget.BudgetInput
	if !decodeBody(w, r, &in) {
		return
	}

	b, err := h.Budgets.CreateBudget(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, "Failed to create budget", err)
		return
	}
	h.Metrics.recordValuation()
	writeJSON(w, http.StatusCreated, b)
}

// GetBudget returns a budget with its compositions.
func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	b, err := h.Budgets.GetBudget(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to get budget", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// UpdateBudget edits the budget header and revalues it.
func (h *Handler) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	var patch budget.BudgetPatch
	if !decodeBody(w, r, &patch) {
		return
	}

	b, err := h.Budgets.UpdateBudget(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeDomainError(w, "Failed to update budget", err)
		return
	}
	h.Metrics.recordValuation()
	writeJSON(w, http.StatusOK, b)
}

// DeleteBudget removes a budget and its compositions.
func (h *Handler) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := h.Budgets.DeleteBudget(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, "Failed to delete budget", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// COMPOSITION HANDLERS
// =============================================================================

// AddComposition appends a composition to a budget.
func (h *Handler) AddComposition(w http.ResponseWriter, r *http.Request) {
	var in budget.CompositionInput
	if !decodeBody(w, r, &in) {
		return
	}

	c, err := h.Budgets.AddComposition(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeDomainError(w, "Failed to add composition", err)
		return
	}
	h.Metrics.recordValuation()
	writeJSON(w, http.StatusCreated, c)
}

// GetComposition returns one composition of a budget.
func (h *Handler) GetComposition(w http.ResponseWriter, r *http.Request) {
	c, err := h.Budgets.GetComposition(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "cid"))
	if err != nil {
		h.writeDomainError(w, "Failed to get composition", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// UpdateComposition edits a composition and revalues its budget.
func (h *Handler) UpdateComposition(w http.ResponseWriter, r *http.Request) {
	var patch budget.CompositionPatch
	if !decodeBody(w, r, &patch) {
		return
	}

	c, err := h.Budgets.UpdateComposition(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "cid"), patch)
	if err != nil {
		h.writeDomainError(w, "Failed to update composition", err)
		return
	}
	h.Metrics.recordValuation()
	writeJSON(w, http.StatusOK, c)
}

// RemoveComposition deletes a composition and revalues its budget.
func (h *Handler) RemoveComposition(w http.ResponseWriter, r *http.Request) {
	if err := h.Budgets.RemoveComposition(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "cid")); err != nil {
		h.writeDomainError(w, "Failed to remove composition", err)
		return
	}
	h.Metrics.recordValuation()
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REPORT AND EXPORT HANDLERS
// =============================================================================

// GetReport returns valuation, DRE, ABC and alerts in one body.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.buildReport(w, r, "json")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ExportExcel downloads the report as an XLSX workbook.
func (h *Handler) ExportExcel(w http.ResponseWriter, r *http.Request) {
	report, ok := h.buildReport(w, r, "xlsx")
	if !ok {
		return
	}
	data, err := export.Excel(report)
	if err != nil {
		h.writeDomainError(w, "Failed to render workbook", err)
		return
	}
	writeFile(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		export.Filename(report.Budget.Name, "xlsx"), data)
}

// ExportPDF downloads the report as a PDF document.
func (h *Handler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	report, ok := h.buildReport(w, r, "pdf")
	if !ok {
		return
	}
	data, err := export.PDF(report)
	if err != nil {
		h.writeDomainError(w, "Failed to render PDF", err)
		return
	}
	writeFile(w, "application/pdf", export.Filename(report.Budget.Name, "pdf"), data)
}

func (h *Handler) buildReport(w http.ResponseWriter, r *http.Request, format string) (budget.Report, bool) {
	report, err := h.Budgets.Report(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to build report", err)
		return budget.Report{}, false
	}
	h.Metrics.recordReport(format)
	return report, true
}

// =============================================================================
// REFERENCE DATA HANDLERS
// =============================================================================

// ListTaxBrackets returns the revenue tax schedule in force.
func (h *Handler) ListTaxBrackets(w http.ResponseWriter, r *http.Request) {
	table := h.Budgets.TaxTable()
	writeJSON(w, http.StatusOK, TaxBracketsDTO{
		DefaultTier: table.DefaultTier,
		Brackets:    table.Brackets,
	})
}

// GetPolicy returns the alert policy and tax table as a policy document.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, PolicyDTO{
		Policy: h.PolicyFactory.ToJSON(h.Budgets.AlertPolicy(), h.Budgets.TaxTable()),
	})
}

// Healthz reports whether storage answers.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, HealthDTO{Status: "unavailable", Error: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthDTO{Status: "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}

// writeDomainError maps the generic error sentinels onto status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case generic.IsClientError(err):
		status = http.StatusBadRequest
	case generic.IsNotFound(err):
		status = http.StatusNotFound
	case generic.IsConflict(err):
		status = http.StatusConflict
	default:
		h.logger.Error(message, "error", err)
	}

	var details any = err.Error()
	var verr *generic.ValidationError
	if errors.As(err, &verr) {
		details = map[string]string{"field": verr.Field, "message": verr.Message}
	}
	writeError(w, status, message, details)
}

// decodeBody decodes the JSON body into dst, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	return true
}
