/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Position CRUD, archive/restore and version conflicts
- Configuration cascade responses
- Budget and composition flow through report and exports
- Error mapping, reference data, health and metrics
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cost-engine/api"
	"github.com/warp/cost-engine/budget"
	"github.com/warp/cost-engine/generic"
	"github.com/warp/cost-engine/labor"
	"github.com/warp/cost-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var fixedNow = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

type testServer struct {
	handler *api.Handler
	router  *chi.Mux
	store   *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()

	registry := labor.NewRegistry(store.Labor(), nil)
	registry.Now = generic.FixedClock(fixedNow)
	service := budget.NewService(store.Budgets(), budget.DefaultTaxTable(), budget.DefaultAlertPolicy(), nil)
	service.Now = generic.FixedClock(fixedNow)

	h := api.NewHandler(registry, service, nil)
	h.Reset = func(context.Context) error {
		store.Reset()
		return nil
	}
	return &testServer{handler: h, router: api.NewRouter(h, api.RouterOptions{}), store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const welderJSON = `{
	"name": "Welder",
	"base_salary": 1650,
	"insalubrity_grade": "none",
	"monthly_hours": 184,
	"misc_costs": {"meal_lunch": 20, "transport": 16, "ppe": 10},
	"category": "fabrication"
}`

func (s *testServer) createWelder(t *testing.T) labor.Position {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/positions", welderJSON)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[labor.Position](t, rec)
}

// createWarehouse builds a 500 @ 25% + 500 @ 10% budget, ISS 5%, tier 3.
func (s *testServer) createWarehouse(t *testing.T) budget.Budget {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/budgets", `{
		"name": "Warehouse",
		"client": "ACME",
		"tax_profile": {"iss_enabled": true, "iss_rate": 0.05, "revenue_tier": 3},
		"total_area": 100
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[budget.Budget](t, rec)

	rec = s.do(t, http.MethodPost, "/api/budgets/"+b.ID+"/compositions", `{
		"name": "Structure", "category": "materials", "overhead_rate": 0.25,
		"items": [{"description": "steel beam", "quantity": 10, "unit_value": 50}]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/budgets/"+b.ID+"/compositions", `{
		"name": "Tools", "category": "tools", "overhead_rate": "0.10",
		"items": [
			{"description": "drill", "quantity": 2, "unit_value": 200},
			{"description": "saw", "quantity": 1, "unit_value": 100}
		]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return b
}

// =============================================================================
// POSITIONS
// =============================================================================

func TestPositions_CreateAndGet(t *testing.T) {
	// GIVEN: A welder posted with the default configuration
	s := newTestServer(t)

	// WHEN: Created
	p := s.createWelder(t)

	// THEN: Costs are computed and stored
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, "2664.55", p.TotalLaborCost.String())
	assert.Equal(t, "14.48", p.HourlyCost.StringFixed(2))

	rec := s.do(t, http.MethodGet, "/api/positions/"+p.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[labor.Position](t, rec)
	assert.True(t, p.HourlyCost.Equal(got.HourlyCost))
}

func TestPositions_ValidationError(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/positions", `{"name": "Ghost", "base_salary": 0, "monthly_hours": 220, "category": "assembly"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[api.ErrorResponse](t, rec)
	assert.Equal(t, "Failed to create position", resp.Error)
	details, ok := resp.Details.(map[string]any)
	require.True(t, ok, "validation details carry the field")
	assert.Equal(t, "base_salary", details["field"])
}

func TestPositions_VersionConflict(t *testing.T) {
	s := newTestServer(t)
	p := s.createWelder(t)

	rec := s.do(t, http.MethodPatch, "/api/positions/"+p.ID, `{"base_salary": 1800, "expected_version": 7}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPatch, "/api/positions/"+p.ID, `{"base_salary": 1800, "expected_version": 1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[labor.Position](t, rec)
	assert.Equal(t, 2, updated.Version)
	assert.True(t, updated.HourlyCost.GreaterThan(p.HourlyCost))
}

func TestPositions_ArchiveRestoreDelete(t *testing.T) {
	// GIVEN: A stored position
	s := newTestServer(t)
	p := s.createWelder(t)

	// WHEN: Deleted without ?hard
	rec := s.do(t, http.MethodDelete, "/api/positions/"+p.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	archived := decode[labor.Position](t, rec)

	// THEN: It is archived, hidden from active listings and rejects edits
	assert.Equal(t, generic.LifecycleArchived, archived.State)

	list := decode[api.PositionListDTO](t, s.do(t, http.MethodGet, "/api/positions?active=true", nil))
	assert.Empty(t, list.Positions)
	list = decode[api.PositionListDTO](t, s.do(t, http.MethodGet, "/api/positions", nil))
	assert.Len(t, list.Positions, 1)

	rec = s.do(t, http.MethodPatch, "/api/positions/"+p.ID, `{"name": "Senior Welder"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/positions/"+p.ID+"/restore", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, generic.LifecycleActive, decode[labor.Position](t, rec).State)

	// Hard delete removes it for good
	rec = s.do(t, http.MethodDelete, "/api/positions/"+p.ID+"?hard=true", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/positions/"+p.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPositions_ListByCategory(t *testing.T) {
	s := newTestServer(t)
	s.createWelder(t)
	rec := s.do(t, http.MethodPost, "/api/positions", `{
		"name": "Helper", "base_salary": 1500, "monthly_hours": 220, "category": "both"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	list := decode[api.PositionListDTO](t, s.do(t, http.MethodGet, "/api/positions?category=assembly", nil))
	require.Len(t, list.Positions, 1)
	assert.Equal(t, "Helper", list.Positions[0].Name)
	assert.True(t, list.ActiveOnly)

	rec = s.do(t, http.MethodGet, "/api/positions?category=roofing", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func TestConfiguration_DefaultAndCascade(t *testing.T) {
	// GIVEN: One position on the default configuration
	s := newTestServer(t)
	p := s.createWelder(t)

	cfg := decode[labor.SalaryConfiguration](t, s.do(t, http.MethodGet, "/api/configuration", nil))
	assert.True(t, cfg.SocialChargesRate.Equal(labor.DefaultSocialChargesRate))

	// WHEN: The social charges rate changes
	rec := s.do(t, http.MethodPut, "/api/configuration", `{"social_charges_rate": "0.6"}`)

	// THEN: The position is recomputed in the same request
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[api.CascadeDTO](t, rec)
	assert.True(t, report.Cascaded)
	assert.Equal(t, []string{p.ID}, report.Succeeded)
	assert.Empty(t, report.Failed)

	got := decode[labor.Position](t, s.do(t, http.MethodGet, "/api/positions/"+p.ID, nil))
	assert.Equal(t, "990", got.SocialChargesAmount.String())
	assert.Equal(t, 2, got.Version)
}

func TestConfiguration_EmptyPatchRejected(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/configuration", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/configuration", `{"social_charges_rate": 1.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfiguration_MalformedBody(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/configuration", `{"social_charges_rate": `)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decode[api.ErrorResponse](t, rec).Error)
}

// =============================================================================
// BUDGETS
// =============================================================================

func TestBudgets_ReportFlow(t *testing.T) {
	// GIVEN: A two-composition budget built through the API
	s := newTestServer(t)
	b := s.createWarehouse(t)

	// WHEN: The report is requested
	rec := s.do(t, http.MethodGet, "/api/budgets/"+b.ID+"/report", nil)

	// THEN: Valuation, DRE and ABC agree
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[budget.Report](t, rec)
	assert.Equal(t, "1000", report.Valuation.TotalDirectCost.String())
	assert.Equal(t, "175", report.Valuation.TotalOverhead.String())
	assert.Equal(t, "1353.6", report.Valuation.FinalSalePrice.String())
	assert.True(t, report.DRE.GrossRevenue.Equal(report.Valuation.FinalSalePrice))
	require.Len(t, report.ABC.Items, 3)
	assert.Equal(t, "steel beam", report.ABC.Items[0].Description)
	assert.Empty(t, report.Alerts)

	stored := decode[budget.Budget](t, s.do(t, http.MethodGet, "/api/budgets/"+b.ID, nil))
	assert.Equal(t, 3, stored.Version)
	assert.Len(t, stored.Compositions, 2)
	assert.True(t, stored.Valuation.FinalSalePrice.Equal(report.Valuation.FinalSalePrice))
}

func TestBudgets_ListSummaries(t *testing.T) {
	s := newTestServer(t)
	s.createWarehouse(t)

	list := decode[[]api.BudgetSummaryDTO](t, s.do(t, http.MethodGet, "/api/budgets", nil))

	require.Len(t, list, 1)
	assert.Equal(t, "Warehouse", list[0].Name)
	assert.Equal(t, "1353.6", list[0].Valuation.FinalSalePrice.String())
}

func TestBudgets_UpdateAndConflict(t *testing.T) {
	s := newTestServer(t)
	b := s.createWarehouse(t)

	rec := s.do(t, http.MethodPatch, "/api/budgets/"+b.ID, `{"tax_profile": {"iss_enabled": false, "revenue_tier": 3}, "expected_version": 3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[budget.Budget](t, rec)
	// 1175 taxed at tier 3 only (10.2%)
	assert.Equal(t, "1294.85", updated.Valuation.FinalSalePrice.String())

	rec = s.do(t, http.MethodPatch, "/api/budgets/"+b.ID, `{"name": "Stale", "expected_version": 3}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBudgets_CompositionEdits(t *testing.T) {
	s := newTestServer(t)
	b := s.createWarehouse(t)
	stored := decode[budget.Budget](t, s.do(t, http.MethodGet, "/api/budgets/"+b.ID, nil))
	tools := stored.Compositions[1]

	rec := s.do(t, http.MethodPut, "/api/budgets/"+b.ID+"/compositions/"+tools.ID, `{"overhead_rate": 0.25}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "625", decode[budget.Composition](t, rec).TotalWithOverhead.String())

	rec = s.do(t, http.MethodGet, "/api/budgets/"+b.ID+"/compositions/"+tools.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/budgets/"+b.ID+"/compositions/"+tools.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	after := decode[budget.Budget](t, s.do(t, http.MethodGet, "/api/budgets/"+b.ID, nil))
	assert.Len(t, after.Compositions, 1)
	assert.Equal(t, "500", after.Valuation.TotalDirectCost.String())
}

func TestBudgets_NotFound(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{
		"/api/budgets/missing",
		"/api/budgets/missing/report",
		"/api/budgets/missing/export.xlsx",
		"/api/budgets/missing/export.pdf",
	} {
		rec := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	rec := s.do(t, http.MethodPost, "/api/budgets/missing/compositions", `{"name": "x", "overhead_rate": 0.1, "items": []}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBudgets_CompositionOwnership(t *testing.T) {
	s := newTestServer(t)
	first := s.createWarehouse(t)
	second := s.createWarehouse(t)
	stored := decode[budget.Budget](t, s.do(t, http.MethodGet, "/api/budgets/"+first.ID, nil))

	rec := s.do(t, http.MethodDelete, "/api/budgets/"+second.ID+"/compositions/"+stored.Compositions[0].ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBudgets_Delete(t *testing.T) {
	s := newTestServer(t)
	b := s.createWarehouse(t)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/budgets/"+b.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/budgets/"+b.ID, nil).Code)
}

// =============================================================================
// EXPORTS
// =============================================================================

func TestExport_Excel(t *testing.T) {
	s := newTestServer(t)
	b := s.createWarehouse(t)

	rec := s.do(t, http.MethodGet, "/api/budgets/"+b.ID+"/export.xlsx", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="warehouse.xlsx"`, rec.Header().Get("Content-Disposition"))
	// XLSX is a zip archive.
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func TestExport_PDF(t *testing.T) {
	s := newTestServer(t)
	b := s.createWarehouse(t)

	rec := s.do(t, http.MethodGet, "/api/budgets/"+b.ID+"/export.pdf", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
}

// =============================================================================
// REFERENCE DATA, HEALTH, METRICS
// =============================================================================

func TestTaxBrackets(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/tax-brackets", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[api.TaxBracketsDTO](t, rec)
	assert.Equal(t, budget.DefaultTier, got.DefaultTier)
	assert.Len(t, got.Brackets, len(budget.DefaultTaxTable().Brackets))
}

func TestPolicy(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/policy", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[api.PolicyDTO](t, rec)
	require.NotNil(t, got.Policy.Tax)
	require.NotNil(t, got.Policy.Alerts)
	assert.Len(t, got.Policy.Tax.Brackets, len(budget.DefaultTaxTable().Brackets))
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	s.handler.Ping = func(context.Context) error { return errors.New("disk full") }
	rec = s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "disk full", decode[api.HealthDTO](t, rec).Error)
}

func TestMetrics_CountsRequestsByRoute(t *testing.T) {
	s := newTestServer(t)
	p := s.createWelder(t)
	s.do(t, http.MethodGet, "/api/positions/"+p.ID, nil)

	rec := s.do(t, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `cost_engine_http_requests_total{method="GET",route="/api/positions/{id}",status="200"} 1`), body)
	assert.True(t, strings.Contains(body, `status="201"`), body)
	assert.True(t, strings.Contains(body, "cost_engine_http_request_duration_seconds_bucket"), body)
}

func TestCORS_Preflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/budgets", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
