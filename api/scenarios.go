/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate storage with realistic data
	for demos. Each scenario creates positions and budgets through the same
	registry and service the API uses, so everything stored is priced by the
	engine itself.

AVAILABLE SCENARIOS:

	metal-shed:     Fabrication crew + a steel shed budget priced from
	                the crew's hourly costs (within policy, no alerts)
	thin-overhead:  A renovation budget with BDI below policy (alerts)
	tier-upgrade:   A large budget on the top revenue bracket with built
	                area, showing price per m2

HOW SCENARIOS WORK:
 1. Reset storage (clear all data)
 2. Create positions via the labor registry
 3. Create budgets and compositions via the budget service; labor line
    items are priced at the positions' hourly cost

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "metal-shed"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' with ID, name, description and loader

NOTE:

	Scenarios reset storage. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler dependencies
  - cmd/server/main.go: --scenario seeds one on startup
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/cost-engine/budget"
	"github.com/warp/cost-engine/generic"
	"github.com/warp/cost-engine/labor"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, h *Handler) ([]string, error)
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "metal-shed",
			Name:        "Metal Shed",
			Description: "Fabrication crew and a steel shed budget priced from their hourly cost, within policy",
		},
		load: loadMetalShedScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "thin-overhead",
			Name:        "Thin Overhead",
			Description: "Renovation budget with BDI below policy, raising viability alerts",
		},
		load: loadThinOverheadScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "tier-upgrade",
			Name:        "Top Revenue Bracket",
			Description: "Large industrial budget on the highest tax bracket with price per m2",
		},
		load: loadTierUpgradeScenario,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	s, ok := findScenario(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario resets storage and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, ok := findScenario(req.ScenarioID); !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", req.ScenarioID)
		return
	}

	result, err := h.SeedScenario(r.Context(), req.ScenarioID)
	if err != nil {
		h.writeDomainError(w, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SeedScenario resets storage and loads scenario id.
func (h *Handler) SeedScenario(ctx context.Context, id string) (LoadScenarioDTO, error) {
	s, ok := findScenario(id)
	if !ok {
		return LoadScenarioDTO{}, generic.Invalid("scenario_id", "unknown scenario %q", id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.Reset != nil {
		if err := h.Reset(ctx); err != nil {
			return LoadScenarioDTO{}, fmt.Errorf("reset storage: %w", err)
		}
	}
	h.currentScenario = ""

	budgetIDs, err := s.load(ctx, h)
	if err != nil {
		return LoadScenarioDTO{}, fmt.Errorf("load scenario %s: %w", id, err)
	}
	positions, err := h.Positions.List(ctx)
	if err != nil {
		return LoadScenarioDTO{}, err
	}

	h.currentScenario = id
	h.logger.Info("scenario loaded", "scenario", id, "positions", len(positions), "budgets", len(budgetIDs))
	return LoadScenarioDTO{Scenario: s.ScenarioDTO, Positions: len(positions), Budgets: budgetIDs}, nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func dec(s string) decimal.Decimal { return generic.MustDecimal(s) }

// crew creates the positions and returns them by name.
func crew(ctx context.Context, h *Handler, inputs ...labor.PositionInput) (map[string]labor.Position, error) {
	out := make(map[string]labor.Position, len(inputs))
	for _, in := range inputs {
		p, err := h.Positions.Create(ctx, in)
		if err != nil {
			return nil, err
		}
		out[p.Name] = p
	}
	return out, nil
}

// laborItem prices hours of a position at its hourly cost.
func laborItem(p labor.Position, hours string) budget.LineItem {
	return budget.LineItem{
		Description: p.Name,
		Unit:        "h",
		Quantity:    dec(hours),
		UnitValue:   generic.RoundMoney(p.HourlyCost),
		Category:    budget.ItemLabor,
	}
}

func materialItem(code, desc, unit, qty, price string) budget.LineItem {
	return budget.LineItem{
		Code:        code,
		Description: desc,
		Unit:        unit,
		Quantity:    dec(qty),
		UnitValue:   dec(price),
		Category:    budget.ItemMaterial,
	}
}

func addCompositions(ctx context.Context, h *Handler, budgetID string, inputs ...budget.CompositionInput) error {
	for _, in := range inputs {
		if _, err := h.Budgets.AddComposition(ctx, budgetID, in); err != nil {
			return err
		}
	}
	return nil
}

func loadMetalShedScenario(ctx context.Context, h *Handler) ([]string, error) {
	staff, err := crew(ctx, h,
		labor.PositionInput{
			Name:             "Soldador",
			BaseSalary:       dec("2450"),
			HasHazardPay:     true,
			InsalubrityGrade: labor.InsalubrityMedium,
			MonthlyHours:     dec("220"),
			MiscCosts: labor.MiscCosts{
				MealLunch: dec("440"),
				Transport: dec("198"),
				Uniform:   dec("35"),
				PPE:       dec("60"),
			},
			Category: labor.CategoryFabrication,
		},
		labor.PositionInput{
			Name:             "Montador",
			BaseSalary:       dec("2200"),
			InsalubrityGrade: labor.InsalubrityMinimal,
			MonthlyHours:     dec("220"),
			MiscCosts: labor.MiscCosts{
				MealLunch: dec("440"),
				Transport: dec("198"),
				PPE:       dec("45"),
			},
			Category: labor.CategoryAssembly,
		},
		labor.PositionInput{
			Name:             "Ajudante",
			BaseSalary:       dec("1650"),
			InsalubrityGrade: labor.InsalubrityNone,
			MonthlyHours:     dec("220"),
			MiscCosts: labor.MiscCosts{
				MealLunch:       dec("440"),
				Transport:       dec("198"),
				BasicFoodBasket: dec("120"),
			},
			Category: labor.CategoryBoth,
		},
	)
	if err != nil {
		return nil, err
	}

	area := dec("600")
	b, err := h.Budgets.CreateBudget(ctx, budget.BudgetInput{
		Name:   "Galpao metalico 20x30",
		Client: "Agro Vale Ltda",
		TaxProfile: budget.TaxProfile{
			ISSEnabled:  true,
			ISSRate:     dec("0.05"),
			RevenueTier: 3,
		},
		TotalArea: &area,
	})
	if err != nil {
		return nil, err
	}

	err = addCompositions(ctx, h, b.ID,
		budget.CompositionInput{
			Name:         "Estrutura metalica",
			Category:     budget.CategoryMaterials,
			OverheadRate: dec("0.25"),
			Items: []budget.LineItem{
				materialItem("PF-W200", "Perfil W 200x26,6", "kg", "9600", "9.80"),
				materialItem("TR-150", "Telha trapezoidal 0,50mm", "m2", "640", "58.00"),
				materialItem("PAR-12", "Parafuso estrutural 1/2\"", "un", "1800", "3.20"),
			},
		},
		budget.CompositionInput{
			Name:         "Fabricacao e montagem",
			Category:     budget.CategoryLabor,
			OverheadRate: dec("0.25"),
			Items: []budget.LineItem{
				laborItem(staff["Soldador"], "480"),
				laborItem(staff["Montador"], "640"),
				laborItem(staff["Ajudante"], "880"),
			},
		},
		budget.CompositionInput{
			Name:         "Ferramentas e consumiveis",
			Category:     budget.CategoryTools,
			OverheadRate: dec("0.10"),
			Items: []budget.LineItem{
				materialItem("ELT-6013", "Eletrodo E6013", "kg", "180", "32.00"),
				materialItem("DSC-7", "Disco de corte 7\"", "un", "120", "11.50"),
			},
		},
	)
	if err != nil {
		return nil, err
	}
	return []string{b.ID}, nil
}

func loadThinOverheadScenario(ctx context.Context, h *Handler) ([]string, error) {
	staff, err := crew(ctx, h,
		labor.PositionInput{
			Name:             "Pedreiro",
			BaseSalary:       dec("2300"),
			InsalubrityGrade: labor.InsalubrityNone,
			MonthlyHours:     dec("220"),
			MiscCosts:        labor.MiscCosts{MealLunch: dec("440"), Transport: dec("198")},
			Category:         labor.CategoryAssembly,
		},
		labor.PositionInput{
			Name:             "Pintor",
			BaseSalary:       dec("2100"),
			InsalubrityGrade: labor.InsalubrityMinimal,
			MonthlyHours:     dec("220"),
			MiscCosts:        labor.MiscCosts{MealLunch: dec("440"), Transport: dec("198"), PPE: dec("30")},
			Category:         labor.CategoryAssembly,
		},
	)
	if err != nil {
		return nil, err
	}

	b, err := h.Budgets.CreateBudget(ctx, budget.BudgetInput{
		Name:   "Reforma escritorio",
		Client: "Contabil Centro",
		TaxProfile: budget.TaxProfile{
			ISSEnabled:  true,
			ISSRate:     dec("0.03"),
			RevenueTier: 1,
		},
	})
	if err != nil {
		return nil, err
	}

	err = addCompositions(ctx, h, b.ID,
		budget.CompositionInput{
			Name:         "Alvenaria e reboco",
			Category:     budget.CategoryServices,
			OverheadRate: dec("0.12"),
			Items: []budget.LineItem{
				materialItem("BLC-14", "Bloco ceramico 14x19x29", "un", "1200", "2.10"),
				materialItem("ARG-20", "Argamassa 20kg", "sc", "90", "24.00"),
				laborItem(staff["Pedreiro"], "160"),
			},
		},
		budget.CompositionInput{
			Name:         "Pintura",
			Category:     budget.CategoryServices,
			OverheadRate: dec("0.08"),
			Items: []budget.LineItem{
				materialItem("TNT-18", "Tinta acrilica 18L", "gl", "14", "289.00"),
				laborItem(staff["Pintor"], "120"),
			},
		},
		budget.CompositionInput{
			Name:         "Ferramentas",
			Category:     budget.CategoryTools,
			OverheadRate: dec("0.10"),
			Items: []budget.LineItem{
				materialItem("ROL-23", "Rolo de la 23cm", "un", "10", "28.00"),
			},
		},
	)
	if err != nil {
		return nil, err
	}
	return []string{b.ID}, nil
}

func loadTierUpgradeScenario(ctx context.Context, h *Handler) ([]string, error) {
	staff, err := crew(ctx, h,
		labor.PositionInput{
			Name:             "Encarregado de montagem",
			BaseSalary:       dec("4200"),
			HasHazardPay:     true,
			InsalubrityGrade: labor.InsalubrityNone,
			MonthlyHours:     dec("220"),
			MiscCosts: labor.MiscCosts{
				MealLunch:        dec("440"),
				Transport:        dec("198"),
				HealthAssistance: dec("310"),
			},
			Category: labor.CategoryBoth,
		},
		labor.PositionInput{
			Name:             "Caldeireiro",
			BaseSalary:       dec("3100"),
			HasHazardPay:     true,
			InsalubrityGrade: labor.InsalubrityMaximum,
			MonthlyHours:     dec("220"),
			MiscCosts: labor.MiscCosts{
				MealLunch: dec("440"),
				Transport: dec("198"),
				PPE:       dec("90"),
			},
			Category: labor.CategoryFabrication,
		},
	)
	if err != nil {
		return nil, err
	}

	area := dec("4800")
	b, err := h.Budgets.CreateBudget(ctx, budget.BudgetInput{
		Name:   "Pavilhao industrial",
		Client: "Metalurgica Sul S.A.",
		TaxProfile: budget.TaxProfile{
			ISSEnabled:  true,
			ISSRate:     dec("0.04"),
			RevenueTier: 6,
		},
		TotalArea: &area,
	})
	if err != nil {
		return nil, err
	}

	err = addCompositions(ctx, h, b.ID,
		budget.CompositionInput{
			Name:         "Estrutura principal",
			Category:     budget.CategoryMaterials,
			OverheadRate: dec("0.24"),
			Items: []budget.LineItem{
				materialItem("PF-W310", "Perfil W 310x38,7", "kg", "96000", "10.40"),
				materialItem("CHP-8", "Chapa 8mm ASTM A36", "kg", "18000", "9.10"),
			},
		},
		budget.CompositionInput{
			Name:         "Cobertura e fechamento",
			Category:     budget.CategoryMaterials,
			OverheadRate: dec("0.26"),
			Items: []budget.LineItem{
				materialItem("TS-40", "Telha sanduiche 40mm", "m2", "5200", "142.00"),
				materialItem("CAL-01", "Calha e rufo galvanizado", "m", "420", "96.00"),
			},
		},
		budget.CompositionInput{
			Name:         "Mao de obra",
			Category:     budget.CategoryLabor,
			OverheadRate: dec("0.25"),
			Items: []budget.LineItem{
				laborItem(staff["Encarregado de montagem"], "1320"),
				laborItem(staff["Caldeireiro"], "5280"),
			},
		},
		budget.CompositionInput{
			Name:         "Equipamentos",
			Category:     budget.CategoryEquipment,
			OverheadRate: dec("0.25"),
			Items: []budget.LineItem{
				{Description: "Guindaste 50t", Unit: "dia", Quantity: dec("18"), UnitValue: dec("6800"), Category: budget.ItemEquipment},
				{Description: "Plataforma elevatoria", Unit: "mes", Quantity: dec("3"), UnitValue: dec("9500"), Category: budget.ItemEquipment},
			},
		},
	)
	if err != nil {
		return nil, err
	}
	return []string{b.ID}, nil
}
