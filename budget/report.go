package budget

import "time"

// CompositionABC is the Pareto breakdown of one composition.
type CompositionABC struct {
	CompositionID string    `json:"composition_id"`
	Name          string    `json:"name"`
	ABC           ABCResult `json:"abc"`
}

// Report bundles every derived view of a budget, computed in one pass from
// the same inputs. Presentation and export read a Report and nothing else,
// so what they show is always internally consistent.
type Report struct {
	Budget         Budget           `json:"budget"`
	Valuation      Valuation        `json:"valuation"`
	DRE            DRE              `json:"dre"`
	ABC            ABCResult        `json:"abc"`
	CompositionABC []CompositionABC `json:"composition_abc"`
	Alerts         []Alert          `json:"alerts"`
	GeneratedAt    time.Time        `json:"generated_at"`
}

// BuildReport values b and derives the DRE, ABC and alerts from it.
func BuildReport(b Budget, table TaxTable, policy AlertPolicy, now time.Time) (Report, error) {
	comps := make([]Composition, len(b.Compositions))
	for i, c := range b.Compositions {
		comps[i] = c.Recompute()
	}
	b.Compositions = comps

	v, err := Value(b, table)
	if err != nil {
		return Report{}, err
	}
	b.Valuation = v
	d := ProjectDRE(v)

	items, sources := b.AllItems()
	abc := ClassifyABC(items)
	for i := range abc.Items {
		abc.Items[i].Source = sources[abc.Items[i].InputIndex]
	}

	perComposition := make([]CompositionABC, len(comps))
	for i, c := range comps {
		perComposition[i] = CompositionABC{
			CompositionID: c.ID,
			Name:          c.Name,
			ABC:           ClassifyABC(c.Items),
		}
	}

	return Report{
		Budget:         b,
		Valuation:      v,
		DRE:            d,
		ABC:            abc,
		CompositionABC: perComposition,
		Alerts:         EvaluateAlerts(b, v, d, policy),
		GeneratedAt:    now,
	}, nil
}
