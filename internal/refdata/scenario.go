package refdata

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/tariff-cli/internal/model"
)

// ScenarioSource is the Source recorded on events built from demo scenarios.
const ScenarioSource = "demo:scenarios.csv"

// ScenarioEvent builds the tariff-increase event for demo scenario id.
func ScenarioEvent(s Store, id int, dest string) (model.TariffChangeEvent, error) {
	sc, ok := s.Scenario(id)
	if !ok {
		return model.TariffChangeEvent{}, eris.Errorf("refdata: unknown scenario %d", id)
	}
	eff := sc.StartDate
	if eff == "" {
		eff = model.UnknownEffectiveDate
	}
	return model.TariffChangeEvent{
		HSCode:        sc.AffectedHS,
		Origin:        sc.Origin,
		Destination:   dest,
		NewRatePct:    sc.NewRatePct,
		EffectiveDate: eff,
		ChangeType:    model.ChangeTariffIncrease,
		Source:        ScenarioSource,
	}, nil
}
