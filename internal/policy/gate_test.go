package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/tariff-cli/internal/model"
)

func favorable() model.Action {
	return model.Action{
		SKU:           "SKU-1",
		DeltaMarginPP: 0.5,
		LeadTimeDays:  model.Float(2),
		RiskScore:     25,
		HTSConfidence: 0.95,
		ChangeType:    model.ChangeTariffIncrease,
	}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()
	g := testGate(t)

	tests := []struct {
		name    string
		mutate  func(a *model.Action)
		allowed bool
		reason  string
	}{
		{"within thresholds", func(a *model.Action) {}, true, ReasonWithin},
		{"structural forces approval", func(a *model.Action) { a.ChangeType = model.ChangeStructural }, false, ReasonForcedApproval},
		{"ambiguous forces approval", func(a *model.Action) { a.ChangeType = model.ChangeAmbiguous }, false, ReasonForcedApproval},
		{"low confidence", func(a *model.Action) { a.HTSConfidence = 0.89 }, false, ReasonLowConfidence},
		{"confidence at threshold passes", func(a *model.Action) { a.HTSConfidence = 0.90 }, true, ReasonWithin},
		{"margin hit too large", func(a *model.Action) { a.DeltaMarginPP = -2.5 }, false, ReasonOutside},
		{"margin gain too large", func(a *model.Action) { a.DeltaMarginPP = 2.5 }, false, ReasonOutside},
		{"margin at threshold", func(a *model.Action) { a.DeltaMarginPP = -2.0 }, true, ReasonWithin},
		{"lead time too long", func(a *model.Action) { a.LeadTimeDays = model.Float(8) }, false, ReasonOutside},
		{"lead time faster beyond threshold", func(a *model.Action) { a.LeadTimeDays = model.Float(-8) }, false, ReasonOutside},
		{"unknown lead time", func(a *model.Action) { a.LeadTimeDays = nil }, false, ReasonOutside},
		{"risk too high", func(a *model.Action) { a.RiskScore = 35 }, false, ReasonOutside},
		{"decrease is not forced", func(a *model.Action) { a.ChangeType = model.ChangeTariffDecrease }, true, ReasonWithin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := favorable()
			tt.mutate(&a)
			got := g.Evaluate(a)
			assert.Equal(t, tt.allowed, got.Allowed)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestEvaluate_HardGatesShortCircuit(t *testing.T) {
	t.Parallel()
	g := testGate(t)

	// Perfect numbers cannot rescue a forced-approval change type, even with
	// low confidence also present: the change-type rule is checked first.
	a := model.Action{
		DeltaMarginPP: 0,
		LeadTimeDays:  model.Float(0),
		RiskScore:     0,
		HTSConfidence: 0.1,
		ChangeType:    model.ChangeStructural,
	}
	assert.Equal(t, ReasonForcedApproval, g.Evaluate(a).Reason)

	a.ChangeType = model.ChangeTariffIncrease
	got := g.Evaluate(a)
	assert.False(t, got.Allowed)
	assert.Equal(t, ReasonLowConfidence, got.Reason)
}

func TestEvaluate_EmptyApprovalSet(t *testing.T) {
	t.Parallel()
	cfg, err := ParseConfig([]byte(`
auto_execute_if:
  margin_hit_pp_lt: 1
  lead_time_increase_days_lt: 1
  supplier_switch_risk_score_lt: 50
requires_approval_if:
  regulatory_change_type: []
`))
	assert.NoError(t, err)

	a := favorable()
	a.DeltaMarginPP = 0
	a.LeadTimeDays = model.Float(0)
	a.ChangeType = model.ChangeStructural
	assert.True(t, NewGate(cfg).Evaluate(a).Allowed)
}
