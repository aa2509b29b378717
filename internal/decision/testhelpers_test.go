package decision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tariff-cli/internal/landedcost"
	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/policy"
	"github.com/sells-group/tariff-cli/internal/refdata"
	"github.com/sells-group/tariff-cli/internal/sourcing"
)

const testPolicyYAML = `
auto_execute_if:
  margin_hit_pp_lt: 2.0
  lead_time_increase_days_lt: 7
  supplier_switch_risk_score_lt: 30
requires_approval_if:
  regulatory_change_type: [structural, ambiguous]
scoring_weights:
  cost_delta: 0.5
  lead_time_delta: 0.25
  compliance_risk: 0.25
`

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func testGate(t *testing.T, yaml string) *policy.Gate {
	t.Helper()
	cfg, err := policy.ParseConfig([]byte(yaml))
	require.NoError(t, err)
	return policy.NewGate(cfg)
}

// testStore has a CN->US baseline and a VN->US alternative, both at 0% for
// 870830 before any event.
func testStore() *refdata.Memory {
	return refdata.NewMemory(refdata.Data{
		Components: []model.Component{
			{SKU: "SKU-E", PartID: "P1", HSCode: "870830", QtyPer: 1, UnitCostUSD: 10},
			{SKU: "SKU-LOW", PartID: "P2", HSCode: "8708", QtyPer: 1, UnitCostUSD: 5},
			{SKU: "SKU-LOW", PartID: "P3", HSCode: "870830", QtyPer: 1, UnitCostUSD: 5},
			{SKU: "SKU-OTHER", PartID: "P4", HSCode: "8709", QtyPer: 1, UnitCostUSD: 1},
			{SKU: "SKU-OTHER", PartID: "P5", HSCode: "870899", QtyPer: 1, UnitCostUSD: 1},
		},
		Suppliers: []model.Supplier{
			{ID: "S-CN", Country: "CN", LeadTimeDays: 35},
			{ID: "S-VN", Country: "VN", LeadTimeDays: 40},
		},
		Routes: []model.Route{
			{ID: "R-CN-US", Legs: []model.Leg{{Origin: "CN", Destination: "US"}}},
			{ID: "R-VN-US", Legs: []model.Leg{{Origin: "VN", Destination: "US"}}},
		},
		Tariffs: []model.TariffRate{
			{HSCode: "870830", Origin: "CN", Destination: "US", RatePct: 0, EffectiveDate: day("2020-01-01")},
			{HSCode: "870830", Origin: "VN", Destination: "US", RatePct: 0, EffectiveDate: day("2020-01-01")},
		},
	})
}

func cnIncrease(hs string) model.TariffChangeEvent {
	return model.TariffChangeEvent{
		HSCode:        hs,
		Origin:        "CN",
		Destination:   "US",
		NewRatePct:    25,
		EffectiveDate: "2025-09-01",
		ChangeType:    model.ChangeTariffIncrease,
		Source:        "demo:scenarios.csv",
	}
}

// newTestSession wires the real engine, optimizer and gate.
func newTestSession(t *testing.T) *Session {
	t.Helper()
	store := testStore()
	gate := testGate(t, testPolicyYAML)
	engine := landedcost.New(store, landedcost.DefaultFreightFraction,
		landedcost.WithClock(func() time.Time { return testNow }))
	opt := sourcing.New(engine, gate.Weights(), 2)
	return NewSession(store, opt, gate, WithClock(func() time.Time { return testNow }))
}

type mockRanker struct {
	mock.Mock
}

func (m *mockRanker) TopOptions(ctx context.Context, sku, baseRoute string, ev *model.TariffChangeEvent, priceUSD float64) ([]model.SourcingOption, error) {
	args := m.Called(ctx, sku, baseRoute, ev, priceUSD)
	opts, _ := args.Get(0).([]model.SourcingOption)
	return opts, args.Error(1)
}
