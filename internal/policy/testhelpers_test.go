package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
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

func testGate(t *testing.T) *Gate {
	t.Helper()
	cfg, err := ParseConfig([]byte(testPolicyYAML))
	require.NoError(t, err)
	return NewGate(cfg)
}
