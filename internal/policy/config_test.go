package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tariff-cli/internal/model"
)

func TestParseConfig_Full(t *testing.T) {
	t.Parallel()
	cfg, err := ParseConfig([]byte(testPolicyYAML))
	require.NoError(t, err)

	assert.InDelta(t, 2.0, cfg.AutoExecute.MarginPP, 0.0001)
	assert.InDelta(t, 7.0, cfg.AutoExecute.LeadTimeDays, 0.0001)
	assert.InDelta(t, 30.0, cfg.AutoExecute.RiskScore, 0.0001)
	assert.True(t, cfg.RequiresApproval[model.ChangeStructural])
	assert.True(t, cfg.RequiresApproval[model.ChangeAmbiguous])
	assert.False(t, cfg.RequiresApproval[model.ChangeTariffIncrease])
	assert.Equal(t, DefaultWeights(), cfg.Weights)
}

func TestParseConfig_MissingThresholdsFailLoudly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "no auto_execute_if section",
			yaml: "scoring_weights:\n  cost_delta: 1\n",
			want: []string{"auto_execute_if is required"},
		},
		{
			name: "partial thresholds",
			yaml: "auto_execute_if:\n  margin_hit_pp_lt: 1\n",
			want: []string{
				"auto_execute_if.lead_time_increase_days_lt is required",
				"auto_execute_if.supplier_switch_risk_score_lt is required",
			},
		},
		{
			name: "negative threshold",
			yaml: "auto_execute_if:\n  margin_hit_pp_lt: -1\n  lead_time_increase_days_lt: 1\n  supplier_switch_risk_score_lt: 1\n",
			want: []string{"margin_hit_pp_lt must be a finite value >= 0"},
		},
		{
			name: "unknown change type",
			yaml: "auto_execute_if:\n  margin_hit_pp_lt: 1\n  lead_time_increase_days_lt: 1\n  supplier_switch_risk_score_lt: 1\n" +
				"requires_approval_if:\n  regulatory_change_type: [tariff_shock]\n",
			want: []string{`unknown type "tariff_shock"`},
		},
		{
			name: "no requires_approval_if section",
			yaml: "auto_execute_if:\n  margin_hit_pp_lt: 1\n  lead_time_increase_days_lt: 1\n  supplier_switch_risk_score_lt: 1\n",
			want: []string{"requires_approval_if.regulatory_change_type is required"},
		},
		{
			name: "requires_approval_if without change types",
			yaml: "auto_execute_if:\n  margin_hit_pp_lt: 1\n  lead_time_increase_days_lt: 1\n  supplier_switch_risk_score_lt: 1\n" +
				"requires_approval_if: {}\n",
			want: []string{"requires_approval_if.regulatory_change_type is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseConfig([]byte(tt.yaml))
			require.Error(t, err)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestParseConfig_EmptyApprovalListAllowed(t *testing.T) {
	t.Parallel()
	cfg, err := ParseConfig([]byte("auto_execute_if:\n  margin_hit_pp_lt: 1\n  lead_time_increase_days_lt: 1\n  supplier_switch_risk_score_lt: 1\n" +
		"requires_approval_if:\n  regulatory_change_type: []\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.RequiresApproval)
}

func TestParseConfig_InvalidYAML(t *testing.T) {
	t.Parallel()
	_, err := ParseConfig([]byte("auto_execute_if: [oops"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy: parse config")
}

func TestParseConfig_Weights(t *testing.T) {
	t.Parallel()
	base := "auto_execute_if:\n  margin_hit_pp_lt: 1\n  lead_time_increase_days_lt: 1\n  supplier_switch_risk_score_lt: 1\n" +
		"requires_approval_if:\n  regulatory_change_type: [structural]\n"

	tests := []struct {
		name string
		yaml string
		want Weights
	}{
		{
			name: "absent section uses defaults",
			yaml: base,
			want: DefaultWeights(),
		},
		{
			name: "partial section fills the rest",
			yaml: base + "scoring_weights:\n  cost_delta: 0.8\n",
			want: Weights{CostDelta: 0.8, LeadTimeDelta: 0.25, ComplianceRisk: 0.25, UnknownLeadTimeDays: 30},
		},
		{
			name: "negative weight falls back",
			yaml: base + "scoring_weights:\n  cost_delta: -1\n  lead_time_delta: 0.2\n  compliance_risk: 0.2\n",
			want: DefaultWeights(),
		},
		{
			name: "all zero falls back",
			yaml: base + "scoring_weights:\n  cost_delta: 0\n  lead_time_delta: 0\n  compliance_risk: 0\n",
			want: DefaultWeights(),
		},
		{
			name: "custom set",
			yaml: base + "scoring_weights:\n  cost_delta: 1\n  lead_time_delta: 0\n  compliance_risk: 0\n  unknown_lead_time_days: 10\n",
			want: Weights{CostDelta: 1, UnknownLeadTimeDays: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := ParseConfig([]byte(tt.yaml))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Weights)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPolicyYAML), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, cfg.AutoExecute.RiskScore, 0.0001)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy: read config")
}
