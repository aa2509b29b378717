// Package policy decides whether a proposed sourcing switch may be executed
// automatically or needs human approval.
package policy

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/tariff-cli/internal/model"
)

// ReviewThreshold is the classification confidence below which a SKU needs
// human review and cannot be auto-executed.
const ReviewThreshold = 0.90

// Thresholds are the numeric limits for auto-execution. All three are required.
type Thresholds struct {
	MarginPP     float64 `yaml:"margin_hit_pp_lt"`
	LeadTimeDays float64 `yaml:"lead_time_increase_days_lt"`
	RiskScore    float64 `yaml:"supplier_switch_risk_score_lt"`
}

// Weights are the route-ranking weights. Score = Cost*penalty + LeadTime*|lead| + Risk*(risk/10).
type Weights struct {
	CostDelta           float64 `yaml:"cost_delta"`
	LeadTimeDelta       float64 `yaml:"lead_time_delta"`
	ComplianceRisk      float64 `yaml:"compliance_risk"`
	UnknownLeadTimeDays float64 `yaml:"unknown_lead_time_days"`
}

// Config is the validated policy.
type Config struct {
	AutoExecute      Thresholds
	RequiresApproval map[model.ChangeType]bool
	Weights          Weights
}

// DefaultWeights returns the fallback ranking weights.
func DefaultWeights() Weights {
	return Weights{
		CostDelta:           0.5,
		LeadTimeDelta:       0.25,
		ComplianceRisk:      0.25,
		UnknownLeadTimeDays: 30,
	}
}

// rawConfig mirrors the YAML file. Pointers distinguish "absent" from zero.
type rawConfig struct {
	AutoExecuteIf *struct {
		MarginPP     *float64 `yaml:"margin_hit_pp_lt"`
		LeadTimeDays *float64 `yaml:"lead_time_increase_days_lt"`
		RiskScore    *float64 `yaml:"supplier_switch_risk_score_lt"`
	} `yaml:"auto_execute_if"`
	RequiresApprovalIf *struct {
		ChangeTypes *[]string `yaml:"regulatory_change_type"`
	} `yaml:"requires_approval_if"`
	ScoringWeights *struct {
		CostDelta           *float64 `yaml:"cost_delta"`
		LeadTimeDelta       *float64 `yaml:"lead_time_delta"`
		ComplianceRisk      *float64 `yaml:"compliance_risk"`
		UnknownLeadTimeDays *float64 `yaml:"unknown_lead_time_days"`
	} `yaml:"scoring_weights"`
}

// LoadConfig reads and validates a policy file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "policy: read config %s", path)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates policy YAML. Missing or invalid thresholds
// and a missing requires_approval_if list are an error; missing scoring
// weights fall back to DefaultWeights.
func ParseConfig(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "policy: parse config")
	}

	var errs []string
	cfg := &Config{RequiresApproval: make(map[model.ChangeType]bool)}

	if raw.AutoExecuteIf == nil {
		errs = append(errs, "auto_execute_if is required")
	} else {
		fields := []struct {
			name string
			src  *float64
			dst  *float64
		}{
			{"margin_hit_pp_lt", raw.AutoExecuteIf.MarginPP, &cfg.AutoExecute.MarginPP},
			{"lead_time_increase_days_lt", raw.AutoExecuteIf.LeadTimeDays, &cfg.AutoExecute.LeadTimeDays},
			{"supplier_switch_risk_score_lt", raw.AutoExecuteIf.RiskScore, &cfg.AutoExecute.RiskScore},
		}
		for _, f := range fields {
			switch {
			case f.src == nil:
				errs = append(errs, fmt.Sprintf("auto_execute_if.%s is required", f.name))
			case *f.src < 0 || math.IsNaN(*f.src) || math.IsInf(*f.src, 0):
				errs = append(errs, fmt.Sprintf("auto_execute_if.%s must be a finite value >= 0", f.name))
			default:
				*f.dst = *f.src
			}
		}
	}

	// An empty list is allowed; a missing one is not.
	if raw.RequiresApprovalIf == nil || raw.RequiresApprovalIf.ChangeTypes == nil {
		errs = append(errs, "requires_approval_if.regulatory_change_type is required")
	} else {
		for _, ct := range *raw.RequiresApprovalIf.ChangeTypes {
			c := model.ChangeType(ct)
			if !c.Valid() {
				errs = append(errs, fmt.Sprintf("requires_approval_if.regulatory_change_type: unknown type %q", ct))
				continue
			}
			cfg.RequiresApproval[c] = true
		}
	}

	if len(errs) > 0 {
		return nil, eris.Errorf("policy: config validation failed: %s", strings.Join(errs, "; "))
	}

	cfg.Weights = resolveWeights(raw)
	return cfg, nil
}

// resolveWeights fills absent weights from the defaults. Weights that are
// negative or sum to zero are replaced by the full default set.
func resolveWeights(raw rawConfig) Weights {
	w := DefaultWeights()
	if raw.ScoringWeights == nil {
		return w
	}

	sw := raw.ScoringWeights
	for _, f := range []struct {
		src *float64
		dst *float64
	}{
		{sw.CostDelta, &w.CostDelta},
		{sw.LeadTimeDelta, &w.LeadTimeDelta},
		{sw.ComplianceRisk, &w.ComplianceRisk},
		{sw.UnknownLeadTimeDays, &w.UnknownLeadTimeDays},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}

	if err := ValidateWeights(w); err != nil {
		zap.L().Warn("policy: malformed scoring weights, using defaults", zap.Error(err))
		return DefaultWeights()
	}
	return w
}

// ValidateWeights checks that a weight set is usable for ranking.
func ValidateWeights(w Weights) error {
	var errs []string
	for name, v := range map[string]float64{
		"cost_delta":             w.CostDelta,
		"lead_time_delta":        w.LeadTimeDelta,
		"compliance_risk":        w.ComplianceRisk,
		"unknown_lead_time_days": w.UnknownLeadTimeDays,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Sprintf("%s must be a finite value >= 0", name))
		}
	}
	if w.CostDelta+w.LeadTimeDelta+w.ComplianceRisk <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}
	if len(errs) > 0 {
		return eris.Errorf("policy: invalid weights: %s", strings.Join(errs, "; "))
	}
	return nil
}
