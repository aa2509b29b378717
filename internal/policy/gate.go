package policy

import (
	"math"

	"github.com/sells-group/tariff-cli/internal/model"
)

// Denial and approval reasons.
const (
	ReasonForcedApproval = "Structural/ambiguous change requires approval"
	ReasonLowConfidence  = "HTS confidence below 0.9"
	ReasonWithin         = "Within auto-exec thresholds"
	ReasonOutside        = "Outside auto thresholds — approval needed"
)

// Gate evaluates actions against a policy. It holds no mutable state.
type Gate struct {
	cfg *Config
}

// NewGate creates a Gate for a validated policy.
func NewGate(cfg *Config) *Gate {
	return &Gate{cfg: cfg}
}

// Weights returns the route-ranking weights of the policy.
func (g *Gate) Weights() Weights {
	return g.cfg.Weights
}

// Evaluate applies the rules in order; the first match wins. Change type and
// confidence are hard gates checked before any numeric threshold.
func (g *Gate) Evaluate(a model.Action) model.PolicyOutcome {
	if g.cfg.RequiresApproval[a.ChangeType] {
		return model.PolicyOutcome{Allowed: false, Reason: ReasonForcedApproval}
	}

	if a.HTSConfidence < ReviewThreshold {
		return model.PolicyOutcome{Allowed: false, Reason: ReasonLowConfidence}
	}

	t := g.cfg.AutoExecute
	if math.Abs(a.DeltaMarginPP) <= t.MarginPP &&
		a.LeadTimeDays != nil && math.Abs(*a.LeadTimeDays) <= t.LeadTimeDays &&
		a.RiskScore <= t.RiskScore {
		return model.PolicyOutcome{Allowed: true, Reason: ReasonWithin}
	}

	return model.PolicyOutcome{Allowed: false, Reason: ReasonOutside}
}
