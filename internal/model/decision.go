package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Classification maps a SKU to an HS code with a confidence.
type Classification struct {
	SKU        string  `json:"sku"`
	HSCode     string  `json:"hts_code"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// CostBreakdown is the landed cost of an alternative route compared with a baseline.
// ETADaysDelta is nil when either region has no supplier lead-time records.
type CostBreakdown struct {
	SKU           string                     `json:"sku"`
	COGS          decimal.Decimal            `json:"cogs_usd"`
	MarginPPDelta float64                    `json:"margin_pp_delta"`
	ETADaysDelta  *float64                   `json:"eta_days_delta"`
	Components    map[string]decimal.Decimal `json:"components"`
}

// SourcingOption is one ranked alternative route. Lower CostDelta, RiskScore and
// Score are better.
type SourcingOption struct {
	SKU           string   `json:"sku"`
	SupplierID    string   `json:"supplier_id"`
	RouteID       string   `json:"route_id"`
	CostDelta     float64  `json:"cost_delta"`
	LeadTimeDelta *float64 `json:"lead_time_delta"`
	RiskScore     float64  `json:"risk_score"`
	Score         float64  `json:"score"`
	Explanation   string   `json:"explanation"`
}

// Action summarizes a proposed sourcing switch for the policy gate.
// LeadTimeDays is nil when the lead-time impact is unknown.
type Action struct {
	SKU           string     `json:"sku"`
	DeltaMarginPP float64    `json:"delta_margin_pp"`
	LeadTimeDays  *float64   `json:"lead_time_days"`
	RiskScore     float64    `json:"risk_score"`
	HTSConfidence float64    `json:"hts_confidence"`
	ChangeType    ChangeType `json:"regulatory_change_type"`
}

// PolicyOutcome is the result of a policy evaluation.
type PolicyOutcome struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// DecisionRecord is one audit-trail entry. Records are never mutated after creation.
type DecisionRecord struct {
	ID           string            `json:"id"`
	SKU          string            `json:"sku"`
	Event        TariffChangeEvent `json:"event"`
	Chosen       *SourcingOption   `json:"chosen,omitempty"`
	AutoExecuted bool              `json:"auto_executed"`
	Reason       string            `json:"reason"`
	DecidedAt    time.Time         `json:"decided_at"`
}

// Float returns a pointer to v, for optional numeric fields.
func Float(v float64) *float64 {
	return &v
}
