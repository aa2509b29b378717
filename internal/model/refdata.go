package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Component is one bill-of-materials line for a SKU.
type Component struct {
	SKU         string  `json:"sku"`
	PartID      string  `json:"part_id"`
	HSCode      string  `json:"hts_code"`
	QtyPer      float64 `json:"qty_per"`
	UnitCostUSD float64 `json:"unit_cost_usd"`
}

// Supplier is a supplier record with its home region and historical lead time.
type Supplier struct {
	ID           string  `json:"supplier_id"`
	Country      string  `json:"country"`
	LeadTimeDays float64 `json:"lead_time_days"`
}

// Leg is a single origin→destination hop of a route.
type Leg struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// String renders the leg in its wire form, e.g. "CN->US".
func (l Leg) String() string {
	return l.Origin + "->" + l.Destination
}

// ParseLeg parses the "CN->US" wire form.
func ParseLeg(s string) (Leg, error) {
	origin, dest, ok := strings.Cut(strings.TrimSpace(s), "->")
	origin, dest = strings.TrimSpace(origin), strings.TrimSpace(dest)
	if !ok || origin == "" || dest == "" {
		return Leg{}, eris.Errorf("model: invalid leg %q", s)
	}
	return Leg{Origin: origin, Destination: dest}, nil
}

// Route is an ordered sequence of legs.
type Route struct {
	ID   string `json:"route_id"`
	Legs []Leg  `json:"legs"`
}

// FirstOrigin returns the origin of the first leg, or "" for a zero-leg route.
func (r Route) FirstOrigin() string {
	if len(r.Legs) == 0 {
		return ""
	}
	return r.Legs[0].Origin
}

// TariffRate is one row of the tariff table.
type TariffRate struct {
	HSCode        string    `json:"hs_code"`
	Origin        string    `json:"origin"`
	Destination   string    `json:"destination"`
	RatePct       float64   `json:"rate_pct"`
	EffectiveDate time.Time `json:"effective_date"`
}

// Scenario is a canned demo event.
type Scenario struct {
	ID         int     `json:"id"`
	AffectedHS string  `json:"affected_hs"`
	Origin     string  `json:"origin"`
	NewRatePct float64 `json:"new_rate_pct"`
	StartDate  string  `json:"start_date"`
}
