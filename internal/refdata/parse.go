package refdata

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tariff-cli/internal/model"
)

// table is a header-indexed set of string rows, as read from CSV or XLSX.
type table struct {
	name   string
	header map[string]int
	rows   [][]string
}

func newTable(name string, header []string) *table {
	t := &table{name: name, header: make(map[string]int, len(header))}
	for i, h := range header {
		t.header[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	return t
}

// require checks that every named column is present.
func (t *table) require(cols ...string) error {
	var missing []string
	for _, c := range cols {
		if _, ok := t.header[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("refdata: %s: missing columns %s", t.name, strings.Join(missing, ", "))
	}
	return nil
}

// str returns the named column of row, or the first present alias.
func (t *table) str(row []string, cols ...string) string {
	for _, c := range cols {
		if i, ok := t.header[c]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
	}
	return ""
}

func (t *table) float(row []string, line int, col string) (float64, error) {
	raw := t.str(row, col)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "refdata: %s row %d: %s=%q", t.name, line, col, raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Errorf("refdata: %s row %d: %s=%q is not a finite number", t.name, line, col, raw)
	}
	return v, nil
}

func (t *table) components() ([]model.Component, error) {
	if err := t.require("sku", "hts_code", "qty_per", "unit_cost_usd"); err != nil {
		return nil, err
	}
	out := make([]model.Component, 0, len(t.rows))
	for i, row := range t.rows {
		qty, err := t.float(row, i+1, "qty_per")
		if err != nil {
			return nil, err
		}
		cost, err := t.float(row, i+1, "unit_cost_usd")
		if err != nil {
			return nil, err
		}
		out = append(out, model.Component{
			SKU:         t.str(row, "sku"),
			PartID:      t.str(row, "part_id", "component", "component_id"),
			HSCode:      t.str(row, "hts_code"),
			QtyPer:      qty,
			UnitCostUSD: cost,
		})
	}
	return out, nil
}

func (t *table) suppliers() ([]model.Supplier, error) {
	if err := t.require("country", "lead_time_days"); err != nil {
		return nil, err
	}
	out := make([]model.Supplier, 0, len(t.rows))
	for i, row := range t.rows {
		lt, err := t.float(row, i+1, "lead_time_days")
		if err != nil {
			return nil, err
		}
		out = append(out, model.Supplier{
			ID:           t.str(row, "supplier_id", "id"),
			Country:      t.str(row, "country"),
			LeadTimeDays: lt,
		})
	}
	return out, nil
}

func (t *table) routes() ([]model.Route, error) {
	if err := t.require("route_id", "legs"); err != nil {
		return nil, err
	}
	out := make([]model.Route, 0, len(t.rows))
	for i, row := range t.rows {
		legs, err := ParseLegs(t.str(row, "legs"))
		if err != nil {
			return nil, eris.Wrapf(err, "refdata: %s row %d", t.name, i+1)
		}
		out = append(out, model.Route{ID: t.str(row, "route_id"), Legs: legs})
	}
	return out, nil
}

func (t *table) tariffs() ([]model.TariffRate, error) {
	if err := t.require("hs_code", "origin", "destination", "rate_pct", "effective_date"); err != nil {
		return nil, err
	}
	out := make([]model.TariffRate, 0, len(t.rows))
	for i, row := range t.rows {
		rate, err := t.float(row, i+1, "rate_pct")
		if err != nil {
			return nil, err
		}
		eff, err := ParseDate(t.str(row, "effective_date"))
		if err != nil {
			return nil, eris.Wrapf(err, "refdata: %s row %d", t.name, i+1)
		}
		out = append(out, model.TariffRate{
			HSCode:        t.str(row, "hs_code"),
			Origin:        t.str(row, "origin"),
			Destination:   t.str(row, "destination"),
			RatePct:       rate,
			EffectiveDate: eff,
		})
	}
	return out, nil
}

func (t *table) scenarios() ([]model.Scenario, error) {
	if err := t.require("id", "affected_hs", "origin", "new_rate_pct"); err != nil {
		return nil, err
	}
	out := make([]model.Scenario, 0, len(t.rows))
	for i, row := range t.rows {
		id, err := strconv.Atoi(t.str(row, "id"))
		if err != nil {
			return nil, eris.Wrapf(err, "refdata: %s row %d: id", t.name, i+1)
		}
		rate, err := t.float(row, i+1, "new_rate_pct")
		if err != nil {
			return nil, err
		}
		out = append(out, model.Scenario{
			ID:         id,
			AffectedHS: t.str(row, "affected_hs"),
			Origin:     t.str(row, "origin"),
			NewRatePct: rate,
			StartDate:  t.str(row, "start_date"),
		})
	}
	return out, nil
}

// ParseLegs parses a leg list. Accepts a JSON array (`["CN->US","US->MX"]`)
// or a ';' or '|' separated list. An empty value is a zero-leg route.
func ParseLegs(s string) ([]model.Leg, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "[]" {
		return nil, nil
	}

	var parts []string
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &parts); err != nil {
			return nil, eris.Wrapf(err, "refdata: parse legs %q", s)
		}
	} else {
		parts = strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '|' })
	}

	legs := make([]model.Leg, 0, len(parts))
	for _, p := range parts {
		leg, err := model.ParseLeg(p)
		if err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

// FormatLegs renders legs as the JSON array form accepted by ParseLegs.
func FormatLegs(legs []model.Leg) string {
	parts := make([]string, len(legs))
	for i, l := range legs {
		parts[i] = l.String()
	}
	b, _ := json.Marshal(parts)
	return string(b)
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
}

// ParseDate parses a tariff effective date in any of the accepted layouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("refdata: unrecognized date %q", s)
}
