package refdata

import (
	"github.com/sells-group/tariff-cli/internal/model"
)

const dateLayout = "2006-01-02"

// Table and column layout shared by the SQLite and Postgres backends. Every
// table carries an ord column so definition order survives a round trip.
var (
	bomColumns      = []string{"ord", "sku", "part_id", "hts_code", "qty_per", "unit_cost_usd"}
	supplierColumns = []string{"ord", "supplier_id", "country", "lead_time_days"}
	routeColumns    = []string{"ord", "route_id", "legs"}
	tariffColumns   = []string{"ord", "hs_code", "origin", "destination", "rate_pct", "effective_date"}
	scenarioColumns = []string{"ord", "id", "affected_hs", "origin", "new_rate_pct", "start_date"}
)

func schema(realType string) string {
	return `
CREATE TABLE IF NOT EXISTS bom (
	ord           INTEGER NOT NULL,
	sku           TEXT NOT NULL,
	part_id       TEXT NOT NULL,
	hts_code      TEXT NOT NULL,
	qty_per       ` + realType + ` NOT NULL,
	unit_cost_usd ` + realType + ` NOT NULL
);

CREATE TABLE IF NOT EXISTS suppliers (
	ord            INTEGER NOT NULL,
	supplier_id    TEXT NOT NULL,
	country        TEXT NOT NULL,
	lead_time_days ` + realType + ` NOT NULL
);

CREATE TABLE IF NOT EXISTS routes (
	ord      INTEGER NOT NULL,
	route_id TEXT NOT NULL,
	legs     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tariffs (
	ord            INTEGER NOT NULL,
	hs_code        TEXT NOT NULL,
	origin         TEXT NOT NULL,
	destination    TEXT NOT NULL,
	rate_pct       ` + realType + ` NOT NULL,
	effective_date TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scenarios (
	ord          INTEGER NOT NULL,
	id           INTEGER NOT NULL,
	affected_hs  TEXT NOT NULL,
	origin       TEXT NOT NULL,
	new_rate_pct ` + realType + ` NOT NULL,
	start_date   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bom_hts_code ON bom(hts_code);
CREATE INDEX IF NOT EXISTS idx_tariffs_lookup ON tariffs(hs_code, origin, destination);
`
}

// sqlTable is one reference table in row form.
type sqlTable struct {
	name    string
	columns []string
	rows    [][]any
}

// tableRows flattens d into per-table rows in column order.
func tableRows(d *Data) []sqlTable {
	bom := make([][]any, len(d.Components))
	for i, c := range d.Components {
		bom[i] = []any{i, c.SKU, c.PartID, c.HSCode, c.QtyPer, c.UnitCostUSD}
	}
	suppliers := make([][]any, len(d.Suppliers))
	for i, s := range d.Suppliers {
		suppliers[i] = []any{i, s.ID, s.Country, s.LeadTimeDays}
	}
	routes := make([][]any, len(d.Routes))
	for i, r := range d.Routes {
		routes[i] = []any{i, r.ID, FormatLegs(r.Legs)}
	}
	tariffs := make([][]any, len(d.Tariffs))
	for i, t := range d.Tariffs {
		tariffs[i] = []any{i, t.HSCode, t.Origin, t.Destination, t.RatePct, t.EffectiveDate.Format(dateLayout)}
	}
	scenarios := make([][]any, len(d.Scenarios))
	for i, s := range d.Scenarios {
		scenarios[i] = []any{i, s.ID, s.AffectedHS, s.Origin, s.NewRatePct, s.StartDate}
	}

	return []sqlTable{
		{"bom", bomColumns, bom},
		{"suppliers", supplierColumns, suppliers},
		{"routes", routeColumns, routes},
		{"tariffs", tariffColumns, tariffs},
		{"scenarios", scenarioColumns, scenarios},
	}
}

// Queries used by both SQL backends to read reference data back.
const (
	selectBOM       = `SELECT sku, part_id, hts_code, qty_per, unit_cost_usd FROM bom ORDER BY ord`
	selectSuppliers = `SELECT supplier_id, country, lead_time_days FROM suppliers ORDER BY ord`
	selectRoutes    = `SELECT route_id, legs FROM routes ORDER BY ord`
	selectTariffs   = `SELECT hs_code, origin, destination, rate_pct, effective_date FROM tariffs ORDER BY ord`
	selectScenarios = `SELECT id, affected_hs, origin, new_rate_pct, start_date FROM scenarios ORDER BY ord`
)

// scanner is satisfied by *sql.Rows and pgx.Rows.
type scanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanData reads all five tables via query, which must return a scanner
// for a given SELECT statement.
func scanData(query func(string) (scanner, func(), error)) (*Data, error) {
	var d Data

	steps := []struct {
		sql  string
		scan func(r scanner) error
	}{
		{selectBOM, func(r scanner) error {
			var c model.Component
			if err := r.Scan(&c.SKU, &c.PartID, &c.HSCode, &c.QtyPer, &c.UnitCostUSD); err != nil {
				return err
			}
			d.Components = append(d.Components, c)
			return nil
		}},
		{selectSuppliers, func(r scanner) error {
			var s model.Supplier
			if err := r.Scan(&s.ID, &s.Country, &s.LeadTimeDays); err != nil {
				return err
			}
			d.Suppliers = append(d.Suppliers, s)
			return nil
		}},
		{selectRoutes, func(r scanner) error {
			var id, legs string
			if err := r.Scan(&id, &legs); err != nil {
				return err
			}
			parsed, err := ParseLegs(legs)
			if err != nil {
				return err
			}
			d.Routes = append(d.Routes, model.Route{ID: id, Legs: parsed})
			return nil
		}},
		{selectTariffs, func(r scanner) error {
			var t model.TariffRate
			var eff string
			if err := r.Scan(&t.HSCode, &t.Origin, &t.Destination, &t.RatePct, &eff); err != nil {
				return err
			}
			parsed, err := ParseDate(eff)
			if err != nil {
				return err
			}
			t.EffectiveDate = parsed
			d.Tariffs = append(d.Tariffs, t)
			return nil
		}},
		{selectScenarios, func(r scanner) error {
			var s model.Scenario
			if err := r.Scan(&s.ID, &s.AffectedHS, &s.Origin, &s.NewRatePct, &s.StartDate); err != nil {
				return err
			}
			d.Scenarios = append(d.Scenarios, s)
			return nil
		}},
	}

	for _, st := range steps {
		rows, closeFn, err := query(st.sql)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			if err := st.scan(rows); err != nil {
				closeFn()
				return nil, err
			}
		}
		err = rows.Err()
		closeFn()
		if err != nil {
			return nil, err
		}
	}
	return &d, nil
}
