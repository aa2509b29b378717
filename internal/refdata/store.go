// Package refdata holds the read-only reference data the decision pipeline
// runs against: bill of materials, suppliers, routes, tariffs and demo scenarios.
package refdata

import (
	"time"

	"github.com/sells-group/tariff-cli/internal/model"
)

// Store is the read-only view of reference data used by the core.
type Store interface {
	// SKUsByHS returns the SKUs with at least one component under hsCode,
	// in first-seen order.
	SKUsByHS(hsCode string) []string
	// Components returns the bill of materials for a SKU.
	Components(sku string) []model.Component
	// Route returns a route definition by ID.
	Route(id string) (model.Route, bool)
	// RouteIDs returns all route IDs in definition order.
	RouteIDs() []string
	// LatestTariff returns the most recent rate effective at or before at for
	// the (code, origin, destination) triple, or 0 when there is none.
	LatestTariff(hsCode, origin, dest string, at time.Time) float64
	// MeanLeadTime returns the mean supplier lead time for a country. ok is
	// false when the country has no supplier records.
	MeanLeadTime(country string) (days float64, ok bool)
	// Scenario returns a demo scenario by ID.
	Scenario(id int) (model.Scenario, bool)
}

// Data is the raw reference data as loaded from a source.
type Data struct {
	Components []model.Component
	Suppliers  []model.Supplier
	Routes     []model.Route
	Tariffs    []model.TariffRate
	Scenarios  []model.Scenario
}

type tariffKey struct {
	hs, origin, dest string
}

type skuHS struct {
	sku, hs string
}

type leadTime struct {
	sum   float64
	count int
}

// Memory is an indexed, immutable in-memory Store.
type Memory struct {
	data      Data
	bySKU     map[string][]model.Component
	skusByHS  map[string][]string
	routes    map[string]model.Route
	routeIDs  []string
	tariffs   map[tariffKey][]model.TariffRate
	leadTimes map[string]leadTime
	scenarios map[int]model.Scenario
}

// NewMemory indexes d. The caller must not modify d afterwards.
func NewMemory(d Data) *Memory {
	m := &Memory{
		data:      d,
		bySKU:     make(map[string][]model.Component),
		skusByHS:  make(map[string][]string),
		routes:    make(map[string]model.Route, len(d.Routes)),
		tariffs:   make(map[tariffKey][]model.TariffRate),
		leadTimes: make(map[string]leadTime),
		scenarios: make(map[int]model.Scenario, len(d.Scenarios)),
	}

	seen := make(map[skuHS]bool)
	for _, c := range d.Components {
		m.bySKU[c.SKU] = append(m.bySKU[c.SKU], c)
		k := skuHS{sku: c.SKU, hs: c.HSCode}
		if !seen[k] {
			seen[k] = true
			m.skusByHS[c.HSCode] = append(m.skusByHS[c.HSCode], c.SKU)
		}
	}
	for _, r := range d.Routes {
		if _, dup := m.routes[r.ID]; !dup {
			m.routeIDs = append(m.routeIDs, r.ID)
		}
		m.routes[r.ID] = r
	}
	for _, t := range d.Tariffs {
		k := tariffKey{hs: t.HSCode, origin: t.Origin, dest: t.Destination}
		m.tariffs[k] = append(m.tariffs[k], t)
	}
	for _, s := range d.Suppliers {
		lt := m.leadTimes[s.Country]
		lt.sum += s.LeadTimeDays
		lt.count++
		m.leadTimes[s.Country] = lt
	}
	for _, s := range d.Scenarios {
		m.scenarios[s.ID] = s
	}
	return m
}

// Data returns the underlying reference data.
func (m *Memory) Data() Data {
	return m.data
}

func (m *Memory) SKUsByHS(hsCode string) []string {
	return append([]string(nil), m.skusByHS[hsCode]...)
}

func (m *Memory) Components(sku string) []model.Component {
	return append([]model.Component(nil), m.bySKU[sku]...)
}

func (m *Memory) Route(id string) (model.Route, bool) {
	r, ok := m.routes[id]
	return r, ok
}

func (m *Memory) RouteIDs() []string {
	return append([]string(nil), m.routeIDs...)
}

// LatestTariff picks the entry with the greatest effective date not after at.
// On equal dates the later row in the table wins.
func (m *Memory) LatestTariff(hsCode, origin, dest string, at time.Time) float64 {
	var (
		best  model.TariffRate
		found bool
	)
	for _, t := range m.tariffs[tariffKey{hs: hsCode, origin: origin, dest: dest}] {
		if t.EffectiveDate.After(at) {
			continue
		}
		if !found || !t.EffectiveDate.Before(best.EffectiveDate) {
			best, found = t, true
		}
	}
	if !found {
		return 0
	}
	return best.RatePct
}

func (m *Memory) MeanLeadTime(country string) (float64, bool) {
	lt, ok := m.leadTimes[country]
	if !ok || lt.count == 0 {
		return 0, false
	}
	return lt.sum / float64(lt.count), true
}

func (m *Memory) Scenario(id int) (model.Scenario, bool) {
	s, ok := m.scenarios[id]
	return s, ok
}
