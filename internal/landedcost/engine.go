// Package landedcost computes multi-leg landed cost with compounding duties
// and compares a baseline route against alternatives.
package landedcost

import (
	"math"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/refdata"
)

// Cost component keys.
const (
	KeyMaterials = "materials"
	KeyFreight   = "freight"
	KeyDuties    = "duties"
	KeyCOGS      = "cogs"
)

// DefaultFreightFraction is freight as a share of materials.
const DefaultFreightFraction = 0.05

var (
	ErrNoComponents = eris.New("landedcost: no components")
	ErrUnknownRoute = eris.New("landedcost: unknown route")
	ErrInvalidPrice = eris.New("landedcost: price must be > 0")
	ErrInvalidData  = eris.New("landedcost: non-finite value in reference data")
)

var hundred = decimal.NewFromInt(100)

// Costs is the landed cost of one product on one route.
type Costs struct {
	Materials decimal.Decimal
	Freight   decimal.Decimal
	Duties    decimal.Decimal
	COGS      decimal.Decimal
}

// Map returns the costs keyed by component name.
func (c Costs) Map() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		KeyMaterials: c.Materials,
		KeyFreight:   c.Freight,
		KeyDuties:    c.Duties,
		KeyCOGS:      c.COGS,
	}
}

// Engine computes landed costs against reference data.
type Engine struct {
	store   refdata.Store
	freight decimal.Decimal
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used to pick effective tariffs.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New returns an Engine. A negative freight fraction is treated as zero and a
// non-finite one as DefaultFreightFraction.
func New(store refdata.Store, freightFraction float64, opts ...Option) *Engine {
	switch {
	case !finite(freightFraction):
		freightFraction = DefaultFreightFraction
	case freightFraction < 0:
		freightFraction = 0
	}
	e := &Engine{
		store:   store,
		freight: decimal.NewFromFloat(freightFraction),
		now:     time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Store returns the reference data the engine reads.
func (e *Engine) Store() refdata.Store {
	return e.store
}

// RouteCost computes the landed cost of sku on routeID. Duties compound: each
// leg's duty is charged on the running value including earlier duties. The
// HS code is the event's when ev is non-nil, else the first component's, and
// the event's rate replaces the table rate on legs matching its origin and
// destination.
func (e *Engine) RouteCost(sku, routeID string, ev *model.TariffChangeEvent) (Costs, error) {
	comps := e.store.Components(sku)
	if len(comps) == 0 {
		return Costs{}, eris.Wrapf(ErrNoComponents, "sku %s", sku)
	}
	route, ok := e.store.Route(routeID)
	if !ok {
		return Costs{}, eris.Wrapf(ErrUnknownRoute, "route %s", routeID)
	}

	materials := decimal.Zero
	for _, c := range comps {
		if !finite(c.QtyPer) || !finite(c.UnitCostUSD) {
			return Costs{}, eris.Wrapf(ErrInvalidData, "sku %s part %s", sku, c.PartID)
		}
		materials = materials.Add(decimal.NewFromFloat(c.QtyPer).Mul(decimal.NewFromFloat(c.UnitCostUSD)))
	}
	freight := materials.Mul(e.freight)

	hs := comps[0].HSCode
	if ev != nil {
		hs = ev.HSCode
	}

	at := e.now()
	value := materials.Add(freight)
	duties := decimal.Zero
	for _, leg := range route.Legs {
		rate := e.store.LatestTariff(hs, leg.Origin, leg.Destination, at)
		if ev != nil && leg.Origin == ev.Origin && leg.Destination == ev.Destination {
			rate = ev.NewRatePct
		}
		if !finite(rate) {
			return Costs{}, eris.Wrapf(ErrInvalidData, "tariff %s %s->%s", hs, leg.Origin, leg.Destination)
		}
		duty := value.Mul(decimal.NewFromFloat(rate)).Div(hundred)
		duties = duties.Add(duty)
		value = value.Add(duty)
	}

	return Costs{
		Materials: materials,
		Freight:   freight,
		Duties:    duties,
		COGS:      materials.Add(freight).Add(duties),
	}, nil
}

// Compare costs sku on the baseline and an alternative route at priceUSD.
// The breakdown describes the alternative; MarginPPDelta is the alternative's
// margin minus the baseline's in percentage points.
func (e *Engine) Compare(sku, baseRoute, optRoute string, priceUSD float64, ev *model.TariffChangeEvent) (*model.CostBreakdown, error) {
	if !finite(priceUSD) || priceUSD <= 0 {
		return nil, eris.Wrapf(ErrInvalidPrice, "price %v", priceUSD)
	}

	base, err := e.RouteCost(sku, baseRoute, ev)
	if err != nil {
		return nil, err
	}
	opt, err := e.RouteCost(sku, optRoute, ev)
	if err != nil {
		return nil, err
	}

	price := decimal.NewFromFloat(priceUSD)
	marginBase := price.Sub(base.COGS).Div(price)
	marginOpt := price.Sub(opt.COGS).Div(price)
	delta, _ := marginOpt.Sub(marginBase).Mul(hundred).Float64()

	return &model.CostBreakdown{
		SKU:           sku,
		COGS:          opt.COGS,
		MarginPPDelta: delta,
		ETADaysDelta:  e.leadTimeDelta(baseRoute, optRoute),
		Components:    opt.Map(),
	}, nil
}

// leadTimeDelta is the mean supplier lead time of the alternative's first-leg
// origin minus the baseline's. Nil when either side is unknown.
func (e *Engine) leadTimeDelta(baseRoute, optRoute string) *float64 {
	base, _ := e.store.Route(baseRoute)
	opt, _ := e.store.Route(optRoute)

	baseOrigin, optOrigin := base.FirstOrigin(), opt.FirstOrigin()
	if baseOrigin == "" || optOrigin == "" {
		return nil
	}
	ltBase, ok := e.store.MeanLeadTime(baseOrigin)
	if !ok {
		return nil
	}
	ltOpt, ok := e.store.MeanLeadTime(optOrigin)
	if !ok {
		return nil
	}
	return model.Float(ltOpt - ltBase)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
