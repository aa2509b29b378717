// Package sourcing ranks alternative supply routes for a product.
package sourcing

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tariff-cli/internal/landedcost"
	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/policy"
)

// TopN is the number of options returned per product.
const TopN = 3

// RiskScore is the compliance risk proxy for an origin country.
func RiskScore(origin string) float64 {
	switch origin {
	case "US", "MX":
		return 10
	case "VN":
		return 25
	default:
		return 35
	}
}

// Optimizer ranks every non-baseline route for a product.
type Optimizer struct {
	engine   *landedcost.Engine
	weights  policy.Weights
	parallel int
}

// New returns an Optimizer. parallel bounds concurrent route comparisons and
// defaults to 1.
func New(engine *landedcost.Engine, weights policy.Weights, parallel int) *Optimizer {
	if parallel < 1 {
		parallel = 1
	}
	return &Optimizer{engine: engine, weights: weights, parallel: parallel}
}

// Score is the weighted ranking score; lower is better. An unknown lead time
// counts as the configured penalty in days.
func (o *Optimizer) Score(costDelta float64, leadTimeDelta *float64, risk float64) float64 {
	lead := o.weights.UnknownLeadTimeDays
	if leadTimeDelta != nil {
		lead = math.Abs(*leadTimeDelta)
	}
	return o.weights.CostDelta*costDelta +
		o.weights.LeadTimeDelta*lead +
		o.weights.ComplianceRisk*(risk/10)
}

// TopOptions compares sku on every route except baseRoute and returns at
// most TopN options ordered by ascending score. Ties keep route order.
func (o *Optimizer) TopOptions(ctx context.Context, sku, baseRoute string, ev *model.TariffChangeEvent, priceUSD float64) ([]model.SourcingOption, error) {
	store := o.engine.Store()
	if _, ok := store.Route(baseRoute); !ok {
		return nil, eris.Wrapf(landedcost.ErrUnknownRoute, "base route %s", baseRoute)
	}

	var candidates []model.Route
	for _, id := range store.RouteIDs() {
		if id == baseRoute {
			continue
		}
		r, _ := store.Route(id)
		candidates = append(candidates, r)
	}

	options := make([]model.SourcingOption, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallel)

	for i, r := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return eris.Wrap(err, "sourcing: cancelled")
			}
			cb, err := o.engine.Compare(sku, baseRoute, r.ID, priceUSD, ev)
			if err != nil {
				return eris.Wrapf(err, "sourcing: compare %s vs %s", baseRoute, r.ID)
			}
			options[i] = o.option(sku, r, cb)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(options, func(a, b int) bool {
		return options[a].Score < options[b].Score
	})
	if len(options) > TopN {
		options = options[:TopN]
	}

	zap.L().Debug("sourcing: ranked options",
		zap.String("sku", sku),
		zap.String("base_route", baseRoute),
		zap.Int("candidates", len(candidates)),
		zap.Int("returned", len(options)),
	)
	return options, nil
}

func (o *Optimizer) option(sku string, r model.Route, cb *model.CostBreakdown) model.SourcingOption {
	origin := r.FirstOrigin()
	label := origin
	if label == "" {
		label = "unknown"
	}

	costDelta := math.Max(0, -cb.MarginPPDelta)
	risk := RiskScore(origin)

	lead := "unknown"
	if cb.ETADaysDelta != nil {
		lead = fmt.Sprintf("%.1fd", *cb.ETADaysDelta)
	}

	return model.SourcingOption{
		SKU:           sku,
		SupplierID:    "auto-" + label,
		RouteID:       r.ID,
		CostDelta:     costDelta,
		LeadTimeDelta: cb.ETADaysDelta,
		RiskScore:     risk,
		Score:         o.Score(costDelta, cb.ETADaysDelta, risk),
		Explanation:   fmt.Sprintf("Cost penalty≈%.2fpp, LeadΔ=%s, Origin=%s", costDelta, lead, label),
	}
}
