package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/decision"
	"github.com/sells-group/tariff-cli/internal/landedcost"
	"github.com/sells-group/tariff-cli/internal/normalize"
	"github.com/sells-group/tariff-cli/internal/policy"
	"github.com/sells-group/tariff-cli/internal/refdata"
	"github.com/sells-group/tariff-cli/internal/sourcing"
)

// sessionEnv holds the reference data, normalizer and decision session used
// by the run, watch and serve commands.
type sessionEnv struct {
	Store   *refdata.Memory
	Engine  *landedcost.Engine
	Norm    *normalize.Normalizer
	Session *decision.Session
}

// initSession validates the config for mode, loads reference data and the
// policy, and wires the cost engine, optimizer and gate into a new session.
func initSession(ctx context.Context, mode string) (*sessionEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	store, err := refdata.Load(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "load reference data")
	}

	pol, err := policy.LoadConfig(cfg.Policy.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load policy")
	}
	gate := policy.NewGate(pol)

	engine := landedcost.New(store, cfg.Cost.FreightFraction)
	optimizer := sourcing.New(engine, gate.Weights(), cfg.Pipeline.MaxConcurrentRoutes)

	zap.L().Info("session initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("policy", cfg.Policy.Path),
		zap.Int("routes", len(store.RouteIDs())),
	)

	return &sessionEnv{
		Store:   store,
		Engine:  engine,
		Norm:    normalize.New(cfg.Pipeline.DefaultOrigin),
		Session: decision.NewSession(store, optimizer, gate),
	}, nil
}

// approval is a reviewer decision given on the command line as SKU or
// SKU=confidence.
type approval struct {
	SKU        string
	Confidence float64
}

func parseApprovals(values []string, defaultConf float64) ([]approval, error) {
	out := make([]approval, 0, len(values))
	for _, v := range values {
		sku, raw, hasConf := strings.Cut(strings.TrimSpace(v), "=")
		sku = strings.TrimSpace(sku)
		if sku == "" {
			return nil, eris.Errorf("approve %q: sku is required", v)
		}
		conf := defaultConf
		if hasConf {
			c, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, eris.Wrapf(err, "approve %q: confidence", v)
			}
			conf = c
		}
		out = append(out, approval{SKU: sku, Confidence: conf})
	}
	return out, nil
}

func applyApprovals(s *decision.Session, approvals []approval) error {
	for _, a := range approvals {
		if err := s.Approve(a.SKU, a.Confidence); err != nil {
			return err
		}
	}
	return nil
}
