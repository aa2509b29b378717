// Package decision runs tariff change events through classification, route
// ranking and the policy gate, and keeps the audit trail and review queue.
package decision

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/classify"
	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/policy"
	"github.com/sells-group/tariff-cli/internal/refdata"
	"github.com/sells-group/tariff-cli/internal/sourcing"
)

// DefaultApprovalConfidence is the confidence recorded for a reviewer approval
// when none is given.
const DefaultApprovalConfidence = 0.95

// ReasonCostFailed prefixes the reason of records whose cost evaluation failed.
const ReasonCostFailed = "Cost evaluation failed: "

// noOptionRisk is the risk recorded when no alternative route exists.
const noOptionRisk = 100

// Ranker produces ranked sourcing options for a product.
type Ranker interface {
	TopOptions(ctx context.Context, sku, baseRoute string, ev *model.TariffChangeEvent, priceUSD float64) ([]model.SourcingOption, error)
}

// Session owns the audit trail, review queue and approval overrides of one
// operator session. It is not safe for concurrent use.
type Session struct {
	store      refdata.Store
	ranker     Ranker
	gate       *policy.Gate
	overrides  *classify.Overrides
	classifier classify.Classifier
	now        func() time.Time

	audit  []model.DecisionRecord
	review map[string]model.Classification
}

// Option configures a Session.
type Option func(*Session)

// WithClassifier replaces the heuristic classifier. The replacement is
// responsible for honouring Overrides.
func WithClassifier(c classify.Classifier) Option {
	return func(s *Session) { s.classifier = c }
}

// WithClock sets the clock used for DecidedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession creates a session with an empty audit trail and review queue.
func NewSession(store refdata.Store, ranker Ranker, gate *policy.Gate, opts ...Option) *Session {
	s := &Session{
		store:     store,
		ranker:    ranker,
		gate:      gate,
		overrides: classify.NewOverrides(),
		now:       time.Now,
		review:    make(map[string]model.Classification),
	}
	s.classifier = classify.NewHeuristic(s.overrides)
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetPolicy replaces the ranker and gate used for later events. The audit
// trail, review queue and approvals are kept.
func (s *Session) SetPolicy(ranker Ranker, gate *policy.Gate) {
	s.ranker = ranker
	s.gate = gate
}

// Overrides returns the session's approval registry.
func (s *Session) Overrides() *classify.Overrides {
	return s.overrides
}

// HandleEvent produces one decision record per SKU affected by ev and appends
// them to the audit trail. The review queue is rebuilt from this run. A SKU
// whose costs cannot be evaluated still gets a denied record; the failures are
// also returned combined.
func (s *Session) HandleEvent(ctx context.Context, ev model.TariffChangeEvent, baseRoute string, priceUSD float64) ([]model.DecisionRecord, error) {
	log := zap.L().With(
		zap.String("hs_code", ev.HSCode),
		zap.String("origin", ev.Origin),
		zap.String("source", ev.Source),
	)

	skus := s.store.SKUsByHS(ev.HSCode)
	clear(s.review)

	if len(skus) == 0 {
		log.Info("decision: no affected skus")
		return nil, nil
	}

	var (
		records = make([]model.DecisionRecord, 0, len(skus))
		errs    error
	)
	for _, sku := range skus {
		if err := ctx.Err(); err != nil {
			s.audit = append(s.audit, records...)
			return records, eris.Wrap(err, "decision: cancelled")
		}

		rec, err := s.decide(ctx, ev, sku, baseRoute, priceUSD)
		if err != nil {
			errs = multierr.Append(errs, err)
			log.Warn("decision: sku evaluation failed", zap.String("sku", sku), zap.Error(err))
		}
		records = append(records, rec)
	}

	s.audit = append(s.audit, records...)

	auto := 0
	for _, r := range records {
		if r.AutoExecuted {
			auto++
		}
	}
	log.Info("decision: event handled",
		zap.Int("skus", len(records)),
		zap.Int("auto_executed", auto),
		zap.Int("review_queue", len(s.review)),
	)
	return records, errs
}

func (s *Session) decide(ctx context.Context, ev model.TariffChangeEvent, sku, baseRoute string, priceUSD float64) (model.DecisionRecord, error) {
	rec := model.DecisionRecord{
		ID:    uuid.NewString(),
		SKU:   sku,
		Event: ev,
	}

	hs := ev.HSCode
	if comps := s.store.Components(sku); len(comps) > 0 {
		hs = comps[0].HSCode
	}
	cls := s.classifier.Classify(sku, hs)
	if cls.Confidence < policy.ReviewThreshold {
		s.review[sku] = cls
	}

	opts, err := s.ranker.TopOptions(ctx, sku, baseRoute, &ev, priceUSD)
	if err != nil {
		rec.Reason = ReasonCostFailed + err.Error()
		rec.DecidedAt = s.now()
		return rec, eris.Wrapf(err, "decision: sku %s", sku)
	}

	action := model.Action{
		SKU:           sku,
		LeadTimeDays:  model.Float(0),
		RiskScore:     noOptionRisk,
		HTSConfidence: cls.Confidence,
		ChangeType:    ev.ChangeType,
	}
	if len(opts) > 0 {
		best := opts[0]
		rec.Chosen = &best
		action.DeltaMarginPP = -best.CostDelta
		action.LeadTimeDays = best.LeadTimeDelta
		action.RiskScore = best.RiskScore
	}

	outcome := s.gate.Evaluate(action)
	rec.AutoExecuted = outcome.Allowed && rec.Chosen != nil
	rec.Reason = outcome.Reason
	rec.DecidedAt = s.now()

	zap.L().Debug("decision: sku decided",
		zap.String("sku", sku),
		zap.Float64("hts_confidence", cls.Confidence),
		zap.Bool("auto_executed", rec.AutoExecuted),
		zap.String("reason", rec.Reason),
	)
	return rec, nil
}

// AuditTrail returns a copy of every record in the session, oldest first.
func (s *Session) AuditTrail() []model.DecisionRecord {
	return append([]model.DecisionRecord(nil), s.audit...)
}

// AuditTail returns a copy of the last n records. n <= 0 returns none.
func (s *Session) AuditTail(n int) []model.DecisionRecord {
	if n <= 0 {
		return nil
	}
	if n > len(s.audit) {
		n = len(s.audit)
	}
	return append([]model.DecisionRecord(nil), s.audit[len(s.audit)-n:]...)
}

// ReviewQueue returns the classifications awaiting review, sorted by SKU.
func (s *Session) ReviewQueue() []model.Classification {
	out := make([]model.Classification, 0, len(s.review))
	for _, c := range s.review {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out
}

// Approve records a reviewer-approved confidence for sku and removes it from
// the review queue. The override applies to every later run of the session.
func (s *Session) Approve(sku string, confidence float64) error {
	if sku == "" {
		return eris.New("decision: approve: sku is required")
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return eris.Errorf("decision: approve %s: confidence %v outside [0, 1]", sku, confidence)
	}
	s.overrides.Set(sku, confidence)
	delete(s.review, sku)
	zap.L().Info("decision: classification approved", zap.String("sku", sku), zap.Float64("confidence", confidence))
	return nil
}
