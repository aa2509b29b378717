// Package classify assigns HS codes and confidence to products.
package classify

import (
	"github.com/sells-group/tariff-cli/internal/model"
)

// Heuristic confidences and rationales.
const (
	LongCodeConfidence  = 0.93
	ShortCodeConfidence = 0.82
	MinLongCodeLen      = 6

	RationaleHeuristic = "few-shot match (demo)"
	RationaleApproved  = "Approved by reviewer"
)

// Classifier produces a classification for a product and its HS code.
type Classifier interface {
	Classify(sku, hsCode string) model.Classification
}

// Overrides holds reviewer-approved confidences keyed by SKU. It is owned by
// a single session and is not safe for concurrent use.
type Overrides struct {
	conf map[string]float64
}

// NewOverrides returns an empty registry.
func NewOverrides() *Overrides {
	return &Overrides{conf: make(map[string]float64)}
}

// Set records an approved confidence for sku, replacing any earlier one.
func (o *Overrides) Set(sku string, confidence float64) {
	o.conf[sku] = confidence
}

// Get returns the approved confidence for sku.
func (o *Overrides) Get(sku string) (float64, bool) {
	c, ok := o.conf[sku]
	return c, ok
}

// Len returns the number of approved SKUs.
func (o *Overrides) Len() int {
	return len(o.conf)
}

// Heuristic scores codes by length unless a reviewer override exists.
type Heuristic struct {
	overrides *Overrides
}

// NewHeuristic returns a Heuristic backed by overrides. A nil registry means
// no overrides.
func NewHeuristic(overrides *Overrides) *Heuristic {
	if overrides == nil {
		overrides = NewOverrides()
	}
	return &Heuristic{overrides: overrides}
}

func (h *Heuristic) Classify(sku, hsCode string) model.Classification {
	if conf, ok := h.overrides.Get(sku); ok {
		return model.Classification{SKU: sku, HSCode: hsCode, Confidence: conf, Rationale: RationaleApproved}
	}

	conf := ShortCodeConfidence
	if len(hsCode) >= MinLongCodeLen {
		conf = LongCodeConfidence
	}
	return model.Classification{SKU: sku, HSCode: hsCode, Confidence: conf, Rationale: RationaleHeuristic}
}
