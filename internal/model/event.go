package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// ChangeType classifies the regulatory change carried by an event.
type ChangeType string

const (
	ChangeTariffIncrease ChangeType = "tariff_increase"
	ChangeTariffDecrease ChangeType = "tariff_decrease"
	ChangeStructural     ChangeType = "structural"
	ChangeAmbiguous      ChangeType = "ambiguous"
)

// Valid reports whether c is one of the known change types.
func (c ChangeType) Valid() bool {
	switch c {
	case ChangeTariffIncrease, ChangeTariffDecrease, ChangeStructural, ChangeAmbiguous:
		return true
	default:
		return false
	}
}

// UnknownEffectiveDate marks an event whose effective date could not be resolved.
const UnknownEffectiveDate = "(unknown)"

// TariffChangeEvent describes a tariff change on an HS code between two regions.
// NewRatePct is always a non-negative magnitude; the sign lives in ChangeType.
type TariffChangeEvent struct {
	HSCode        string     `json:"hs_code"`
	Origin        string     `json:"origin"`
	Destination   string     `json:"destination"`
	NewRatePct    float64    `json:"new_rate_pct"`
	EffectiveDate string     `json:"effective_date"`
	ChangeType    ChangeType `json:"regulatory_change_type"`
	Source        string     `json:"source"`
}

// Validate checks that an event built outside the normalizer is usable.
func (e TariffChangeEvent) Validate() error {
	var errs []string
	if e.HSCode == "" {
		errs = append(errs, "hs_code is required")
	}
	if e.Origin == "" {
		errs = append(errs, "origin is required")
	}
	if e.Destination == "" {
		errs = append(errs, "destination is required")
	}
	if e.NewRatePct < 0 || math.IsNaN(e.NewRatePct) || math.IsInf(e.NewRatePct, 0) {
		errs = append(errs, "new_rate_pct must be a finite value >= 0")
	}
	if !e.ChangeType.Valid() {
		errs = append(errs, fmt.Sprintf("unknown regulatory_change_type %q", e.ChangeType))
	}
	if len(errs) > 0 {
		return eris.Errorf("model: invalid event: %s", strings.Join(errs, "; "))
	}
	return nil
}
