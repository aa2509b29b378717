// Package normalize turns free-text tariff bulletins into structured change
// events.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/tariff-cli/internal/model"
)

// Source is recorded on every event produced from text.
const Source = "watcher:normalized"

const (
	// MinConfidence is the lowest confidence at which an event is emitted.
	MinConfidence = 0.6
	maxConfidence = 0.99
	rawLimit      = 280
)

var (
	hsPattern      = regexp.MustCompile(`(?i)\b(HS|HTS)\s*([0-9]{4,8})\b`)
	pctPattern     = regexp.MustCompile(`(\+|-)?\s*([0-9]{1,2}(\.[0-9]+)?)\s?%`)
	countryPattern = regexp.MustCompile(`(?i)\b(China|CN|Vietnam|VN|Mexico|MX|United\s+States|US|EU)\b`)
	cutPattern     = regexp.MustCompile(`\bcut(s|ting)?\b`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// countryAliases maps folded country mentions to ISO-style codes.
var countryAliases = map[string]string{
	"china":         "CN",
	"cn":            "CN",
	"vietnam":       "VN",
	"vn":            "VN",
	"mexico":        "MX",
	"mx":            "MX",
	"united states": "US",
	"us":            "US",
	"eu":            "EU",
}

// Meta records which signals were found in the text.
type Meta struct {
	HSCodeFound bool   `json:"hs_code_found"`
	PctFound    bool   `json:"pct_found"`
	OriginFound bool   `json:"origin_found"`
	Raw         string `json:"raw"`
}

// Normalizer extracts tariff change events from text.
type Normalizer struct {
	defaultOrigin string
}

// New returns a Normalizer that falls back to defaultOrigin when no origin
// country is mentioned.
func New(defaultOrigin string) *Normalizer {
	if defaultOrigin == "" {
		defaultOrigin = "CN"
	}
	return &Normalizer{defaultOrigin: defaultOrigin}
}

// Normalize extracts an event from text. The event is nil when no HS code
// (from the text or hsHint) or percentage is found, or when confidence is
// below MinConfidence. Confidence and Meta are always returned.
func (n *Normalizer) Normalize(text, hsHint, destination string) (*model.TariffChangeEvent, float64, Meta) {
	folded := cases.Fold().String(text)

	meta := Meta{Raw: truncate(text, rawLimit)}

	hsCode := strings.TrimSpace(hsHint)
	if m := hsPattern.FindStringSubmatch(text); m != nil {
		hsCode = m[2]
		meta.HSCodeFound = true
	}

	var (
		pct  float64
		sign string
	)
	if m := pctPattern.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(m[2], 64)
		if err == nil {
			pct, sign = v, m[1]
			meta.PctFound = true
		}
	}

	origin := n.detectOrigin(text, destination)
	meta.OriginFound = origin != ""

	conf := 0.0
	if hsCode != "" {
		conf += 0.4
	}
	if meta.PctFound {
		conf += 0.3
	}
	if meta.OriginFound {
		conf += 0.2
	}
	if strings.Contains(folded, "tariff") || strings.Contains(folded, "duty") {
		conf += 0.1
	}
	conf = math.Min(math.Round(conf*100)/100, maxConfidence)

	if hsCode == "" || !meta.PctFound || conf < MinConfidence {
		return nil, conf, meta
	}

	if origin == "" {
		origin = n.defaultOrigin
	}
	if destination == "" {
		destination = "US"
	}

	return &model.TariffChangeEvent{
		HSCode:        hsCode,
		Origin:        origin,
		Destination:   destination,
		NewRatePct:    math.Abs(pct),
		EffectiveDate: model.UnknownEffectiveDate,
		ChangeType:    changeType(folded, sign),
		Source:        Source,
	}, conf, meta
}

// detectOrigin returns the first recognised country that is not the
// destination, or "" when there is none.
func (n *Normalizer) detectOrigin(text, destination string) string {
	for _, tok := range countryPattern.FindAllString(text, -1) {
		key := spacePattern.ReplaceAllString(cases.Fold().String(tok), " ")
		code, ok := countryAliases[key]
		if !ok || strings.EqualFold(code, destination) {
			continue
		}
		return code
	}
	return ""
}

func changeType(folded, sign string) model.ChangeType {
	switch {
	case strings.Contains(folded, "increase") || sign == "+":
		return model.ChangeTariffIncrease
	case strings.Contains(folded, "decrease") || cutPattern.MatchString(folded):
		return model.ChangeTariffDecrease
	default:
		return model.ChangeTariffIncrease
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
