package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tariff-cli/internal/model"
)

func TestNormalize_TariffIncreaseFromChina(t *testing.T) {
	t.Parallel()
	n := New("CN")

	ev, conf, meta := n.Normalize("25% tariff increase on HS 870830 from China", "", "US")
	require.NotNil(t, ev)
	assert.Equal(t, model.TariffChangeEvent{
		HSCode:        "870830",
		Origin:        "CN",
		Destination:   "US",
		NewRatePct:    25,
		EffectiveDate: "(unknown)",
		ChangeType:    model.ChangeTariffIncrease,
		Source:        "watcher:normalized",
	}, *ev)
	assert.InDelta(t, 0.99, conf, 0.0001)
	assert.True(t, meta.HSCodeFound)
	assert.True(t, meta.PctFound)
	assert.True(t, meta.OriginFound)
}

func TestNormalize_DestinationMentionedFirst(t *testing.T) {
	t.Parallel()
	n := New("CN")

	ev, conf, _ := n.Normalize("US announces 25% tariff increase on HS 870830 for imports from Vietnam starting Sept.", "", "US")
	require.NotNil(t, ev)
	assert.Equal(t, "VN", ev.Origin)
	assert.Equal(t, "870830", ev.HSCode)
	assert.InDelta(t, 25.0, ev.NewRatePct, 0.0001)
	assert.GreaterOrEqual(t, conf, 0.75)
}

func TestNormalize_Cases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		text       string
		hint       string
		wantEvent  bool
		wantHS     string
		wantOrigin string
		wantType   model.ChangeType
		wantPct    float64
		wantConf   float64
		wantMeta   Meta
	}{
		{
			name:       "decrease keyword",
			text:       "Duty decrease to 7.5% for HTS 8708 from Mexico",
			wantEvent:  true,
			wantHS:     "8708",
			wantOrigin: "MX",
			wantType:   model.ChangeTariffDecrease,
			wantPct:    7.5,
			wantConf:   0.99,
			wantMeta:   Meta{HSCodeFound: true, PctFound: true, OriginFound: true},
		},
		{
			name:       "cut without origin falls back",
			text:       "Government cuts duty to 5% on hts870899 parts",
			wantEvent:  true,
			wantHS:     "870899",
			wantOrigin: "CN",
			wantType:   model.ChangeTariffDecrease,
			wantPct:    5,
			wantConf:   0.8,
			wantMeta:   Meta{HSCodeFound: true, PctFound: true},
		},
		{
			name:       "hint supplies code",
			text:       "Tariffs rise +10% on EU brake assemblies",
			hint:       "870830",
			wantEvent:  true,
			wantHS:     "870830",
			wantOrigin: "EU",
			wantType:   model.ChangeTariffIncrease,
			wantPct:    10,
			wantConf:   0.99,
			wantMeta:   Meta{PctFound: true, OriginFound: true},
		},
		{
			name:     "no percentage",
			text:     "New tariff on HS 870830 from Vietnam",
			wantConf: 0.7,
			wantMeta: Meta{HSCodeFound: true, OriginFound: true},
		},
		{
			name:     "no code and no hint",
			text:     "China raises tariff 20%",
			wantConf: 0.6,
			wantMeta: Meta{PctFound: true, OriginFound: true},
		},
		{
			name:     "unrelated text",
			text:     "Quarterly press briefing schedule",
			wantConf: 0,
		},
		{
			name:       "negative sign stored unsigned",
			text:       "HS 870830 rate adjusted -15% for China",
			wantEvent:  true,
			wantHS:     "870830",
			wantOrigin: "CN",
			wantType:   model.ChangeTariffIncrease,
			wantPct:    15,
			wantConf:   0.9,
			wantMeta:   Meta{HSCodeFound: true, PctFound: true, OriginFound: true},
		},
		{
			name:       "cut inside another word is ignored",
			text:       "Executive order sets HS 870830 duty at 30% for China",
			wantEvent:  true,
			wantHS:     "870830",
			wantOrigin: "CN",
			wantType:   model.ChangeTariffIncrease,
			wantPct:    30,
			wantConf:   0.99,
			wantMeta:   Meta{HSCodeFound: true, PctFound: true, OriginFound: true},
		},
	}

	n := New("CN")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev, conf, meta := n.Normalize(tt.text, tt.hint, "US")
			assert.InDelta(t, tt.wantConf, conf, 0.0001)

			tt.wantMeta.Raw = tt.text
			assert.Equal(t, tt.wantMeta, meta)

			if !tt.wantEvent {
				assert.Nil(t, ev)
				return
			}
			require.NotNil(t, ev)
			assert.Equal(t, tt.wantHS, ev.HSCode)
			assert.Equal(t, tt.wantOrigin, ev.Origin)
			assert.Equal(t, tt.wantType, ev.ChangeType)
			assert.InDelta(t, tt.wantPct, ev.NewRatePct, 0.0001)
		})
	}
}

func TestNormalize_DestinationDefaultsToUS(t *testing.T) {
	t.Parallel()
	ev, _, _ := New("").Normalize("HS 870830 tariff 25%", "", "")
	require.NotNil(t, ev)
	assert.Equal(t, "US", ev.Destination)
	assert.Equal(t, "CN", ev.Origin)
}

func TestNormalize_OtherDestinationKeepsUSAsOrigin(t *testing.T) {
	t.Parallel()
	ev, _, _ := New("CN").Normalize("United States exports under HS 870830 face 12% duty in Mexico", "", "MX")
	require.NotNil(t, ev)
	assert.Equal(t, "US", ev.Origin)
	assert.Equal(t, "MX", ev.Destination)
}

func TestNormalize_RawTruncated(t *testing.T) {
	t.Parallel()
	text := "HS 870830 tariff 25% " + strings.Repeat("é", 400)
	_, _, meta := New("CN").Normalize(text, "", "US")
	assert.Len(t, []rune(meta.Raw), 280)
}
