package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tariff-cli/internal/config"
)

var fixtureFiles = map[string]string{
	"bom.csv": `sku,part_id,hts_code,qty_per,unit_cost_usd
SKU-E,P1,870830,1,10
SKU-LOW,P2,8708,1,5
SKU-LOW,P3,870830,1,5
`,
	"suppliers.csv": `supplier_id,country,lead_time_days
S-CN,CN,35
S-VN,VN,40
`,
	"routes.csv": `route_id,legs
R-CN-US,CN->US
R-VN-US,VN->US
`,
	"tariffs.csv": `hs_code,origin,destination,rate_pct,effective_date
870830,CN,US,0,2020-01-01
870830,VN,US,0,2020-01-01
`,
	"scenarios.csv": `id,affected_hs,origin,new_rate_pct,start_date
1,870830,CN,25,2025-09-01
2,9999,CN,10,2025-09-01
`,
	"policy.yaml": `auto_execute_if:
  margin_hit_pp_lt: 2.0
  lead_time_increase_days_lt: 7
  supplier_switch_risk_score_lt: 30
requires_approval_if:
  regulatory_change_type: [structural, ambiguous]
scoring_weights:
  cost_delta: 0.5
  lead_time_delta: 0.25
  compliance_risk: 0.25
`,
}

// setupFixture writes a small CN/VN data directory and points the global
// config at it.
func setupFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range fixtureFiles {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	prev := cfg
	t.Cleanup(func() { cfg = prev })

	cfg = &config.Config{
		Store:  config.StoreConfig{Driver: "csv", DataDir: dir},
		Policy: config.PolicyConfig{Path: filepath.Join(dir, "policy.yaml")},
		Cost:   config.CostConfig{FreightFraction: 0.05},
		Pipeline: config.PipelineConfig{
			BaseRoute:           "R-CN-US",
			PriceUSD:            25,
			Destination:         "US",
			DefaultOrigin:       "CN",
			ApprovalConfidence:  0.95,
			AuditTail:           12,
			MaxConcurrentRoutes: 2,
		},
		Watcher: config.WatcherConfig{
			CachePath:        filepath.Join(dir, "cache", "watch_cache.jsonl"),
			TimeoutSecs:      2,
			Retries:          0,
			MinConfidence:    0.75,
			MaxItems:         10,
			UserAgent:        "tariff-cli/test",
			Concurrency:      2,
			BreakerFailures:  3,
			BreakerResetSecs: 300,
		},
		Server: config.ServerConfig{Port: 8080, AllowedOrigins: []string{"*"}},
		Log:    config.LogConfig{Level: "info", Format: "json"},
	}
	return dir
}

// execute runs cmd.RunE with a background context and returns its output.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	t.Cleanup(func() {
		cmd.SetOut(nil)
		cmd.SetContext(context.TODO())
	})
	return &out, cmd.RunE(cmd, args)
}

func decodeOutput[T any](t *testing.T, out *bytes.Buffer) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(out.Bytes(), &v), out.String())
	return v
}

// resetFlag restores a flag variable when the test ends.
func resetFlag[T any](t *testing.T, p *T, v T) {
	t.Helper()
	prev := *p
	*p = v
	t.Cleanup(func() { *p = prev })
}
