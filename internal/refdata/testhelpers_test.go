package refdata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/tariff-cli/internal/model"
)

var testCSV = map[string]string{
	BOMFile: `sku,part_id,hts_code,qty_per,unit_cost_usd
SKU-100,P-1,870830,2,3.00
SKU-100,P-2,870899,1,1.50
SKU-200,P-3,870830,4,1.25
SKU-300,P-4,8708,1,5.00
`,
	SuppliersFile: `supplier_id,country,lead_time_days
S-CN-1,CN,35
S-CN-2,CN,45
S-VN-1,VN,42
S-MX-1,MX,14
`,
	RoutesFile: `route_id,legs
R-CN-US,"[""CN->US""]"
R-VN-US,"[""VN->US""]"
R-MX-US,MX->US
R-CN-MX-US,CN->MX;MX->US
`,
	TariffsFile: `hs_code,origin,destination,rate_pct,effective_date
870830,CN,US,10,2023-01-01
870830,CN,US,25,2024-01-01
870830,VN,US,5,2024-01-01
870830,CN,MX,8,2024-01-01
`,
	ScenariosFile: `id,affected_hs,origin,new_rate_pct,start_date
1,870830,CN,25,2025-09-01
2,8708,VN,12,2025-10-15
`,
}

// writeCSVDir writes the given files into a fresh temp directory.
func writeCSVDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// sampleData mirrors testCSV in memory.
func sampleData() Data {
	return Data{
		Components: []model.Component{
			{SKU: "SKU-100", PartID: "P-1", HSCode: "870830", QtyPer: 2, UnitCostUSD: 3},
			{SKU: "SKU-100", PartID: "P-2", HSCode: "870899", QtyPer: 1, UnitCostUSD: 1.5},
			{SKU: "SKU-200", PartID: "P-3", HSCode: "870830", QtyPer: 4, UnitCostUSD: 1.25},
			{SKU: "SKU-300", PartID: "P-4", HSCode: "8708", QtyPer: 1, UnitCostUSD: 5},
		},
		Suppliers: []model.Supplier{
			{ID: "S-CN-1", Country: "CN", LeadTimeDays: 35},
			{ID: "S-CN-2", Country: "CN", LeadTimeDays: 45},
			{ID: "S-VN-1", Country: "VN", LeadTimeDays: 42},
			{ID: "S-MX-1", Country: "MX", LeadTimeDays: 14},
		},
		Routes: []model.Route{
			{ID: "R-CN-US", Legs: []model.Leg{{Origin: "CN", Destination: "US"}}},
			{ID: "R-VN-US", Legs: []model.Leg{{Origin: "VN", Destination: "US"}}},
			{ID: "R-MX-US", Legs: []model.Leg{{Origin: "MX", Destination: "US"}}},
			{ID: "R-CN-MX-US", Legs: []model.Leg{{Origin: "CN", Destination: "MX"}, {Origin: "MX", Destination: "US"}}},
		},
		Tariffs: []model.TariffRate{
			{HSCode: "870830", Origin: "CN", Destination: "US", RatePct: 10, EffectiveDate: date("2023-01-01")},
			{HSCode: "870830", Origin: "CN", Destination: "US", RatePct: 25, EffectiveDate: date("2024-01-01")},
			{HSCode: "870830", Origin: "VN", Destination: "US", RatePct: 5, EffectiveDate: date("2024-01-01")},
			{HSCode: "870830", Origin: "CN", Destination: "MX", RatePct: 8, EffectiveDate: date("2024-01-01")},
		},
		Scenarios: []model.Scenario{
			{ID: 1, AffectedHS: "870830", Origin: "CN", NewRatePct: 25, StartDate: "2025-09-01"},
			{ID: 2, AffectedHS: "8708", Origin: "VN", NewRatePct: 12, StartDate: "2025-10-15"},
		},
	}
}
