package refdata

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/fetcher"
)

// CSV file names inside a data directory.
const (
	BOMFile       = "bom.csv"
	SuppliersFile = "suppliers.csv"
	RoutesFile    = "routes.csv"
	TariffsFile   = "tariffs.csv"
	ScenariosFile = "scenarios.csv"
)

// LoadCSVDir loads reference data from the CSV files in dir. scenarios.csv is
// optional; every other file is required.
func LoadCSVDir(ctx context.Context, dir string) (*Data, error) {
	var d Data

	steps := []struct {
		file     string
		optional bool
		decode   func(t *table) error
	}{
		{BOMFile, false, func(t *table) (err error) { d.Components, err = t.components(); return }},
		{SuppliersFile, false, func(t *table) (err error) { d.Suppliers, err = t.suppliers(); return }},
		{RoutesFile, false, func(t *table) (err error) { d.Routes, err = t.routes(); return }},
		{TariffsFile, false, func(t *table) (err error) { d.Tariffs, err = t.tariffs(); return }},
		{ScenariosFile, true, func(t *table) (err error) { d.Scenarios, err = t.scenarios(); return }},
	}

	for _, s := range steps {
		path := filepath.Join(dir, s.file)
		t, err := readCSVTable(ctx, path)
		if err != nil {
			if s.optional && os.IsNotExist(eris.Cause(err)) {
				zap.L().Debug("refdata: optional file missing", zap.String("path", path))
				continue
			}
			return nil, err
		}
		if err := s.decode(t); err != nil {
			return nil, err
		}
	}

	zap.L().Info("refdata: loaded csv directory",
		zap.String("dir", dir),
		zap.Int("components", len(d.Components)),
		zap.Int("suppliers", len(d.Suppliers)),
		zap.Int("routes", len(d.Routes)),
		zap.Int("tariffs", len(d.Tariffs)),
		zap.Int("scenarios", len(d.Scenarios)),
	)
	return &d, nil
}

func readCSVTable(ctx context.Context, path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "refdata: read %s", path)
	}

	var header []string
	select {
	case header = <-headerCh:
	default:
		return nil, eris.Errorf("refdata: %s is empty", path)
	}

	t := newTable(filepath.Base(path), header)
	t.rows = rows
	return t, nil
}
