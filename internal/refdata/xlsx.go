package refdata

import (
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tariff-cli/internal/fetcher"
	"github.com/sells-group/tariff-cli/internal/model"
)

// LoadBOMXLSX reads a bill of materials from the first sheet of an XLSX
// workbook (or the named sheet). The first row is the header and uses the
// same column names as bom.csv.
func LoadBOMXLSX(path, sheet string) ([]model.Component, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: sheet})
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: read bom workbook %s", path)
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("refdata: bom workbook %s is empty", path)
	}

	t := newTable(filepath.Base(path), rows[0])
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		t.rows = append(t.rows, row)
	}
	return t.components()
}

func isBlank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
