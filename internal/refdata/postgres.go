package refdata

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/db"
)

// MigratePostgres creates the reference tables if they do not exist.
func MigratePostgres(ctx context.Context, pool db.Pool) error {
	_, err := pool.Exec(ctx, schema("DOUBLE PRECISION"))
	return eris.Wrap(err, "refdata: postgres migrate")
}

// LoadPostgres reads reference data from Postgres.
func LoadPostgres(ctx context.Context, pool db.Pool) (*Data, error) {
	d, err := scanData(func(q string) (scanner, func(), error) {
		rows, err := pool.Query(ctx, q)
		if err != nil {
			return nil, nil, err
		}
		return rows, rows.Close, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "refdata: postgres load")
	}
	return d, nil
}

// WritePostgres replaces each reference table with d using COPY.
func WritePostgres(ctx context.Context, pool db.Pool, d *Data) error {
	for _, t := range tableRows(d) {
		n, err := db.ReplaceTable(ctx, pool, t.name, t.columns, t.rows)
		if err != nil {
			return eris.Wrapf(err, "refdata: postgres write %s", t.name)
		}
		zap.L().Debug("refdata: postgres table written", zap.String("table", t.name), zap.Int64("rows", n))
	}
	return nil
}
