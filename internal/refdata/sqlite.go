package refdata

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// OpenSQLite opens a SQLite database at dsn in WAL mode and creates the
// reference tables if needed.
func OpenSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "refdata: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "refdata: sqlite exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, schema("REAL")); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "refdata: sqlite migrate")
	}
	return db, nil
}

// LoadSQLite reads reference data from an open SQLite database.
func LoadSQLite(ctx context.Context, db *sql.DB) (*Data, error) {
	d, err := scanData(func(q string) (scanner, func(), error) {
		rows, err := db.QueryContext(ctx, q)
		if err != nil {
			return nil, nil, err
		}
		return rows, func() { rows.Close() }, nil //nolint:errcheck
	})
	if err != nil {
		return nil, eris.Wrap(err, "refdata: sqlite load")
	}
	return d, nil
}

// WriteSQLite replaces the reference tables with d in a single transaction.
func WriteSQLite(ctx context.Context, db *sql.DB, d *Data) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "refdata: sqlite begin")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, t := range tableRows(d) {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+t.name); err != nil {
			return eris.Wrapf(err, "refdata: sqlite clear %s", t.name)
		}
		if len(t.rows) == 0 {
			continue
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ")
		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO "+t.name+" ("+strings.Join(t.columns, ", ")+") VALUES ("+placeholders+")")
		if err != nil {
			return eris.Wrapf(err, "refdata: sqlite prepare %s", t.name)
		}
		for _, row := range t.rows {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				stmt.Close() //nolint:errcheck
				return eris.Wrapf(err, "refdata: sqlite insert %s", t.name)
			}
		}
		stmt.Close() //nolint:errcheck
		zap.L().Debug("refdata: sqlite table written", zap.String("table", t.name), zap.Int("rows", len(t.rows)))
	}

	return eris.Wrap(tx.Commit(), "refdata: sqlite commit")
}
