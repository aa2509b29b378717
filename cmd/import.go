package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/db"
	"github.com/sells-group/tariff-cli/internal/refdata"
)

var (
	importDir     string
	importBOMXLSX string
	importTo      string
	importDSN     string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a CSV reference data directory into SQLite or PostgreSQL",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		to := importTo
		if to == "" {
			to = cfg.Store.Driver
		}
		dsn := importDSN
		if dsn == "" {
			dsn = cfg.Store.DatabaseURL
		}
		if to != "sqlite" && to != "postgres" {
			return eris.Errorf("--to must be sqlite or postgres, got %q", to)
		}
		if dsn == "" {
			return eris.New("database url is required (--dsn or TARIFF_STORE_DATABASE_URL)")
		}

		d, err := refdata.LoadCSVDir(ctx, importDir)
		if err != nil {
			return eris.Wrap(err, "import csv")
		}
		if importBOMXLSX != "" {
			bom, err := refdata.LoadBOMXLSX(importBOMXLSX, "")
			if err != nil {
				return eris.Wrap(err, "import bom workbook")
			}
			d.Components = bom
		}

		switch to {
		case "sqlite":
			sqlDB, err := refdata.OpenSQLite(ctx, dsn)
			if err != nil {
				return err
			}
			defer sqlDB.Close() //nolint:errcheck
			if err := refdata.WriteSQLite(ctx, sqlDB, d); err != nil {
				return eris.Wrap(err, "import sqlite")
			}
		case "postgres":
			pool, err := db.Connect(ctx, dsn)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := refdata.MigratePostgres(ctx, pool); err != nil {
				return eris.Wrap(err, "import postgres")
			}
			if err := refdata.WritePostgres(ctx, pool, d); err != nil {
				return eris.Wrap(err, "import postgres")
			}
		}

		zap.L().Info("import complete",
			zap.String("dir", importDir),
			zap.String("to", to),
			zap.Int("components", len(d.Components)),
			zap.Int("suppliers", len(d.Suppliers)),
			zap.Int("routes", len(d.Routes)),
			zap.Int("tariffs", len(d.Tariffs)),
			zap.Int("scenarios", len(d.Scenarios)),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importDir, "dir", "", "CSV reference data directory (required)")
	importCmd.Flags().StringVar(&importBOMXLSX, "bom-xlsx", "", "XLSX workbook that replaces bom.csv")
	importCmd.Flags().StringVar(&importTo, "to", "", "target driver: sqlite or postgres (default from config)")
	importCmd.Flags().StringVar(&importDSN, "dsn", "", "target database url (default from config)")
	_ = importCmd.MarkFlagRequired("dir")
	rootCmd.AddCommand(importCmd)
}
