package refdata

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-cli/internal/config"
	"github.com/sells-group/tariff-cli/internal/db"
)

// Load reads reference data from the configured driver and indexes it. When
// cfg.BOMXLSX is set, its bill of materials replaces the one from the driver.
func Load(ctx context.Context, cfg config.StoreConfig) (*Memory, error) {
	var (
		d   *Data
		err error
	)

	switch cfg.Driver {
	case "csv":
		d, err = LoadCSVDir(ctx, cfg.DataDir)
	case "sqlite":
		sqlDB, openErr := OpenSQLite(ctx, cfg.DatabaseURL)
		if openErr != nil {
			return nil, openErr
		}
		defer sqlDB.Close() //nolint:errcheck
		d, err = LoadSQLite(ctx, sqlDB)
	case "postgres":
		pool, connErr := db.Connect(ctx, cfg.DatabaseURL)
		if connErr != nil {
			return nil, connErr
		}
		defer pool.Close()
		d, err = LoadPostgres(ctx, pool)
	default:
		return nil, eris.Errorf("refdata: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.BOMXLSX != "" {
		bom, err := LoadBOMXLSX(cfg.BOMXLSX, "")
		if err != nil {
			return nil, err
		}
		zap.L().Info("refdata: bom replaced from workbook",
			zap.String("path", cfg.BOMXLSX), zap.Int("components", len(bom)))
		d.Components = bom
	}

	return NewMemory(*d), nil
}
