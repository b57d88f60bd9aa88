// Package persistence opens the database selected by the runs configuration.
package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/compeek/compeek/internal/common/config"
	"github.com/compeek/compeek/internal/common/logger"
	"github.com/compeek/compeek/internal/db"
	"github.com/compeek/compeek/internal/db/dialect"
)

// DriverMemory keeps run history in process memory only.
const DriverMemory = "memory"

// Provide opens the run history database. It returns a nil pool for the
// memory driver. The cleanup func closes the pool.
func Provide(ctx context.Context, cfg config.RunsConfig, log *logger.Logger) (*db.Pool, func() error, error) {
	if log == nil {
		log = logger.Default()
	}

	switch cfg.Driver {
	case dialect.SQLite3:
		pool, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		log.Info("Database initialized", zap.String("db_path", cfg.SQLitePath), zap.String("db_driver", cfg.Driver))
		cleanup := func() error {
			// Refresh planner statistics before closing.
			_, _ = pool.Writer().Exec("PRAGMA optimize")
			return pool.Close()
		}
		return pool, cleanup, nil
	case dialect.PGX:
		pool, err := db.OpenPostgres(ctx, cfg.DSN, cfg.MaxConns, cfg.MinConns)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Database initialized", zap.String("db_driver", cfg.Driver))
		return pool, pool.Close, nil
	case DriverMemory:
		log.Info("Run history kept in memory")
		return nil, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}
