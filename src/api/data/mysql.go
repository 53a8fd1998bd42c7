package data

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/stake-plus/stratomai-agents/src/api/config"
	"github.com/stake-plus/stratomai-agents/src/api/types"
)

// Open connects to the configured database driver.
func Open(cfg config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: gormLogger(log)}
	switch cfg.Driver {
	case "mysql":
		return gorm.Open(mysql.Open(mysqlDSN(cfg.DSN)), gcfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(cfg.DSN), gcfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(types.AllModels...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

func gormLogger(log *slog.Logger) logger.Interface {
	if log == nil {
		log = slog.Default()
	}
	return logger.New(
		slog.NewLogLogger(log.With("component", "gorm").Handler(), slog.LevelWarn),
		logger.Config{SlowThreshold: time.Second, LogLevel: logger.Warn, IgnoreRecordNotFoundError: true, Colorful: false},
	)
}

// mysqlDSN makes timestamps scan into time.Time and forces utf8mb4.
func mysqlDSN(dsn string) string {
	dsn = ensureParam(dsn, "parseTime", "true")
	if !strings.Contains(dsn, "charset=") {
		dsn = ensureParam(dsn, "charset", "utf8mb4")
		dsn = ensureParam(dsn, "collation", "utf8mb4_unicode_ci")
	}
	return dsn
}

func ensureParam(dsn, key, val string) string {
	if strings.Contains(dsn, key+"=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + key + "=" + val
}
