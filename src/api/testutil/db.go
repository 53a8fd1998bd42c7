// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stake-plus/stratomai-agents/src/api/config"
	"github.com/stake-plus/stratomai-agents/src/api/data"
)

// NewDB returns a migrated in-memory sqlite database private to t.
// A single connection keeps every statement on the same memory database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := data.Open(config.DatabaseConfig{Driver: "sqlite", DSN: dsn}, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := data.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
