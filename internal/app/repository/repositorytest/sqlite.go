// Package repositorytest provides store fixtures shared by tests across packages.
package repositorytest

import (
	"testing"

	"github.com/sifan077/EphemURL/internal/app/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB opens a migrated in-memory SQLite database behind GORM.
//
// The pool is pinned to one connection so every caller sees the same
// in-memory database; concurrent callers queue on the pool.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		TranslateError:         true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&model.Mapping{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CountMappings returns the number of physical rows, live or expired.
func CountMappings(t testing.TB, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&model.Mapping{}).Count(&n).Error; err != nil {
		t.Fatalf("count mappings: %v", err)
	}
	return n
}
