// Package storetest opens isolated in-memory databases for tests.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"madgrades-sync/internal/store"
)

var seq int64

// DB returns a migrated in-memory sqlite database private to tb.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(tb.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, atomic.AddInt64(&seq, 1))

	db, err := store.OpenDialector(sqlite.Open(dsn))
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	db.Logger = gormLogger.Default.LogMode(gormLogger.Silent)

	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sql db: %v", err)
	}
	// one connection keeps the in-memory database alive and serializes access
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := store.Migrate(context.Background(), db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return db
}

// Seed inserts rows, failing the test on error.
func Seed(tb testing.TB, db *gorm.DB, rows ...any) {
	tb.Helper()
	for _, r := range rows {
		if err := db.Create(r).Error; err != nil {
			tb.Fatalf("seed %T: %v", r, err)
		}
	}
}

// Count returns the number of rows in model's table.
func Count(tb testing.TB, db *gorm.DB, model any) int64 {
	tb.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		tb.Fatalf("count %T: %v", model, err)
	}
	return n
}
