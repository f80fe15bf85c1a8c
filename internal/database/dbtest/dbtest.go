// Package dbtest opens throwaway migrated databases for tests.
package dbtest

import (
	"fmt"
	"path/filepath"
	"testing"

	"storefront/internal/database"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// New returns a migrated SQLite database stored under t.TempDir().
// Writers take the lock at BEGIN so concurrent transactions queue instead of failing.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("%s?_busy_timeout=10000&_txlock=immediate", filepath.Join(t.TempDir(), "storefront.db"))
	db, err := database.Open("sqlite", dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}
