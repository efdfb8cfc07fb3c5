// Package storetest opens throwaway sqlite stores for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"scentroute-cloud/internal/config"
	"scentroute-cloud/internal/store"
)

// New opens a migrated sqlite store in a temp dir, closed on cleanup.
func New(t testing.TB) *store.DB {
	t.Helper()
	db, err := store.Open(context.Background(), config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "scentroute.db"),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
