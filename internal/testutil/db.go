package testutil

import (
	"context"
	"testing"

	"github.com/livinlefevreloca/listingsync/internal/db"
	"github.com/livinlefevreloca/listingsync/migrations"
)

// NewTestDB opens a migrated in-memory SQLite store that is closed with the test
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	store, err := db.Open(db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := store.Migrate(context.Background(), migrations.FS); err != nil {
		store.Close()
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
