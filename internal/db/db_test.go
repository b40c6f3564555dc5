package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/livinlefevreloca/listingsync/internal/listing"
	"github.com/livinlefevreloca/listingsync/migrations"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Fixtures and Helpers

// NewTestDB creates a migrated in-memory SQLite database for testing
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Migrate(context.Background(), migrations.FS); err != nil {
		db.Close()
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// MakeTestListing creates a listing with default test values
func MakeTestListing(mls string, updated time.Time) *listing.Listing {
	city := "Austin"
	beds := 3
	return &listing.Listing{
		MLSNumber:      mls,
		City:           &city,
		ListPrice:      decimal.RequireFromString("425000.50"),
		Bedrooms:       &beds,
		Photos:         []string{"https://photos.example.com/" + mls + "/1.jpg"},
		Status:         listing.StatusActive,
		StandardStatus: "Active",
		LastUpdated:    updated,
	}
}

func strPtr(s string) *string { return &s }

// Connection Tests

func TestOpen(t *testing.T) {
	db, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, DriverSQLite, db.Driver())
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
	assert.NoError(t, db.Ready(context.Background()))
}

func TestOpenWithConfig_KeepsSingleConnectionForMemory(t *testing.T) {
	db, err := OpenWithConfig(Config{
		Driver:       DriverSQLite,
		DSN:          ":memory:",
		MaxOpenConns: 10,
		MaxIdleConns: 2,
	})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("oracle", "whatever")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	lite := &DB{driver: DriverSQLite}
	query := "UPDATE t SET a = ?, b = ? WHERE c = ?"

	assert.Equal(t, "UPDATE t SET a = $1, b = $2 WHERE c = $3", pg.rebind(query))
	assert.Equal(t, query, lite.rebind(query))
}

// Listing Tests

func TestUpsertListing_InsertAndGet(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	updated := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	stored, err := db.UpsertListing(ctx, MakeTestListing("A1", updated))
	require.NoError(t, err)

	assert.Equal(t, "A1", stored.MLSNumber)
	assert.Equal(t, "Austin", *stored.City)
	assert.Equal(t, 3, *stored.Bedrooms)
	assert.Nil(t, stored.StreetAddress)
	assert.True(t, decimal.RequireFromString("425000.50").Equal(stored.ListPrice), "price %s", stored.ListPrice)
	assert.Equal(t, []string{"https://photos.example.com/A1/1.jpg"}, stored.Photos)
	assert.True(t, updated.Equal(stored.LastUpdated))
	assert.True(t, updated.Equal(stored.CreatedAt))
	require.NotNil(t, stored.ListingDate)
	assert.True(t, updated.Equal(*stored.ListingDate), "listing date falls back to first-seen time")

	got, err := db.GetListing(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, stored, got)
}

func TestUpsertListing_Idempotent(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	first := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	a, err := db.UpsertListing(ctx, MakeTestListing("A1", first))
	require.NoError(t, err)
	b, err := db.UpsertListing(ctx, MakeTestListing("A1", second))
	require.NoError(t, err)

	count, err := db.CountListings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.True(t, second.Equal(b.LastUpdated))
	assert.True(t, first.Equal(b.CreatedAt))

	// Only the sync time differs between the two writes
	a.LastUpdated = b.LastUpdated
	assert.Equal(t, a, b)
}

func TestUpsertListing_OverwritesMutableFields(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	first := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	contract := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	l := MakeTestListing("A1", first)
	l.ListingDate = &contract
	_, err := db.UpsertListing(ctx, l)
	require.NoError(t, err)

	later := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)
	l2 := MakeTestListing("A1", first.Add(time.Hour))
	l2.ListPrice = decimal.NewFromInt(399000)
	l2.Status = listing.StatusPending
	l2.StandardStatus = "Pending"
	l2.City = nil
	l2.StreetAddress = strPtr("1 Main St")
	l2.ListingDate = &later

	stored, err := db.UpsertListing(ctx, l2)
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(399000).Equal(stored.ListPrice))
	assert.Equal(t, listing.StatusPending, stored.Status)
	assert.Nil(t, stored.City)
	assert.Equal(t, "1 Main St", *stored.StreetAddress)
	require.NotNil(t, stored.ListingDate)
	assert.True(t, contract.Equal(*stored.ListingDate), "listing date keeps its first value")
}

func TestUpsertListing_RejectsIncompleteRecord(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tests := []struct {
		name   string
		mutate func(*listing.Listing)
	}{
		{"missing mls number", func(l *listing.Listing) { l.MLSNumber = "" }},
		{"missing status", func(l *listing.Listing) { l.Status = "" }},
		{"missing last updated", func(l *listing.Listing) { l.LastUpdated = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := MakeTestListing("BAD", now)
			tt.mutate(l)
			_, err := db.UpsertListing(ctx, l)
			assert.Error(t, err)
		})
	}

	count, err := db.CountListings(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGetListing_NotFound(t *testing.T) {
	db := NewTestDB(t)

	_, err := db.GetListing(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))
}

func TestLatestUpdate(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	latest, err := db.LatestUpdate(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest, "empty store has no watermark")

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, mls := range []string{"A1", "A2", "A3"} {
		_, err := db.UpsertListing(ctx, MakeTestListing(mls, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	latest, err = db.LatestUpdate(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, base.Add(2*time.Minute).Equal(*latest))
	assert.Equal(t, time.UTC, latest.Location())
}

func TestRecentListings(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	empty, err := db.RecentListings(ctx, 10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, mls := range []string{"A1", "A2", "A3", "A4"} {
		_, err := db.UpsertListing(ctx, MakeTestListing(mls, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	recent, err := db.RecentListings(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "A4", recent[0].MLSNumber)
	assert.Equal(t, "A3", recent[1].MLSNumber)
	assert.Equal(t, "A2", recent[2].MLSNumber)
}

// Sync Run Tests

func TestSyncRuns(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	started := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	watermark := started.Add(-time.Hour)

	_, err := db.LatestSyncRun(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	run := &SyncRun{
		RunID:     "run-1",
		Trigger:   "scheduled",
		StartedAt: started,
		Status:    SyncRunRunning,
		Watermark: &watermark,
	}
	require.NoError(t, db.CreateSyncRun(ctx, run))

	// A running run is not reported as the latest completed one
	_, err = db.LatestSyncRun(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	completed := started.Add(2 * time.Minute)
	require.NoError(t, db.CompleteSyncRun(ctx, "run-1", SyncRunCompleted, 250, 248, 2, completed))

	got, err := db.GetSyncRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "scheduled", got.Trigger)
	assert.Equal(t, SyncRunCompleted, got.Status)
	assert.Equal(t, 250, got.Processed)
	assert.Equal(t, 248, got.Saved)
	assert.Equal(t, 2, got.Errors)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, completed.Equal(*got.CompletedAt))
	require.NotNil(t, got.Watermark)
	assert.True(t, watermark.Equal(*got.Watermark))

	latest, err := db.LatestSyncRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest.RunID)

	require.NoError(t, db.CreateSyncRun(ctx, &SyncRun{
		RunID:     "run-2",
		Trigger:   "manual",
		StartedAt: started.Add(time.Hour),
		Status:    SyncRunRunning,
	}))

	runs, err := db.GetSyncRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Nil(t, runs[0].Watermark)

	err = db.CompleteSyncRun(ctx, "missing", SyncRunAborted, 0, 0, 0, completed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIsDuplicate(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	run := &SyncRun{RunID: "dup", Trigger: "manual", StartedAt: time.Now().UTC(), Status: SyncRunRunning}

	require.NoError(t, db.CreateSyncRun(ctx, run))
	err := db.CreateSyncRun(ctx, run)
	assert.True(t, IsDuplicate(err))
	assert.False(t, IsDuplicate(nil))
}

// Postgres runs only when a server is provided
func TestPostgres_UpsertListing(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	db, err := Open(DriverPostgres, dsn)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	_, err = db.Migrate(ctx, migrations.FS)
	require.NoError(t, err)

	mls := "PGTEST-" + time.Now().Format("150405.000000")
	t.Cleanup(func() {
		db.Exec("DELETE FROM listings WHERE mls_number = $1", mls)
	})

	updated := time.Now().UTC().Truncate(time.Microsecond)
	stored, err := db.UpsertListing(ctx, MakeTestListing(mls, updated))
	require.NoError(t, err)
	assert.True(t, updated.Equal(stored.LastUpdated))
	assert.True(t, decimal.RequireFromString("425000.50").Equal(stored.ListPrice))
}
