package db

import "time"

// Sync run statuses
const (
	SyncRunRunning   = "running"
	SyncRunCompleted = "completed"
	SyncRunAborted   = "aborted"
)

// SyncRun represents a single execution of the listing pipeline
type SyncRun struct {
	RunID       string
	Trigger     string // 'scheduled' or 'manual'
	StartedAt   time.Time
	CompletedAt *time.Time
	Status      string
	Watermark   *time.Time
	Processed   int
	Saved       int
	Errors      int
}

// listingColumns is the column order shared by every listings query
const listingColumns = `mls_number, listing_key, street_address, city, state, zip_code,
	list_price, bedrooms, bathrooms, square_feet, year_built, lot_size,
	description, photos, latitude, longitude, geohash,
	property_type, property_sub_type, tax_id, virtual_tour_url,
	status, standard_status, mls_status,
	listing_date, modification_timestamp, days_on_market, last_updated, created_at`
