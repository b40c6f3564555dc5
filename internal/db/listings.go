package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/livinlefevreloca/listingsync/internal/listing"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// UpsertListing inserts the listing or overwrites every mutable field of the stored
// record with the same MLS number. listing_date and created_at keep their first values.
// The stored record is returned.
func (db *DB) UpsertListing(ctx context.Context, l *listing.Listing) (*listing.Listing, error) {
	if l.MLSNumber == "" {
		return nil, errors.New("listing has no mls number")
	}
	if l.Status == "" {
		return nil, fmt.Errorf("listing %s has no status", l.MLSNumber)
	}
	if l.LastUpdated.IsZero() {
		return nil, fmt.Errorf("listing %s has no last_updated", l.MLSNumber)
	}

	photos := l.Photos
	if photos == nil {
		photos = []string{}
	}
	photosJSON, err := json.Marshal(photos)
	if err != nil {
		return nil, fmt.Errorf("encode photos: %w", err)
	}

	now := l.LastUpdated.UTC()
	listingDate := now
	if l.ListingDate != nil {
		listingDate = l.ListingDate.UTC()
	}

	query := `
		INSERT INTO listings (` + listingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (mls_number) DO UPDATE SET
			listing_key = excluded.listing_key,
			street_address = excluded.street_address,
			city = excluded.city,
			state = excluded.state,
			zip_code = excluded.zip_code,
			list_price = excluded.list_price,
			bedrooms = excluded.bedrooms,
			bathrooms = excluded.bathrooms,
			square_feet = excluded.square_feet,
			year_built = excluded.year_built,
			lot_size = excluded.lot_size,
			description = excluded.description,
			photos = excluded.photos,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			geohash = excluded.geohash,
			property_type = excluded.property_type,
			property_sub_type = excluded.property_sub_type,
			tax_id = excluded.tax_id,
			virtual_tour_url = excluded.virtual_tour_url,
			status = excluded.status,
			standard_status = excluded.standard_status,
			mls_status = excluded.mls_status,
			listing_date = COALESCE(listings.listing_date, excluded.listing_date),
			modification_timestamp = excluded.modification_timestamp,
			days_on_market = excluded.days_on_market,
			last_updated = excluded.last_updated
	`

	_, err = db.ExecContext(ctx, db.rebind(query),
		l.MLSNumber,
		l.ListingKey,
		l.StreetAddress,
		l.City,
		l.State,
		l.ZipCode,
		l.ListPrice,
		l.Bedrooms,
		l.Bathrooms,
		l.SquareFeet,
		l.YearBuilt,
		l.LotSize,
		l.Description,
		string(photosJSON),
		l.Latitude,
		l.Longitude,
		l.Geohash,
		l.PropertyType,
		l.PropertySubType,
		l.TaxID,
		l.VirtualTourURL,
		l.Status,
		l.StandardStatus,
		l.MLSStatus,
		listingDate,
		utcPtr(l.ModificationTimestamp),
		l.DaysOnMarket,
		now,
		now,
	)

	if err != nil {
		return nil, fmt.Errorf("upsert listing %s: %w", l.MLSNumber, err)
	}

	// Read back in a separate statement: RETURNING rows carry no declared column
	// types under SQLite, so timestamps would not decode.
	stored, err := db.GetListing(ctx, l.MLSNumber)
	if err != nil {
		return nil, fmt.Errorf("read back listing %s: %w", l.MLSNumber, err)
	}
	return stored, nil
}

// GetListing retrieves a listing by its MLS number
func (db *DB) GetListing(ctx context.Context, mlsNumber string) (*listing.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE mls_number = ?`

	l, err := scanListing(db.QueryRowContext(ctx, db.rebind(query), mlsNumber))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// CountListings returns the number of stored listings
func (db *DB) CountListings(ctx context.Context) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM listings").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// LatestUpdate returns the most recent last_updated value, or nil for an empty store.
// ORDER BY keeps the column type so the driver decodes a timestamp, which MAX() would lose.
func (db *DB) LatestUpdate(ctx context.Context) (*time.Time, error) {
	var latest time.Time
	err := db.QueryRowContext(ctx,
		"SELECT last_updated FROM listings ORDER BY last_updated DESC LIMIT 1").Scan(&latest)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	latest = latest.UTC()
	return &latest, nil
}

// RecentListings returns up to limit listings, most recently updated first
func (db *DB) RecentListings(ctx context.Context, limit int) ([]listing.Listing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM listings
		ORDER BY last_updated DESC, mls_number ASC
		LIMIT ?
	`

	rows, err := db.QueryContext(ctx, db.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	listings := []listing.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return listings, nil
}

func scanListing(s rowScanner) (*listing.Listing, error) {
	var (
		l      listing.Listing
		photos string
	)

	err := s.Scan(
		&l.MLSNumber,
		&l.ListingKey,
		&l.StreetAddress,
		&l.City,
		&l.State,
		&l.ZipCode,
		&l.ListPrice,
		&l.Bedrooms,
		&l.Bathrooms,
		&l.SquareFeet,
		&l.YearBuilt,
		&l.LotSize,
		&l.Description,
		&photos,
		&l.Latitude,
		&l.Longitude,
		&l.Geohash,
		&l.PropertyType,
		&l.PropertySubType,
		&l.TaxID,
		&l.VirtualTourURL,
		&l.Status,
		&l.StandardStatus,
		&l.MLSStatus,
		&l.ListingDate,
		&l.ModificationTimestamp,
		&l.DaysOnMarket,
		&l.LastUpdated,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Photos = []string{}
	if photos != "" {
		if err := json.Unmarshal([]byte(photos), &l.Photos); err != nil {
			return nil, fmt.Errorf("decode photos for %s: %w", l.MLSNumber, err)
		}
	}

	l.LastUpdated = l.LastUpdated.UTC()
	l.CreatedAt = l.CreatedAt.UTC()
	l.ListingDate = utcPtr(l.ListingDate)
	l.ModificationTimestamp = utcPtr(l.ModificationTimestamp)

	return &l, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
