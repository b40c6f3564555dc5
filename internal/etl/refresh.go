package etl

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/livinlefevreloca/listingsync/internal/listing"
	"github.com/livinlefevreloca/listingsync/internal/reso"
)

// SingleFetcher looks up one upstream listing
type SingleFetcher interface {
	FetchByListingID(ctx context.Context, listingID string) (reso.Record, error)
}

// Mapper decodes and converts one upstream record
type Mapper interface {
	MapRecord(r reso.Record) (listing.Listing, error)
}

// SingleLoader stores one listing
type SingleLoader interface {
	Upsert(ctx context.Context, l listing.Listing) (*listing.Listing, error)
}

// Refresher re-syncs a single listing outside of a scheduled run
type Refresher struct {
	fetcher SingleFetcher
	mapper  Mapper
	loader  SingleLoader
	logger  *slog.Logger
}

// NewRefresher creates a Refresher
func NewRefresher(fetcher SingleFetcher, mapper Mapper, loader SingleLoader, logger *slog.Logger) *Refresher {
	return &Refresher{
		fetcher: fetcher,
		mapper:  mapper,
		loader:  loader,
		logger:  logger,
	}
}

// Refresh fetches, maps and stores the listing with the given MLS number.
// Errors keep their type: reso.ErrNotFound, *reso.TransportError, *transform.TransformError, *loader.PersistenceError.
func (r *Refresher) Refresh(ctx context.Context, mlsNumber string) (*listing.Listing, error) {
	rec, err := r.fetcher.FetchByListingID(ctx, mlsNumber)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", mlsNumber, err)
	}

	l, err := r.mapper.MapRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", mlsNumber, err)
	}

	stored, err := r.loader.Upsert(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", mlsNumber, err)
	}

	r.logger.Info("listing refreshed", "mls_number", stored.MLSNumber)
	return stored, nil
}
