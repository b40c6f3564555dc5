package loader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/livinlefevreloca/listingsync/internal/listing"
	"github.com/livinlefevreloca/listingsync/internal/notify"
)

// Store persists listings keyed by MLS number
type Store interface {
	UpsertListing(ctx context.Context, l *listing.Listing) (*listing.Listing, error)
}

// PersistenceError reports a listing the store refused
type PersistenceError struct {
	MLSNumber string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist listing %q: %v", e.MLSNumber, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Loader writes canonical listings and announces the writes
type Loader struct {
	store     Store
	publisher notify.Publisher
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a loader. publisher may be nil; now defaults to time.Now.
func New(store Store, publisher notify.Publisher, now func() time.Time, logger *slog.Logger) *Loader {
	if now == nil {
		now = time.Now
	}
	return &Loader{
		store:     store,
		publisher: publisher,
		now:       now,
		logger:    logger,
	}
}

// Upsert stores a single listing, stamping LastUpdated with the current time
func (ld *Loader) Upsert(ctx context.Context, l listing.Listing) (*listing.Listing, error) {
	stored, err := ld.upsert(ctx, l)
	if err != nil {
		return nil, err
	}
	ld.announce(ctx, 1)
	return stored, nil
}

// UpsertBatch stores records in order and stops at the first failure.
// The returned count covers the records stored before the failure.
func (ld *Loader) UpsertBatch(ctx context.Context, records []listing.Listing) (int, error) {
	saved := 0
	for _, l := range records {
		if _, err := ld.upsert(ctx, l); err != nil {
			ld.announce(ctx, saved)
			return saved, err
		}
		saved++
	}

	ld.announce(ctx, saved)
	return saved, nil
}

func (ld *Loader) upsert(ctx context.Context, l listing.Listing) (*listing.Listing, error) {
	l.LastUpdated = ld.now().UTC()

	stored, err := ld.store.UpsertListing(ctx, &l)
	if err != nil {
		ld.logger.Warn("listing upsert failed",
			"mls_number", l.MLSNumber,
			"error", err)
		return nil, &PersistenceError{MLSNumber: l.MLSNumber, Err: err}
	}
	return stored, nil
}

func (ld *Loader) announce(ctx context.Context, saved int) {
	if saved == 0 || ld.publisher == nil {
		return
	}
	ld.publisher.Publish(ctx, notify.Event{
		Saved: saved,
		At:    ld.now().UTC(),
	})
}
