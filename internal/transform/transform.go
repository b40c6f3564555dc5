package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/livinlefevreloca/listingsync/internal/listing"
	"github.com/livinlefevreloca/listingsync/internal/reso"
	"github.com/mmcloughlin/geohash"
)

// geohashPrecision gives cells of roughly 5m x 5m
const geohashPrecision = 9

// dateLayouts are tried in order when reading upstream dates
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// TransformError reports an upstream record that cannot become a listing:
// a required field is missing, or a field does not decode (Err set).
type TransformError struct {
	Key    string
	Field  string
	Record reso.Record
	Err    error
}

func (e *TransformError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transform listing %q: invalid field %s: %v", e.Key, e.Field, e.Err)
	}
	return fmt.Sprintf("transform listing %q: missing required field %s", e.Key, e.Field)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// Transformer maps upstream records onto canonical listings.
// It performs no I/O; the clock only affects DaysOnMarket.
type Transformer struct {
	now func() time.Time
}

// New creates a transformer reading the current time from now.
// A nil now uses time.Now.
func New(now func() time.Time) *Transformer {
	if now == nil {
		now = time.Now
	}
	return &Transformer{now: now}
}

// Map converts one upstream record. LastUpdated is left for the loader to set.
func (t *Transformer) Map(p reso.Property) (listing.Listing, error) {
	mls := optString(p.ListingID)
	if mls == nil {
		return listing.Listing{}, &TransformError{Field: "ListingId"}
	}
	if p.ListPrice == nil {
		return listing.Listing{}, &TransformError{Key: *mls, Field: "ListPrice"}
	}
	rawStatus := optString(p.StandardStatus)
	if rawStatus == nil {
		return listing.Listing{}, &TransformError{Key: *mls, Field: "StandardStatus"}
	}

	l := listing.Listing{
		MLSNumber:  *mls,
		ListingKey: optString(p.ListingKey),

		StreetAddress: streetAddress(p),
		City:          optString(p.City),
		State:         optString(p.StateOrProvince),
		ZipCode:       optString(p.PostalCode),

		ListPrice:  *p.ListPrice,
		Bedrooms:   p.BedroomsTotal,
		Bathrooms:  p.BathroomsTotalInteger,
		SquareFeet: roundedArea(p.LivingArea),
		YearBuilt:  p.YearBuilt,
		LotSize:    p.LotSizeArea,

		Description: optString(p.PublicRemarks),
		Photos:      photoURLs(p.Media),

		Latitude:  p.Latitude,
		Longitude: p.Longitude,

		PropertyType:    optString(p.PropertyType),
		PropertySubType: optString(p.PropertySubType),
		TaxID:           optString(p.TaxParcelIdentification),
		VirtualTourURL:  optString(p.VirtualTourURLUnbranded),

		Status:         listing.NormalizeStatus(*rawStatus),
		StandardStatus: *p.StandardStatus,
		MLSStatus:      optString(p.MLSStatus),

		ListingDate:           parseDate(p.ListingContractDate),
		ModificationTimestamp: parseDate(p.ModificationTimestamp),
	}

	if l.Bathrooms == nil {
		l.Bathrooms = p.BathroomsTotal
	}

	if l.Latitude != nil && l.Longitude != nil {
		hash := geohash.EncodeWithPrecision(*l.Latitude, *l.Longitude, geohashPrecision)
		l.Geohash = &hash
	}

	l.DaysOnMarket = daysOnMarket(l.ListingDate, t.now())

	return l, nil
}

// MapRecord decodes a raw upstream record and converts it.
// Any failure is a *TransformError carrying the raw record.
func (t *Transformer) MapRecord(r reso.Record) (listing.Listing, error) {
	p, err := r.Decode()
	if err != nil {
		field := "record"
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			field = typeErr.Field
		}
		return listing.Listing{}, &TransformError{Key: r.Key(), Field: field, Record: r, Err: err}
	}

	l, err := t.Map(p)
	var terr *TransformError
	if errors.As(err, &terr) {
		terr.Record = r
	}
	return l, err
}

// MapBatch converts a page of records. The first failing record aborts the batch.
func (t *Transformer) MapBatch(records []reso.Record) ([]listing.Listing, error) {
	out := make([]listing.Listing, 0, len(records))
	for _, r := range records {
		l, err := t.MapRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func streetAddress(p reso.Property) *string {
	if addr := optString(p.UnparsedAddress); addr != nil {
		return addr
	}

	var number, name string
	if p.StreetNumber != nil {
		number = *p.StreetNumber
	}
	if p.StreetName != nil {
		name = *p.StreetName
	}
	composed := strings.TrimSpace(strings.TrimSpace(number) + " " + strings.TrimSpace(name))
	if composed == "" {
		return nil
	}
	return &composed
}

func photoURLs(media []reso.Media) []string {
	photos := make([]string, 0, len(media))
	for _, m := range media {
		if m.MediaURL == nil || *m.MediaURL == "" {
			continue
		}
		photos = append(photos, *m.MediaURL)
	}
	return photos
}

func roundedArea(area *float64) *int {
	if area == nil {
		return nil
	}
	v := int(math.Round(*area))
	return &v
}

// daysOnMarket is the ceiling of elapsed days since the contract date, never negative
func daysOnMarket(listed *time.Time, now time.Time) *int {
	if listed == nil {
		return nil
	}
	elapsed := now.Sub(*listed)
	days := 0
	if elapsed > 0 {
		days = int(math.Ceil(elapsed.Hours() / 24))
	}
	return &days
}

func parseDate(raw *string) *time.Time {
	s := optString(raw)
	if s == nil {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// optString trims s and maps empty values to nil
func optString(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
