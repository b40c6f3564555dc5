package listing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing is the canonical listing record kept in the local store.
// MLSNumber is the natural key; at most one stored record exists per key.
type Listing struct {
	MLSNumber  string
	ListingKey *string

	StreetAddress *string
	City          *string
	State         *string
	ZipCode       *string

	ListPrice  decimal.Decimal
	Bedrooms   *int
	Bathrooms  *int
	SquareFeet *int
	YearBuilt  *int
	LotSize    *float64

	Description *string
	Photos      []string

	Latitude  *float64
	Longitude *float64
	Geohash   *string

	PropertyType    *string
	PropertySubType *string
	TaxID           *string
	VirtualTourURL  *string

	// Status is normalized; StandardStatus and MLSStatus echo upstream values unmodified.
	Status         string
	StandardStatus string
	MLSStatus      *string

	ListingDate           *time.Time
	ModificationTimestamp *time.Time
	DaysOnMarket          *int
	LastUpdated           time.Time
	CreatedAt             time.Time
}

// Summary is the reduced projection served to the dashboard
type Summary struct {
	MLSNumber     string          `json:"mlsNumber"`
	StreetAddress *string         `json:"streetAddress"`
	City          *string         `json:"city"`
	State         *string         `json:"state"`
	ListPrice     decimal.Decimal `json:"listPrice"`
	Status        string          `json:"status"`
	LastUpdated   time.Time       `json:"lastUpdated"`
}

// Summarize projects a listing onto its dashboard summary.
func (l *Listing) Summarize() Summary {
	return Summary{
		MLSNumber:     l.MLSNumber,
		StreetAddress: l.StreetAddress,
		City:          l.City,
		State:         l.State,
		ListPrice:     l.ListPrice,
		Status:        l.Status,
		LastUpdated:   l.LastUpdated,
	}
}
