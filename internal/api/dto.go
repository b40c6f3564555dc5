package api

import (
	"time"

	"github.com/livinlefevreloca/listingsync/internal/etl"
	"github.com/livinlefevreloca/listingsync/internal/listing"
	"github.com/livinlefevreloca/listingsync/internal/status"
	"github.com/shopspring/decimal"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type triggerResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ProcessedCount int    `json:"processedCount"`
	Saved          int    `json:"saved"`
	Errors         int    `json:"errors"`
	RunID          string `json:"runId"`
	State          string `json:"state"`
}

type runDTO struct {
	RunID      string     `json:"runId"`
	Trigger    string     `json:"trigger"`
	State      string     `json:"state"`
	Success    bool       `json:"success"`
	Processed  int        `json:"processed"`
	Saved      int        `json:"saved"`
	Errors     int        `json:"errors"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
	Watermark  *time.Time `json:"watermark"`
	LastError  string     `json:"lastError,omitempty"`
}

func newRunDTO(r *etl.RunResult) *runDTO {
	if r == nil {
		return nil
	}
	return &runDTO{
		RunID:      r.RunID,
		Trigger:    r.Trigger,
		State:      string(r.State),
		Success:    r.Success,
		Processed:  r.Processed,
		Saved:      r.Saved,
		Errors:     r.Errors,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Watermark:  r.Watermark,
		LastError:  r.LastError,
	}
}

type statusData struct {
	Status           string     `json:"status"`
	LastUpdateDate   *time.Time `json:"lastUpdateDate"`
	TotalProperties  int        `json:"totalProperties"`
	LastRun          *runDTO    `json:"lastRun"`
	LastSync         time.Time  `json:"lastSync"`
	NextScheduledRun *time.Time `json:"nextScheduledRun"`
	Running          bool       `json:"running"`
}

func newStatusData(s *status.Snapshot) statusData {
	return statusData{
		Status:           s.Status,
		LastUpdateDate:   s.LastUpdated,
		TotalProperties:  s.TotalProperties,
		LastRun:          newRunDTO(s.LastRun),
		LastSync:         s.LastSync,
		NextScheduledRun: s.NextRun,
		Running:          s.Running,
	}
}

// adminStatus is the flat status body the admin dashboard reads
type adminStatus struct {
	Status           string     `json:"status"`
	TotalProperties  int        `json:"totalProperties"`
	LastUpdated      *time.Time `json:"lastUpdated"`
	LastRun          *runDTO    `json:"lastRun"`
	NextScheduledRun *time.Time `json:"nextScheduledRun"`
	Running          bool       `json:"running"`
}

func newAdminStatus(s *status.Snapshot) adminStatus {
	return adminStatus{
		Status:           s.Status,
		TotalProperties:  s.TotalProperties,
		LastUpdated:      s.LastUpdated,
		LastRun:          newRunDTO(s.LastRun),
		NextScheduledRun: s.NextRun,
		Running:          s.Running,
	}
}

type recentData struct {
	Properties []listing.Summary `json:"properties"`
	Count      int               `json:"count"`
}

// updateResponse carries the timestamp as epoch milliseconds for the next since
type updateResponse struct {
	Timestamp int64        `json:"timestamp"`
	Data      *status.Data `json:"data"`
}

type listingDTO struct {
	MLSNumber             string          `json:"mlsNumber"`
	ListingKey            *string         `json:"listingKey"`
	StreetAddress         *string         `json:"streetAddress"`
	City                  *string         `json:"city"`
	State                 *string         `json:"state"`
	ZipCode               *string         `json:"zipCode"`
	ListPrice             decimal.Decimal `json:"listPrice"`
	Bedrooms              *int            `json:"bedrooms"`
	Bathrooms             *int            `json:"bathrooms"`
	SquareFeet            *int            `json:"squareFeet"`
	YearBuilt             *int            `json:"yearBuilt"`
	LotSize               *float64        `json:"lotSize"`
	Description           *string         `json:"description"`
	Photos                []string        `json:"photos"`
	Latitude              *float64        `json:"latitude"`
	Longitude             *float64        `json:"longitude"`
	Geohash               *string         `json:"geohash"`
	PropertyType          *string         `json:"propertyType"`
	PropertySubType       *string         `json:"propertySubType"`
	TaxID                 *string         `json:"taxId"`
	VirtualTourURL        *string         `json:"virtualTourUrl"`
	Status                string          `json:"status"`
	StandardStatus        string          `json:"standardStatus"`
	MLSStatus             *string         `json:"mlsStatus"`
	ListingDate           *time.Time      `json:"listingDate"`
	ModificationTimestamp *time.Time      `json:"modificationTimestamp"`
	DaysOnMarket          *int            `json:"daysOnMarket"`
	LastUpdated           time.Time       `json:"lastUpdated"`
	CreatedAt             time.Time       `json:"createdAt"`
}

func newListingDTO(l *listing.Listing) listingDTO {
	photos := l.Photos
	if photos == nil {
		photos = []string{}
	}
	return listingDTO{
		MLSNumber:             l.MLSNumber,
		ListingKey:            l.ListingKey,
		StreetAddress:         l.StreetAddress,
		City:                  l.City,
		State:                 l.State,
		ZipCode:               l.ZipCode,
		ListPrice:             l.ListPrice,
		Bedrooms:              l.Bedrooms,
		Bathrooms:             l.Bathrooms,
		SquareFeet:            l.SquareFeet,
		YearBuilt:             l.YearBuilt,
		LotSize:               l.LotSize,
		Description:           l.Description,
		Photos:                photos,
		Latitude:              l.Latitude,
		Longitude:             l.Longitude,
		Geohash:               l.Geohash,
		PropertyType:          l.PropertyType,
		PropertySubType:       l.PropertySubType,
		TaxID:                 l.TaxID,
		VirtualTourURL:        l.VirtualTourURL,
		Status:                l.Status,
		StandardStatus:        l.StandardStatus,
		MLSStatus:             l.MLSStatus,
		ListingDate:           l.ListingDate,
		ModificationTimestamp: l.ModificationTimestamp,
		DaysOnMarket:          l.DaysOnMarket,
		LastUpdated:           l.LastUpdated,
		CreatedAt:             l.CreatedAt,
	}
}
