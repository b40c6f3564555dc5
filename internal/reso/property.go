package reso

import "github.com/shopspring/decimal"

// Property is a listing as served by the upstream Property resource.
// Every field is optional on the wire; absent values decode to nil.
type Property struct {
	ListingID  *string `json:"ListingId"`
	ListingKey *string `json:"ListingKey"`

	StandardStatus *string `json:"StandardStatus"`
	MLSStatus      *string `json:"MlsStatus"`

	PropertyType    *string `json:"PropertyType"`
	PropertySubType *string `json:"PropertySubType"`

	UnparsedAddress *string `json:"UnparsedAddress"`
	StreetNumber    *string `json:"StreetNumber"`
	StreetName      *string `json:"StreetName"`
	City            *string `json:"City"`
	StateOrProvince *string `json:"StateOrProvince"`
	PostalCode      *string `json:"PostalCode"`

	ListPrice             *decimal.Decimal `json:"ListPrice"`
	BedroomsTotal         *int             `json:"BedroomsTotal"`
	BathroomsTotalInteger *int             `json:"BathroomsTotalInteger"`
	BathroomsTotal        *int             `json:"BathroomsTotal"`
	LivingArea            *float64         `json:"LivingArea"`
	LotSizeArea           *float64         `json:"LotSizeArea"`
	YearBuilt             *int             `json:"YearBuilt"`
	PublicRemarks         *string          `json:"PublicRemarks"`

	Latitude  *float64 `json:"Latitude"`
	Longitude *float64 `json:"Longitude"`

	TaxParcelIdentification *string `json:"TaxParcelIdentification"`
	VirtualTourURLUnbranded *string `json:"VirtualTourURLUnbranded"`

	// Dates are kept as sent; feeds disagree on date versus date-time
	ListingContractDate   *string `json:"ListingContractDate"`
	ModificationTimestamp *string `json:"ModificationTimestamp"`

	Media []Media `json:"Media"`
}

// Media is one entry of a listing's media collection
type Media struct {
	MediaKey *string `json:"MediaKey"`
	MediaURL *string `json:"MediaURL"`
	Order    *int    `json:"Order"`
}

// Key returns the listing id, or an empty string when absent
func (p *Property) Key() string {
	if p.ListingID == nil {
		return ""
	}
	return *p.ListingID
}
