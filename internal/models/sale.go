package models

import "time"

// SaleRecord is a single recorded property sale for a zipcode.
type SaleRecord struct {
	// Seq preserves insertion order and is never sent to clients
	Seq uint64 `gorm:"primaryKey;autoIncrement" json:"-" bson:"seq"`

	ID            string `gorm:"uniqueIndex;size:128;not null" json:"id" bson:"_id"`
	AddressLine   string `json:"addressLine" bson:"addressLine"`
	AddressDetail string `json:"addressDetail" bson:"addressDetail"`
	Zipcode       string `gorm:"index:idx_sale_records_zipcode_date,priority:1;size:5;not null" json:"zipcode" bson:"zipcode"`

	Price     float64 `gorm:"index;not null" json:"price" bson:"price"`
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`

	Bedrooms  *int     `gorm:"index" json:"bedrooms" bson:"bedrooms,omitempty"`
	Bathrooms *float64 `json:"bathrooms" bson:"bathrooms,omitempty"`
	Sqft      *int     `gorm:"index" json:"sqft" bson:"sqft,omitempty"`
	LotSize   *float64 `json:"lotSize" bson:"lotSize,omitempty"`
	YearBuilt *int     `gorm:"index" json:"yearBuilt" bson:"yearBuilt,omitempty"`

	PropertyType *string `json:"propertyType" bson:"propertyType,omitempty"`
	SaleType     *string `json:"saleType" bson:"saleType,omitempty"`
	LandUseCode  *string `json:"landUseCode" bson:"landUseCode,omitempty"`
	SaleDate     *string `gorm:"index:idx_sale_records_zipcode_date,priority:2" json:"saleDate" bson:"saleDate,omitempty"`

	PricePerSqft    *float64 `json:"pricePerSqft" bson:"pricePerSqft,omitempty"`
	PricePerBedroom *float64 `json:"pricePerBedroom" bson:"pricePerBedroom,omitempty"`

	LastModified *string `json:"lastModified" bson:"lastModified,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (SaleRecord) TableName() string {
	return "sale_records"
}

// Valid reports whether the record may be stored: it needs a zipcode,
// a positive price and a location other than (0, 0).
func (r *SaleRecord) Valid() bool {
	if r.Zipcode == "" || r.Price <= 0 {
		return false
	}
	return r.Latitude != 0 || r.Longitude != 0
}

// HasSaleDate reports whether the record carries a non-empty sale date.
func (r *SaleRecord) HasSaleDate() bool {
	return r.SaleDate != nil && *r.SaleDate != ""
}

// SaleYear extracts the calendar year from the sale date.
func (r *SaleRecord) SaleYear() (int, bool) {
	if !r.HasSaleDate() {
		return 0, false
	}
	for _, layout := range saleDateLayouts {
		if t, err := time.Parse(layout, *r.SaleDate); err == nil {
			return t.Year(), true
		}
	}
	return 0, false
}

var saleDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
}

// DedupeByID collapses records sharing an ID. The last occurrence's values
// win; the position of the first occurrence is kept.
func DedupeByID(records []SaleRecord) []SaleRecord {
	index := make(map[string]int, len(records))
	out := make([]SaleRecord, 0, len(records))
	for _, r := range records {
		if i, ok := index[r.ID]; ok {
			out[i] = r
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}
