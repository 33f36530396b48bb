package upstream

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"zipsales/server/internal/models"
)

const addressFallback = "Address not available"

// normalize maps raw properties onto sale records for zipcode. Properties
// without a sale amount or a usable location are dropped. The result is
// ordered by sale date, newest first, with undated records last.
func normalize(zipcode string, props []property, newID func(zipcode string) string) []models.SaleRecord {
	records := make([]models.SaleRecord, 0, len(props))
	for _, p := range props {
		price, ok := p.Sale.Amount.SaleAmt.positive()
		if !ok || !p.Location.Latitude.Valid || !p.Location.Longitude.Valid {
			continue
		}

		r := models.SaleRecord{
			ID:            string(p.Identifier.AttomID),
			AddressLine:   firstNonEmpty(p.Address.OneLine, p.Address.Line1, addressFallback),
			AddressDetail: p.Address.Line2,
			Zipcode:       zipcode,
			Price:         price,
			Latitude:      p.Location.Latitude.Value,
			Longitude:     p.Location.Longitude.Value,
			PropertyType:  optionalString(p.Summary.PropertyType),
			SaleType:      optionalString(p.Sale.SaleType),
			LandUseCode:   optionalString(p.Summary.PropLandUse),
			SaleDate:      optionalString(p.Sale.SaleTransDate),
			LastModified:  optionalString(p.LastModified),
		}
		if r.ID == "" {
			r.ID = newID(zipcode)
		}

		r.Bedrooms = optionalInt(p.Building.Rooms.Beds)
		r.Bathrooms = optionalFloat(p.Building.Rooms.BathsTotal)
		r.Sqft = optionalInt(p.Building.Size.UniversalSize)
		r.LotSize = optionalFloat(p.Building.Size.LotSize)
		r.YearBuilt = optionalInt(p.Summary.YearBuilt)

		if r.Sqft != nil {
			v := math.Round(price / float64(*r.Sqft))
			r.PricePerSqft = &v
		}
		if r.Bedrooms != nil {
			v := math.Round(price / float64(*r.Bedrooms))
			r.PricePerBedroom = &v
		}

		if !r.Valid() {
			continue
		}
		records = append(records, r)
	}

	sortBySaleDateDesc(records)
	return records
}

func sortBySaleDateDesc(records []models.SaleRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].HasSaleDate(), records[j].HasSaleDate()
		if a != b {
			return a
		}
		if !a {
			return false
		}
		return *records[i].SaleDate > *records[j].SaleDate
	})
}

// fallbackID synthesizes an id for properties the provider left unidentified.
func fallbackID(zipcode string) string {
	return fmt.Sprintf("attom_%s_%d_%s", zipcode, time.Now().UnixNano(), uuid.NewString())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Zero counts as missing for the optional numeric attributes.
func optionalInt(n flexNumber) *int {
	v, ok := n.positive()
	if !ok {
		return nil
	}
	i := int(v)
	if i == 0 {
		return nil
	}
	return &i
}

func optionalFloat(n flexNumber) *float64 {
	v, ok := n.positive()
	if !ok {
		return nil
	}
	return &v
}
