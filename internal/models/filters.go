package models

import (
	"fmt"
	"math"
)

// SaleFilters holds the optional, independently applied range bounds of a
// sales query. A nil bound is not applied.
type SaleFilters struct {
	MinPrice       *float64 `form:"minPrice" json:"minPrice,omitempty"`
	MaxPrice       *float64 `form:"maxPrice" json:"maxPrice,omitempty"`
	MinBeds        *int     `form:"minBeds" json:"minBeds,omitempty"`
	MaxBeds        *int     `form:"maxBeds" json:"maxBeds,omitempty"`
	MinSqft        *int     `form:"minSqft" json:"minSqft,omitempty"`
	MaxSqft        *int     `form:"maxSqft" json:"maxSqft,omitempty"`
	YearBuiltFrom  *int     `form:"yearBuiltFrom" json:"yearBuiltFrom,omitempty"`
	YearBuiltTo    *int     `form:"yearBuiltTo" json:"yearBuiltTo,omitempty"`
	YearOfSaleFrom *int     `form:"yearOfSaleFrom" json:"yearOfSaleFrom,omitempty"`
	YearOfSaleTo   *int     `form:"yearOfSaleTo" json:"yearOfSaleTo,omitempty"`
}

// FinitePrices reports whether the price bounds that are set are real
// numbers. NaN and infinities parse as floats but bound nothing.
func (f *SaleFilters) FinitePrices() bool {
	if f == nil {
		return true
	}
	for _, v := range []*float64{f.MinPrice, f.MaxPrice} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return false
		}
	}
	return true
}

// SaleDateLowerBound returns the inclusive lower sale date bound
// ("YYYY-01-01") when YearOfSaleFrom is set.
func (f *SaleFilters) SaleDateLowerBound() (string, bool) {
	if f == nil || f.YearOfSaleFrom == nil {
		return "", false
	}
	return fmt.Sprintf("%04d-01-01", *f.YearOfSaleFrom), true
}

// SaleDateUpperBound returns the exclusive upper sale date bound, the first
// day of the year after YearOfSaleTo, so timestamped dates on December 31st
// still fall inside the range.
func (f *SaleFilters) SaleDateUpperBound() (string, bool) {
	if f == nil || f.YearOfSaleTo == nil {
		return "", false
	}
	return fmt.Sprintf("%04d-01-01", *f.YearOfSaleTo+1), true
}

// Matches checks if a record satisfies every bound that is set. Records
// missing a bounded field never match that bound.
func (f *SaleFilters) Matches(r *SaleRecord) bool {
	if f == nil {
		return true
	}

	if f.MinPrice != nil && r.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && r.Price > *f.MaxPrice {
		return false
	}

	if !intInRange(r.Bedrooms, f.MinBeds, f.MaxBeds) {
		return false
	}
	if !intInRange(r.Sqft, f.MinSqft, f.MaxSqft) {
		return false
	}
	if !intInRange(r.YearBuilt, f.YearBuiltFrom, f.YearBuiltTo) {
		return false
	}

	if f.YearOfSaleFrom != nil || f.YearOfSaleTo != nil {
		year, ok := r.SaleYear()
		if !ok {
			return false
		}
		if f.YearOfSaleFrom != nil && year < *f.YearOfSaleFrom {
			return false
		}
		if f.YearOfSaleTo != nil && year > *f.YearOfSaleTo {
			return false
		}
	}

	return true
}

func intInRange(v, min, max *int) bool {
	if min == nil && max == nil {
		return true
	}
	if v == nil {
		return false
	}
	if min != nil && *v < *min {
		return false
	}
	if max != nil && *v > *max {
		return false
	}
	return true
}
