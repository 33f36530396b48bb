package models

// Pagination describes where a page sits in the full filtered result.
type Pagination struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalCount  int64 `json:"totalCount"`
	Limit       int   `json:"limit"`
}

// SalesPage is one page of sale records for a zipcode.
type SalesPage struct {
	Records    []SaleRecord `json:"properties"`
	Pagination Pagination   `json:"pagination"`
}

// TotalPages returns ceil(totalCount/limit).
func TotalPages(totalCount int64, limit int) int {
	if limit <= 0 || totalCount <= 0 {
		return 0
	}
	return int((totalCount + int64(limit) - 1) / int64(limit))
}
