// Package listings fetches real-estate listings from the aggregator
// API and normalizes them into tabular rows.
package listings

import (
	"context"

	"github.com/dakshaarvind-fetch/RealEstate/internal/criteria"
)

// Listing is one normalized listing row. Field order matches the
// column order used in spreadsheet exports.
type Listing struct {
	URL           string  `json:"listing_link"`
	Price         int     `json:"price"`
	StreetAddress string  `json:"street_address"`
	City          string  `json:"city"`
	State         string  `json:"state"`
	ZipCode       string  `json:"zip_code"`
	Beds          int     `json:"beds"`
	Baths         float64 `json:"baths"`
	Sqft          int     `json:"sqft"`
	Style         string  `json:"property_type"`
	Source        string  `json:"source"`
}

// Fetcher retrieves listings matching the given criteria.
type Fetcher interface {
	Fetch(ctx context.Context, c criteria.SearchCriteria) ([]Listing, error)
}

// PriceStats summarizes prices over a result set.
type PriceStats struct {
	Min  int
	Max  int
	Mean int
}

// Stats computes min/max/mean price over rows with a known price.
// ok is false when no row carries a price.
func Stats(rows []Listing) (stats PriceStats, ok bool) {
	var sum, n int
	for _, row := range rows {
		if row.Price <= 0 {
			continue
		}
		if n == 0 || row.Price < stats.Min {
			stats.Min = row.Price
		}
		if row.Price > stats.Max {
			stats.Max = row.Price
		}
		sum += row.Price
		n++
	}
	if n == 0 {
		return PriceStats{}, false
	}
	stats.Mean = sum / n
	return stats, true
}
