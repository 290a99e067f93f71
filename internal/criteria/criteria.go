// Package criteria defines the structured search parameters extracted
// from a natural-language listing request.
package criteria

import "strings"

// ListingType is the kind of listing a search targets.
type ListingType string

const (
	ForSale ListingType = "for_sale"
	ForRent ListingType = "for_rent"
	Sold    ListingType = "sold"
)

// DefaultPastDays limits searches to listings from the last N days
// when the request doesn't say otherwise.
const DefaultPastDays = 30

// Valid reports whether t is one of the known listing types.
func (t ListingType) Valid() bool {
	switch t {
	case ForSale, ForRent, Sold:
		return true
	}
	return false
}

// SearchCriteria holds the parsed parameters of one listing search.
// Optional numeric bounds are nil when the user didn't mention them.
// Bounds are not validated against each other here; an inverted range
// simply matches nothing downstream.
type SearchCriteria struct {
	Location      string      `json:"location"`
	ListingType   ListingType `json:"listing_type"`
	MinPrice      *int        `json:"min_price,omitempty"`
	MaxPrice      *int        `json:"max_price,omitempty"`
	MinBeds       *int        `json:"min_beds,omitempty"`
	MaxBeds       *int        `json:"max_beds,omitempty"`
	MinSqft       *int        `json:"min_sqft,omitempty"`
	MaxSqft       *int        `json:"max_sqft,omitempty"`
	PropertyTypes []string    `json:"property_type,omitempty"`
	PastDays      int         `json:"past_days"`
}

// WithDefaults fills in the listing type and recency window when absent.
func (c SearchCriteria) WithDefaults() SearchCriteria {
	if !c.ListingType.Valid() {
		c.ListingType = ForSale
	}
	if c.PastDays <= 0 {
		c.PastDays = DefaultPastDays
	}
	return c
}

// Merge overlays o onto c: any field set in o wins, and an empty
// location in o falls back to c's location.
func (c SearchCriteria) Merge(o SearchCriteria) SearchCriteria {
	merged := o.WithDefaults()
	if strings.TrimSpace(merged.Location) == "" {
		merged.Location = c.Location
	}
	return merged
}

// propertyTypeAliases maps user-facing property type names onto the
// values the listings source understands.
var propertyTypeAliases = map[string]string{
	"single_family": "single_family",
	"condo":         "condos",
	"condos":        "condos",
	"townhouse":     "townhomes",
	"townhomes":     "townhomes",
	"multi_family":  "multi_family",
}

// NormalizePropertyTypes maps aliases onto canonical property type
// values, dropping unknown entries and preserving first-seen order.
// Returns nil when nothing usable remains.
func NormalizePropertyTypes(types []string) []string {
	if len(types) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(types))
	var out []string
	for _, t := range types {
		mapped, ok := propertyTypeAliases[strings.ToLower(strings.TrimSpace(t))]
		if !ok || seen[mapped] {
			continue
		}
		seen[mapped] = true
		out = append(out, mapped)
	}
	return out
}
