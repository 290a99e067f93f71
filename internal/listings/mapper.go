package listings

import (
	"encoding/json"
	"fmt"
)

// apiResponse is the shape of the aggregator's search response.
type apiResponse struct {
	Listings []apiListing `json:"listings"`
}

// apiListing mirrors one raw listing. Numeric fields arrive as
// numbers or quoted strings depending on the source site, so they are
// decoded through json.Number.
type apiListing struct {
	PropertyURL   string      `json:"property_url"`
	ListPrice     json.Number `json:"list_price"`
	StreetAddress string      `json:"street_address"`
	City          string      `json:"city"`
	State         string      `json:"state"`
	ZipCode       string      `json:"zip_code"`
	Beds          json.Number `json:"beds"`
	FullBaths     json.Number `json:"full_baths"`
	Sqft          json.Number `json:"sqft"`
	Style         string      `json:"style"`
	SiteName      string      `json:"site_name"`
}

func decodeSearchResponse(body []byte) ([]Listing, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal listings response: %w", err)
	}

	rows := make([]Listing, 0, len(resp.Listings))
	for _, raw := range resp.Listings {
		rows = append(rows, Listing{
			URL:           raw.PropertyURL,
			Price:         numberToInt(raw.ListPrice),
			StreetAddress: raw.StreetAddress,
			City:          raw.City,
			State:         raw.State,
			ZipCode:       raw.ZipCode,
			Beds:          numberToInt(raw.Beds),
			Baths:         numberToFloat(raw.FullBaths),
			Sqft:          numberToInt(raw.Sqft),
			Style:         raw.Style,
			Source:        raw.SiteName,
		})
	}
	return rows, nil
}

func numberToInt(n json.Number) int {
	if n == "" {
		return 0
	}
	if v, err := n.Int64(); err == nil {
		return int(v)
	}
	// Some sites send integral fields as floats ("3.0").
	if v, err := n.Float64(); err == nil {
		return int(v)
	}
	return 0
}

func numberToFloat(n json.Number) float64 {
	if n == "" {
		return 0
	}
	if v, err := n.Float64(); err == nil {
		return v
	}
	return 0
}
