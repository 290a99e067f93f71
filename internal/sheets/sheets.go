// Package sheets exports listing rows to a Google Sheet owned by the
// requesting user, driving a per-user OAuth device flow when the user
// has not connected Google yet.
package sheets

import (
	"context"
	"fmt"

	"github.com/dakshaarvind-fetch/RealEstate/internal/listings"
)

// AuthRequiredError means the user must complete Google authorization
// before a sheet can be created. Instructions is a ready-to-send,
// human-readable message and must reach the user verbatim.
type AuthRequiredError struct {
	Instructions string
}

func (e *AuthRequiredError) Error() string { return e.Instructions }

// ConnectedMessage is the confirmation returned when a user already
// has valid Google credentials.
const ConnectedMessage = "Google is already connected for this user."

// Exporter writes listing rows into a shareable spreadsheet.
type Exporter interface {
	// Export creates the spreadsheet and returns its URL. Returns
	// *AuthRequiredError when the user must authorize first.
	Export(ctx context.Context, rows []listings.Listing, location, listingType, userID string) (string, error)

	// AuthStatus reports either ConnectedMessage or the authorization
	// instructions for the user.
	AuthStatus(ctx context.Context, userID string) (string, error)
}

// sheetColumns is the export column order. Keep in sync with rowValues.
var sheetColumns = []string{
	"Listing Link", "Price ($)", "Street Address", "City", "State",
	"Zip Code", "Beds", "Baths", "Size (sqft)", "Property Type", "Source",
}

func rowValues(row listings.Listing) []any {
	return []any{
		row.URL, row.Price, row.StreetAddress, row.City, row.State,
		row.ZipCode, row.Beds, row.Baths, row.Sqft, row.Style, row.Source,
	}
}

// SheetTitle builds the spreadsheet title for a search.
func SheetTitle(location, listingType, timestamp string) string {
	return fmt.Sprintf("Real Estate: %s (%s) - %s", location, listingType, timestamp)
}
