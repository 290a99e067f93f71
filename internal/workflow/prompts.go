package workflow

import (
	"fmt"
	"strings"

	"github.com/dakshaarvind-fetch/RealEstate/internal/criteria"
)

// NoLocationMessage is returned without running the loop when intent
// parsing produced no usable location.
const NoLocationMessage = "Could not determine a location. Please include a city, state, or zip code."

const systemPrompt = `You are a real estate assistant agent.

Your job:
1. Call search_listings with the user's criteria
2. Review the results
3. Call create_sheet to save results to Google Sheets
4. Finish with a concise summary: number of results, price range, average price, and the sheet URL

Always complete both steps - search then sheet - before giving your final summary.
If search returns no results, explain why and suggest broader criteria.`

// criteriaPrompt renders the parsed criteria as the opening user turn
// of a run.
func criteriaPrompt(c criteria.SearchCriteria) string {
	var b strings.Builder
	b.WriteString("Find real estate listings and create a Google Sheet:\n")
	fmt.Fprintf(&b, "- Location     : %s\n", c.Location)
	fmt.Fprintf(&b, "- Listing type : %s\n", c.ListingType)
	fmt.Fprintf(&b, "- Price range  : $%s - %s\n", orAny(c.MinPrice), orAny(c.MaxPrice))
	fmt.Fprintf(&b, "- Beds         : %s+\n", orAny(c.MinBeds))
	fmt.Fprintf(&b, "- Property type: %s\n", orAnyList(c.PropertyTypes))
	b.WriteString("\nCall search_listings first, then create_sheet.")
	return b.String()
}

func orAny(v *int) string {
	if v == nil {
		return "any"
	}
	return fmt.Sprintf("%d", *v)
}

func orAnyList(vs []string) string {
	if len(vs) == 0 {
		return "any"
	}
	return strings.Join(vs, ", ")
}
