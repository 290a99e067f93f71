package workflow

import "github.com/tmc/langchaingo/llms"

// Tool names the planner may request.
const (
	ToolSearchListings = "search_listings"
	ToolCreateSheet    = "create_sheet"
)

// Outcome statuses returned to the planner.
const (
	StatusSuccess      = "success"
	StatusNoResults    = "no_results"
	StatusRateLimited  = "rate_limited"
	StatusError        = "error"
	StatusAuthRequired = "auth_required"
)

// previewRows bounds how many sample listings a search outcome embeds.
const previewRows = 5

// ToolSchemas returns the two-tool schema handed to the planner each
// turn.
func ToolSchemas() []llms.Tool {
	return []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name: ToolSearchListings,
				Description: "Search real estate listings from the aggregator (Zillow, Realtor.com, Redfin). " +
					"Call this first with the parsed search criteria.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"location":     map[string]any{"type": "string", "description": "City, State or zip code"},
						"listing_type": map[string]any{"type": "string", "enum": []string{"for_sale", "for_rent", "sold"}},
						"min_price":    map[string]any{"type": "integer", "description": "Minimum price in USD"},
						"max_price":    map[string]any{"type": "integer", "description": "Maximum price in USD"},
						"min_beds":     map[string]any{"type": "integer"},
						"max_beds":     map[string]any{"type": "integer"},
						"min_sqft":     map[string]any{"type": "integer"},
						"max_sqft":     map[string]any{"type": "integer"},
						"property_type": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string", "enum": []string{"single_family", "condo", "townhouse", "multi_family"}},
						},
						"past_days": map[string]any{"type": "integer", "description": "Listings from last N days (default 30)"},
					},
					"required": []string{"location", "listing_type"},
				},
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name: ToolCreateSheet,
				Description: "Create a Google Sheet with the listings found by search_listings. " +
					"Only call this after search_listings returns results.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
					"required":   []string{},
				},
			},
		},
	}
}
