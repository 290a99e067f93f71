// Package intent extracts structured search criteria from free-form
// request text with a single-shot LLM call.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/dakshaarvind-fetch/RealEstate/internal/criteria"
)

// ParseError means the model's output was not valid structured data.
// An empty location is NOT a parse error; the orchestrator handles
// that case with a clarification message instead.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse search intent: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

const extractionPrompt = `Parse this real estate search request into structured JSON.

User request: %q

Return ONLY valid JSON with these fields (omit fields not mentioned):
{
  "location": "City, State OR zip code (required)",
  "listing_type": "for_sale | for_rent | sold  (default: for_sale)",
  "min_price": integer or null,
  "max_price": integer or null,
  "min_beds": integer or null,
  "max_beds": integer or null,
  "min_sqft": integer or null,
  "max_sqft": integer or null,
  "property_type": ["single_family","condo","townhouse","multi_family"] or null,
  "past_days": integer (default 30)
}

Examples:
- "3 bed house in Austin TX under 600k" -> {"location":"Austin, TX","listing_type":"for_sale","min_beds":3,"max_price":600000}
- "rent apartment NYC 2 bed" -> {"location":"New York, NY","listing_type":"for_rent","min_beds":2,"max_beds":2}

Return only the JSON, no explanation.`

// Parser turns request text into search criteria.
type Parser struct {
	llm llms.Model
}

// NewParser creates a Parser backed by the given model. The model is
// intended to be a fast, cheap one; extraction is a single turn.
func NewParser(llm llms.Model) *Parser {
	return &Parser{llm: llm}
}

// Parse extracts criteria from the request text. Absent fields take
// defaults: listing type for_sale, recency window 30 days.
func (p *Parser) Parse(ctx context.Context, userRequest string) (criteria.SearchCriteria, error) {
	prompt := fmt.Sprintf(extractionPrompt, userRequest)

	raw, err := llms.GenerateFromSinglePrompt(ctx, p.llm, prompt, llms.WithMaxTokens(400))
	if err != nil {
		return criteria.SearchCriteria{}, fmt.Errorf("intent extraction call: %w", err)
	}

	return decodeCriteria(raw)
}

var fenceRe = regexp.MustCompile("(?m)^```json\\s*|^```\\s*|\\s*```$")

// StripFences removes an optional markdown code fence wrapping.
func StripFences(raw string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(strings.TrimSpace(raw), ""))
}

func decodeCriteria(raw string) (criteria.SearchCriteria, error) {
	cleaned := StripFences(raw)

	var parsed criteria.SearchCriteria
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return criteria.SearchCriteria{}, &ParseError{Raw: raw, Err: err}
	}
	return parsed.WithDefaults(), nil
}
