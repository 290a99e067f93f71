package listings

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"

	"github.com/dakshaarvind-fetch/RealEstate/internal/criteria"
)

// maxResults caps how many rows a single search returns.
const maxResults = 20

// SiteFetcher fetches listings from the aggregator's JSON search
// endpoint. One parent collector carries the shared limits; each fetch
// clones it for its own handlers.
type SiteFetcher struct {
	collector *colly.Collector
	baseURL   string
	logger    *slog.Logger
}

// NewSiteFetcher builds a fetcher against the given search endpoint.
func NewSiteFetcher(baseURL string, timeout time.Duration, logger *slog.Logger) (*SiteFetcher, error) {
	c := colly.NewCollector(colly.AllowURLRevisit())
	c.SetRequestTimeout(timeout)

	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		RandomDelay: time.Second,
	}); err != nil {
		return nil, fmt.Errorf("set collector limit rule: %w", err)
	}

	extensions.RandomUserAgent(c)
	extensions.Referer(c)

	return &SiteFetcher{
		collector: c,
		baseURL:   baseURL,
		logger:    logger,
	}, nil
}

func (f *SiteFetcher) buildURL(c criteria.SearchCriteria) (string, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse listings base url: %w", err)
	}

	q := u.Query()
	q.Set("location", c.Location)
	q.Set("listing_type", string(c.ListingType))
	q.Set("past_days", strconv.Itoa(c.PastDays))
	if c.MinPrice != nil {
		q.Set("price_min", strconv.Itoa(*c.MinPrice))
	}
	if c.MaxPrice != nil {
		q.Set("price_max", strconv.Itoa(*c.MaxPrice))
	}
	if c.MinBeds != nil {
		q.Set("beds_min", strconv.Itoa(*c.MinBeds))
	}
	if c.MaxBeds != nil {
		q.Set("beds_max", strconv.Itoa(*c.MaxBeds))
	}
	if c.MinSqft != nil {
		q.Set("sqft_min", strconv.Itoa(*c.MinSqft))
	}
	if c.MaxSqft != nil {
		q.Set("sqft_max", strconv.Itoa(*c.MaxSqft))
	}
	if types := criteria.NormalizePropertyTypes(c.PropertyTypes); types != nil {
		q.Set("property_type", strings.Join(types, ","))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch runs one search against the aggregator. The returned rows are
// post-filtered against the numeric bounds, sorted by price ascending
// and capped at 20.
func (f *SiteFetcher) Fetch(ctx context.Context, c criteria.SearchCriteria) ([]Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	targetURL, err := f.buildURL(c)
	if err != nil {
		return nil, err
	}

	// Inherits the parent's limits but gets its own handlers.
	collector := f.collector.Clone()

	var (
		rows        []Listing
		responseErr error
	)

	collector.OnResponse(func(r *colly.Response) {
		decoded, err := decodeSearchResponse(r.Body)
		if err != nil {
			responseErr = err
			return
		}
		rows = decoded
	})

	collector.OnError(func(r *colly.Response, err error) {
		responseErr = fmt.Errorf("listings request failed (status %d): %w", r.StatusCode, err)
	})

	f.logger.Info("fetching listings", "location", c.Location, "listing_type", c.ListingType)

	if err := collector.Visit(targetURL); err != nil {
		return nil, fmt.Errorf("visit listings endpoint: %w", err)
	}
	collector.Wait()

	if responseErr != nil {
		return nil, responseErr
	}

	rows = applyFilters(rows, c)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Price < rows[j].Price })
	if len(rows) > maxResults {
		rows = rows[:maxResults]
	}

	f.logger.Info("listings fetched", "location", c.Location, "rows", len(rows))
	return rows, nil
}

// applyFilters re-checks the numeric bounds locally. The upstream API
// honors them most of the time but not reliably for rentals.
func applyFilters(rows []Listing, c criteria.SearchCriteria) []Listing {
	out := rows[:0]
	for _, row := range rows {
		if c.MinPrice != nil && row.Price < *c.MinPrice {
			continue
		}
		if c.MaxPrice != nil && row.Price > *c.MaxPrice {
			continue
		}
		if c.MinBeds != nil && row.Beds < *c.MinBeds {
			continue
		}
		if c.MaxBeds != nil && row.Beds > *c.MaxBeds {
			continue
		}
		if c.MinSqft != nil && row.Sqft < *c.MinSqft {
			continue
		}
		if c.MaxSqft != nil && row.Sqft > *c.MaxSqft {
			continue
		}
		out = append(out, row)
	}
	return out
}
