package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dakshaarvind-fetch/RealEstate/internal/criteria"
	"github.com/dakshaarvind-fetch/RealEstate/internal/listings"
	"github.com/dakshaarvind-fetch/RealEstate/internal/metrics"
	"github.com/dakshaarvind-fetch/RealEstate/internal/planner"
	"github.com/dakshaarvind-fetch/RealEstate/internal/ratelimit"
	"github.com/dakshaarvind-fetch/RealEstate/internal/sheets"
)

// Executor performs the side-effecting tool operations on behalf of
// the planner. Every execution yields a structured outcome string, and
// never an error: tool failures must be legible inputs for the
// planner's next turn, not control-flow signals.
type Executor struct {
	fetcher   listings.Fetcher
	exporter  sheets.Exporter
	cooldown  *ratelimit.Cooldown
	collector *metrics.Collector
	logger    *slog.Logger
}

// NewExecutor wires the executor's collaborators. A nil collector
// disables metrics.
func NewExecutor(fetcher listings.Fetcher, exporter sheets.Exporter, cooldown *ratelimit.Cooldown, collector *metrics.Collector, logger *slog.Logger) *Executor {
	return &Executor{
		fetcher:   fetcher,
		exporter:  exporter,
		cooldown:  cooldown,
		collector: collector,
		logger:    logger,
	}
}

// Execute runs one requested tool call against the run's state and
// returns the outcome as a JSON string.
func (x *Executor) Execute(ctx context.Context, call planner.ToolCall, state *RunState) string {
	switch call.Name {
	case ToolSearchListings:
		return x.searchListings(ctx, call.Arguments, state)
	case ToolCreateSheet:
		return x.createSheet(ctx, state)
	default:
		return encodeOutcome(map[string]any{"error": fmt.Sprintf("Unknown tool: %s", call.Name)})
	}
}

func (x *Executor) searchListings(ctx context.Context, rawArgs string, state *RunState) string {
	ok, wait := x.cooldown.TryAcquire()
	if !ok {
		return encodeOutcome(map[string]any{
			"status":  StatusRateLimited,
			"message": fmt.Sprintf("Please wait %.1fs before searching again.", wait.Seconds()),
		})
	}

	var overrides criteria.SearchCriteria
	if rawArgs != "" {
		// Planner-supplied arguments can be sloppy; undecodable
		// overrides degrade to the run's existing criteria.
		if err := json.Unmarshal([]byte(rawArgs), &overrides); err != nil {
			x.logger.Warn("undecodable search overrides", "error", err)
			overrides = criteria.SearchCriteria{}
		}
	}
	merged := state.Criteria.Merge(overrides)
	state.Criteria = merged

	x.logger.Info("tool search_listings", "location", merged.Location, "listing_type", merged.ListingType)

	rows, err := x.fetch(ctx, merged)
	if err != nil {
		x.logger.Error("search_listings failed", "error", err)
		state.Rows = nil
		state.NumResults = 0
		state.LastError = err.Error()
		return encodeOutcome(map[string]any{
			"status":      StatusError,
			"error":       err.Error(),
			"num_results": 0,
		})
	}

	state.Rows = rows
	state.NumResults = len(rows)
	state.LastError = ""

	if len(rows) == 0 {
		return encodeOutcome(map[string]any{
			"status":      StatusNoResults,
			"message":     fmt.Sprintf("No listings found in %s with the given filters.", merged.Location),
			"num_results": 0,
			"location":    merged.Location,
		})
	}

	outcome := map[string]any{
		"status":          StatusSuccess,
		"num_results":     len(rows),
		"location":        merged.Location,
		"listing_type":    merged.ListingType,
		"sample_listings": rows[:min(previewRows, len(rows))],
	}
	if stats, ok := listings.Stats(rows); ok {
		outcome["price_min"] = stats.Min
		outcome["price_max"] = stats.Max
		outcome["price_avg"] = stats.Mean
	}
	return encodeOutcome(outcome)
}

// fetch offloads the heavy listings call so a cancelled run doesn't
// keep the caller waiting on it.
func (x *Executor) fetch(ctx context.Context, c criteria.SearchCriteria) ([]listings.Listing, error) {
	type fetchResult struct {
		rows []listings.Listing
		err  error
	}

	done := make(chan fetchResult, 1)
	go func() {
		start := time.Now()
		rows, err := x.fetcher.Fetch(ctx, c)
		x.collector.RecordTiming(metrics.OpListingsFetch, time.Since(start))
		done <- fetchResult{rows: rows, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-done:
		return result.rows, result.err
	}
}

func (x *Executor) createSheet(ctx context.Context, state *RunState) string {
	if len(state.Rows) == 0 {
		return encodeOutcome(map[string]any{
			"status": StatusError,
			"error":  "No listings data - run search_listings first.",
		})
	}

	x.logger.Info("tool create_sheet", "rows", len(state.Rows), "user_id", state.UserID)

	start := time.Now()
	url, err := x.exporter.Export(ctx, state.Rows, state.Criteria.Location, string(state.Criteria.ListingType), state.UserID)
	x.collector.RecordTiming(metrics.OpSheetsExport, time.Since(start))
	if err != nil {
		state.LastError = err.Error()

		var authErr *sheets.AuthRequiredError
		if errors.As(err, &authErr) {
			x.logger.Info("create_sheet needs authorization", "user_id", state.UserID)
			return encodeOutcome(map[string]any{
				"status": StatusAuthRequired,
				"error":  authErr.Instructions,
			})
		}

		x.logger.Error("create_sheet failed", "error", err)
		return encodeOutcome(map[string]any{
			"status": StatusError,
			"error":  err.Error(),
		})
	}

	state.SheetURL = url
	state.LastError = ""
	return encodeOutcome(map[string]any{
		"status":    StatusSuccess,
		"sheet_url": url,
		"num_rows":  len(state.Rows),
	})
}

func encodeOutcome(outcome map[string]any) string {
	data, err := json.Marshal(outcome)
	if err != nil {
		// Marshal of map[string]any over plain values cannot fail in
		// practice; keep the planner fed regardless.
		return fmt.Sprintf(`{"status":%q,"error":%q}`, StatusError, err.Error())
	}
	return string(data)
}
