package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/dakshaarvind-fetch/RealEstate/internal/criteria"
	"github.com/dakshaarvind-fetch/RealEstate/internal/listings"
	"github.com/dakshaarvind-fetch/RealEstate/internal/planner"
	"github.com/dakshaarvind-fetch/RealEstate/internal/ratelimit"
	"github.com/dakshaarvind-fetch/RealEstate/internal/session"
	"github.com/dakshaarvind-fetch/RealEstate/internal/sheets"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scriptedDecider struct {
	decisions []planner.Decision
	histories [][]llms.MessageContent
	err       error
}

func (d *scriptedDecider) Decide(_ context.Context, history []llms.MessageContent, _ []llms.Tool) (planner.Decision, error) {
	d.histories = append(d.histories, history)
	if d.err != nil {
		return planner.Decision{}, d.err
	}
	if len(d.decisions) == 0 {
		return planner.Decision{Kind: planner.KindOther, StopReason: "exhausted"}, nil
	}
	next := d.decisions[0]
	d.decisions = d.decisions[1:]
	return next, nil
}

type fixedParser struct {
	parsed criteria.SearchCriteria
	err    error
}

func (p *fixedParser) Parse(context.Context, string) (criteria.SearchCriteria, error) {
	return p.parsed, p.err
}

type stubFetcher struct {
	rows     []listings.Listing
	err      error
	calls    int
	lastSeen criteria.SearchCriteria
}

func (f *stubFetcher) Fetch(_ context.Context, c criteria.SearchCriteria) ([]listings.Listing, error) {
	f.calls++
	f.lastSeen = c
	return f.rows, f.err
}

type stubExporter struct {
	url   string
	err   error
	calls int
}

func (e *stubExporter) Export(_ context.Context, _ []listings.Listing, _, _, _ string) (string, error) {
	e.calls++
	return e.url, e.err
}

func (e *stubExporter) AuthStatus(context.Context, string) (string, error) {
	return sheets.ConnectedMessage, nil
}

func sampleRows() []listings.Listing {
	return []listings.Listing{
		{URL: "https://example.com/a", Price: 450000, City: "Austin", Beds: 3},
		{URL: "https://example.com/b", Price: 520000, City: "Austin", Beds: 4},
	}
}

func austinCriteria() criteria.SearchCriteria {
	return criteria.SearchCriteria{
		Location:    "Austin, TX",
		ListingType: criteria.ForSale,
		PastDays:    30,
	}
}

func searchCall(args string) planner.Decision {
	return planner.Decision{
		Kind:  planner.KindToolCalls,
		Calls: []planner.ToolCall{{ID: "t1", Name: ToolSearchListings, Arguments: args}},
	}
}

func sheetCall() planner.Decision {
	return planner.Decision{
		Kind:  planner.KindToolCalls,
		Calls: []planner.ToolCall{{ID: "t2", Name: ToolCreateSheet, Arguments: "{}"}},
	}
}

func finalAnswer(text string) planner.Decision {
	return planner.Decision{Kind: planner.KindFinalAnswer, Text: text}
}

func newTestEngine(t *testing.T, decider *scriptedDecider, parser *fixedParser, fetcher *stubFetcher, exporter *stubExporter) (*Engine, session.Store) {
	t.Helper()
	sessions := session.NewLRUStore(16, time.Minute)
	executor := NewExecutor(fetcher, exporter, ratelimit.NewCooldown(time.Nanosecond), nil, testLogger())
	return NewEngine(decider, parser, executor, sessions, nil, testLogger(), DefaultMaxTurns), sessions
}

func TestRunHappyPath(t *testing.T) {
	decider := &scriptedDecider{decisions: []planner.Decision{
		searchCall(`{}`),
		sheetCall(),
		finalAnswer("Found 2 listings. Sheet: https://sheets.example/1"),
	}}
	fetcher := &stubFetcher{rows: sampleRows()}
	exporter := &stubExporter{url: "https://sheets.example/1"}
	engine, sessions := newTestEngine(t, decider, &fixedParser{parsed: austinCriteria()}, fetcher, exporter)

	result, err := engine.Run(context.Background(), Input{UserRequest: "homes in austin", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "Found 2 listings. Sheet: https://sheets.example/1", result.Summary)
	assert.Equal(t, "https://sheets.example/1", result.SheetURL)
	assert.Equal(t, 2, result.NumResults)
	assert.Equal(t, "u1", result.SessionID)
	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, 1, exporter.calls)

	saved, ok := sessions.Get("u1")
	require.True(t, ok)
	// criteria turn, 2 assistant turns + 2 tool-result turns, final answer
	assert.Len(t, saved, 6)
	for _, turn := range saved {
		assert.NotEqual(t, llms.ChatMessageTypeSystem, turn.Role)
	}
}

func TestRunPrependsSystemPromptPerCall(t *testing.T) {
	decider := &scriptedDecider{decisions: []planner.Decision{finalAnswer("done")}}
	engine, _ := newTestEngine(t, decider, &fixedParser{parsed: austinCriteria()}, &stubFetcher{}, &stubExporter{})

	_, err := engine.Run(context.Background(), Input{UserRequest: "x", UserID: "u1"})
	require.NoError(t, err)

	require.Len(t, decider.histories, 1)
	seen := decider.histories[0]
	require.Len(t, seen, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, seen[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, seen[1].Role)
}

func TestRunWithoutLocationShortCircuits(t *testing.T) {
	decider := &scriptedDecider{}
	engine, _ := newTestEngine(t, decider, &fixedParser{parsed: criteria.SearchCriteria{ListingType: criteria.ForSale}}, &stubFetcher{}, &stubExporter{})

	result, err := engine.Run(context.Background(), Input{UserRequest: "show me houses", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, NoLocationMessage, result.Summary)
	assert.Zero(t, result.NumResults)
	assert.Empty(t, result.SheetURL)
	assert.Empty(t, decider.histories, "planner must not run without a location")
}

func TestRunParseErrorPropagates(t *testing.T) {
	engine, _ := newTestEngine(t, &scriptedDecider{}, &fixedParser{err: errors.New("model offline")}, &stubFetcher{}, &stubExporter{})

	_, err := engine.Run(context.Background(), Input{UserRequest: "x", UserID: "u1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing search intent")
}

func TestRunClearsPriorSession(t *testing.T) {
	decider := &scriptedDecider{decisions: []planner.Decision{finalAnswer("fresh")}}
	engine, sessions := newTestEngine(t, decider, &fixedParser{parsed: austinCriteria()}, &stubFetcher{}, &stubExporter{})

	sessions.Replace("u1", []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "old conversation"),
	})

	_, err := engine.Run(context.Background(), Input{UserRequest: "x", UserID: "u1"})
	require.NoError(t, err)

	// system prompt + criteria turn only: the old turn is gone
	require.Len(t, decider.histories, 1)
	assert.Len(t, decider.histories[0], 2)
}

func TestResumeSeedsPriorHistory(t *testing.T) {
	decider := &scriptedDecider{decisions: []planner.Decision{finalAnswer("still here")}}
	engine, sessions := newTestEngine(t, decider, &fixedParser{parsed: austinCriteria()}, &stubFetcher{}, &stubExporter{})

	sessions.Replace("u1", []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "earlier request"),
		llms.TextParts(llms.ChatMessageTypeAI, "earlier answer"),
	})

	result, err := engine.Resume(context.Background(), Input{UserRequest: "what about 4 beds", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "still here", result.Summary)

	require.Len(t, decider.histories, 1)
	// system + 2 prior turns + new criteria turn
	assert.Len(t, decider.histories[0], 4)
}

func TestResumeWithoutLocationStillRuns(t *testing.T) {
	decider := &scriptedDecider{decisions: []planner.Decision{finalAnswer("narrowed to under 500k")}}
	maxPrice := 500000
	parser := &fixedParser{parsed: criteria.SearchCriteria{ListingType: criteria.ForSale, MaxPrice: &maxPrice}}
	engine, sessions := newTestEngine(t, decider, parser, &stubFetcher{}, &stubExporter{})

	sessions.Replace("u1", []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "homes in austin"),
		llms.TextParts(llms.ChatMessageTypeAI, "Found 2 listings."),
	})

	result, err := engine.Resume(context.Background(), Input{UserRequest: "what about under 500k", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "narrowed to under 500k", result.Summary)
	require.Len(t, decider.histories, 1, "follow-up must reach the planner even without a location")
}

func TestResumeWithoutSessionStartsFresh(t *testing.T) {
	decider := &scriptedDecider{decisions: []planner.Decision{finalAnswer("fresh run")}}
	engine, _ := newTestEngine(t, decider, &fixedParser{parsed: austinCriteria()}, &stubFetcher{}, &stubExporter{})

	result, err := engine.Resume(context.Background(), Input{UserRequest: "x", UserID: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, "fresh run", result.Summary)

	require.Len(t, decider.histories, 1)
	assert.Len(t, decider.histories[0], 2)
}

func TestRunBatchesToolResultsInOneTurn(t *testing.T) {
	twoCalls := planner.Decision{
		Kind: planner.KindToolCalls,
		Calls: []planner.ToolCall{
			{ID: "a", Name: ToolSearchListings, Arguments: "{}"},
			{ID: "b", Name: ToolCreateSheet, Arguments: "{}"},
		},
	}
	decider := &scriptedDecider{decisions: []planner.Decision{twoCalls, finalAnswer("ok")}}
	engine, sessions := newTestEngine(t, decider, &fixedParser{parsed: austinCriteria()}, &stubFetcher{rows: sampleRows()}, &stubExporter{url: "https://sheets.example/1"})

	_, err := engine.Run(context.Background(), Input{UserRequest: "x", UserID: "u1"})
	require.NoError(t, err)

	saved, ok := sessions.Get("u1")
	require.True(t, ok)
	var toolTurns int
	for _, turn := range saved {
		if turn.Role == llms.ChatMessageTypeTool {
			toolTurns++
			assert.Len(t, turn.Parts, 2)
		}
	}
	assert.Equal(t, 1, toolTurns)
}

func TestRunTurnCapWithFallbackSheetSummary(t *testing.T) {
	// The planner never gives a final answer, but a sheet was created
	// along the way, so the fallback names it.
	decisions := []planner.Decision{searchCall("{}"), sheetCall()}
	for i := 0; i < DefaultMaxTurns; i++ {
		decisions = append(decisions, searchCall("{}"))
	}
	decider := &scriptedDecider{decisions: decisions}
	engine, _ := newTestEngine(t, decider, &fixedParser{parsed: austinCriteria()}, &stubFetcher{rows: sampleRows()}, &stubExporter{url: "https://sheets.example/9"})

	result, err := engine.Run(context.Background(), Input{UserRequest: "x", UserID: "u1"})
	require.NoError(t, err)

	assert.Len(t, decider.histories, DefaultMaxTurns)
	assert.Equal(t, "Found 2 listings in Austin, TX. Google Sheet: https://sheets.example/9", result.Summary)
	assert.Equal(t, 2, result.NumResults)
}

func TestRunFallbackAfterSheetFailure(t *testing.T) {
	decider := &scriptedDecider{decisions: []planner.Decision{
		searchCall("{}"),
		sheetCall(),
		{Kind: planner.KindOther, StopReason: "max_tokens"},
	}}
	engine, _ := newTestEngine(t, decider, &fixedParser{parsed: austinCriteria()}, &stubFetcher{rows: sampleRows()}, &stubExporter{err: errors.New("sheets API unavailable")})

	result, err := engine.Run(context.Background(), Input{UserRequest: "x", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "Found 2 listings in Austin, TX, but sheet creation failed. sheets API unavailable", result.Summary)
	assert.Empty(t, result.SheetURL)
}

func TestRunFallbackNoResults(t *testing.T) {
	decider := &scriptedDecider{decisions: []planner.Decision{
		searchCall("{}"),
		{Kind: planner.KindOther, StopReason: "max_tokens"},
	}}
	engine, _ := newTestEngine(t, decider, &fixedParser{parsed: austinCriteria()}, &stubFetcher{}, &stubExporter{})

	result, err := engine.Run(context.Background(), Input{UserRequest: "x", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "No listings found in Austin, TX matching your criteria.", result.Summary)
}

func TestRunPersistsSessionEvenWithoutFinalAnswer(t *testing.T) {
	decider := &scriptedDecider{decisions: []planner.Decision{
		{Kind: planner.KindOther, StopReason: "max_tokens"},
	}}
	engine, sessions := newTestEngine(t, decider, &fixedParser{parsed: austinCriteria()}, &stubFetcher{}, &stubExporter{})

	_, err := engine.Run(context.Background(), Input{UserRequest: "x", UserID: "u1"})
	require.NoError(t, err)

	saved, ok := sessions.Get("u1")
	require.True(t, ok)
	assert.Len(t, saved, 2, "criteria turn plus the anomalous assistant turn")
}

func decodeOutcome(t *testing.T, raw string) map[string]any {
	t.Helper()
	var outcome map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &outcome))
	return outcome
}

func TestExecuteSearchSuccess(t *testing.T) {
	fetcher := &stubFetcher{rows: sampleRows()}
	executor := NewExecutor(fetcher, &stubExporter{}, ratelimit.NewCooldown(time.Nanosecond), nil, testLogger())
	state := &RunState{Criteria: austinCriteria(), UserID: "u1"}

	raw := executor.Execute(context.Background(), planner.ToolCall{Name: ToolSearchListings, Arguments: "{}"}, state)
	outcome := decodeOutcome(t, raw)

	assert.Equal(t, StatusSuccess, outcome["status"])
	assert.EqualValues(t, 2, outcome["num_results"])
	assert.Equal(t, "Austin, TX", outcome["location"])
	assert.EqualValues(t, 450000, outcome["price_min"])
	assert.EqualValues(t, 520000, outcome["price_max"])
	assert.Len(t, outcome["sample_listings"], 2)
	assert.Equal(t, 2, state.NumResults)
	assert.Len(t, state.Rows, 2)
}

func TestExecuteSearchMergesOverrides(t *testing.T) {
	fetcher := &stubFetcher{rows: sampleRows()}
	executor := NewExecutor(fetcher, &stubExporter{}, ratelimit.NewCooldown(time.Nanosecond), nil, testLogger())
	state := &RunState{Criteria: austinCriteria(), UserID: "u1"}

	executor.Execute(context.Background(), planner.ToolCall{
		Name:      ToolSearchListings,
		Arguments: `{"min_beds": 4, "max_price": 600000}`,
	}, state)

	require.NotNil(t, fetcher.lastSeen.MinBeds)
	assert.Equal(t, 4, *fetcher.lastSeen.MinBeds)
	require.NotNil(t, fetcher.lastSeen.MaxPrice)
	assert.Equal(t, 600000, *fetcher.lastSeen.MaxPrice)
	assert.Equal(t, "Austin, TX", fetcher.lastSeen.Location, "location survives an override without one")
	assert.Equal(t, fetcher.lastSeen, state.Criteria, "merged criteria stick for later calls")
}

func TestExecuteSearchNoResults(t *testing.T) {
	executor := NewExecutor(&stubFetcher{}, &stubExporter{}, ratelimit.NewCooldown(time.Nanosecond), nil, testLogger())
	state := &RunState{Criteria: austinCriteria(), UserID: "u1"}

	raw := executor.Execute(context.Background(), planner.ToolCall{Name: ToolSearchListings, Arguments: "{}"}, state)
	outcome := decodeOutcome(t, raw)

	assert.Equal(t, StatusNoResults, outcome["status"])
	assert.EqualValues(t, 0, outcome["num_results"])
	assert.Contains(t, outcome["message"], "Austin, TX")
}

func TestExecuteSearchFetchError(t *testing.T) {
	executor := NewExecutor(&stubFetcher{err: errors.New("upstream 503")}, &stubExporter{}, ratelimit.NewCooldown(time.Nanosecond), nil, testLogger())
	state := &RunState{Criteria: austinCriteria(), UserID: "u1", Rows: sampleRows(), NumResults: 2}

	raw := executor.Execute(context.Background(), planner.ToolCall{Name: ToolSearchListings, Arguments: "{}"}, state)
	outcome := decodeOutcome(t, raw)

	assert.Equal(t, StatusError, outcome["status"])
	assert.Equal(t, "upstream 503", outcome["error"])
	assert.Empty(t, state.Rows, "stale rows are dropped on a failed search")
	assert.Zero(t, state.NumResults)
	assert.Equal(t, "upstream 503", state.LastError)
}

func TestExecuteSearchRateLimited(t *testing.T) {
	cooldown := ratelimit.NewCooldown(time.Hour)
	ok, _ := cooldown.TryAcquire()
	require.True(t, ok)

	fetcher := &stubFetcher{rows: sampleRows()}
	executor := NewExecutor(fetcher, &stubExporter{}, cooldown, nil, testLogger())
	state := &RunState{Criteria: austinCriteria(), UserID: "u1"}

	raw := executor.Execute(context.Background(), planner.ToolCall{Name: ToolSearchListings, Arguments: "{}"}, state)
	outcome := decodeOutcome(t, raw)

	assert.Equal(t, StatusRateLimited, outcome["status"])
	assert.Regexp(t, `^Please wait \d+(\.\d)?s before searching again\.$`, outcome["message"])
	assert.Zero(t, fetcher.calls, "a denied slot must not hit the fetcher")
}

func TestExecuteSheetWithoutRows(t *testing.T) {
	exporter := &stubExporter{url: "https://sheets.example/1"}
	executor := NewExecutor(&stubFetcher{}, exporter, ratelimit.NewCooldown(time.Nanosecond), nil, testLogger())
	state := &RunState{Criteria: austinCriteria(), UserID: "u1"}

	raw := executor.Execute(context.Background(), planner.ToolCall{Name: ToolCreateSheet, Arguments: "{}"}, state)
	outcome := decodeOutcome(t, raw)

	assert.Equal(t, StatusError, outcome["status"])
	assert.Equal(t, "No listings data - run search_listings first.", outcome["error"])
	assert.Zero(t, exporter.calls)
}

func TestExecuteSheetSuccess(t *testing.T) {
	exporter := &stubExporter{url: "https://sheets.example/1"}
	executor := NewExecutor(&stubFetcher{}, exporter, ratelimit.NewCooldown(time.Nanosecond), nil, testLogger())
	state := &RunState{Criteria: austinCriteria(), UserID: "u1", Rows: sampleRows(), NumResults: 2, LastError: "old failure"}

	raw := executor.Execute(context.Background(), planner.ToolCall{Name: ToolCreateSheet, Arguments: "{}"}, state)
	outcome := decodeOutcome(t, raw)

	assert.Equal(t, StatusSuccess, outcome["status"])
	assert.Equal(t, "https://sheets.example/1", outcome["sheet_url"])
	assert.EqualValues(t, 2, outcome["num_rows"])
	assert.Equal(t, "https://sheets.example/1", state.SheetURL)
	assert.Empty(t, state.LastError)
}

func TestExecuteSheetAuthRequired(t *testing.T) {
	authErr := &sheets.AuthRequiredError{Instructions: "visit https://google.com/device and enter ABCD-EFGH"}
	executor := NewExecutor(&stubFetcher{}, &stubExporter{err: authErr}, ratelimit.NewCooldown(time.Nanosecond), nil, testLogger())
	state := &RunState{Criteria: austinCriteria(), UserID: "u1", Rows: sampleRows(), NumResults: 2}

	raw := executor.Execute(context.Background(), planner.ToolCall{Name: ToolCreateSheet, Arguments: "{}"}, state)
	outcome := decodeOutcome(t, raw)

	assert.Equal(t, StatusAuthRequired, outcome["status"])
	assert.Equal(t, authErr.Instructions, outcome["error"])
	assert.Empty(t, state.SheetURL)
}

func TestExecuteUnknownTool(t *testing.T) {
	executor := NewExecutor(&stubFetcher{}, &stubExporter{}, ratelimit.NewCooldown(time.Nanosecond), nil, testLogger())

	raw := executor.Execute(context.Background(), planner.ToolCall{Name: "drop_tables"}, &RunState{})
	outcome := decodeOutcome(t, raw)

	assert.Equal(t, "Unknown tool: drop_tables", outcome["error"])
}
