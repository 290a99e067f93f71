package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/dakshaarvind-fetch/RealEstate/internal/criteria"
	"github.com/dakshaarvind-fetch/RealEstate/internal/metrics"
	"github.com/dakshaarvind-fetch/RealEstate/internal/planner"
	"github.com/dakshaarvind-fetch/RealEstate/internal/session"
)

// DefaultMaxTurns caps the planner loop so a confused model cannot run
// away with the conversation.
const DefaultMaxTurns = 8

// Decider plans the next step of a run from the conversation so far.
type Decider interface {
	Decide(ctx context.Context, history []llms.MessageContent, tools []llms.Tool) (planner.Decision, error)
}

// IntentParser extracts structured search criteria from free text.
type IntentParser interface {
	Parse(ctx context.Context, userRequest string) (criteria.SearchCriteria, error)
}

// Engine drives a full search run: parse the request, loop the planner
// over the tools, and synthesize a summary when the planner doesn't.
type Engine struct {
	planner   Decider
	intent    IntentParser
	executor  *Executor
	sessions  session.Store
	collector *metrics.Collector
	logger    *slog.Logger
	maxTurns  int
}

// NewEngine assembles an engine around its collaborators. A nil
// collector disables metrics.
func NewEngine(p Decider, parser IntentParser, executor *Executor, sessions session.Store, collector *metrics.Collector, logger *slog.Logger, maxTurns int) *Engine {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Engine{
		planner:   p,
		intent:    parser,
		executor:  executor,
		sessions:  sessions,
		collector: collector,
		logger:    logger,
		maxTurns:  maxTurns,
	}
}

// Run starts a fresh search, discarding any saved session for the user.
func (e *Engine) Run(ctx context.Context, in Input) (Result, error) {
	e.logger.Info("new search", "user_id", in.UserID, "request", in.UserRequest)
	e.sessions.Clear(in.UserID)
	return e.start(ctx, in, nil)
}

// Resume continues the user's prior conversation when one exists, and
// otherwise behaves exactly like Run.
func (e *Engine) Resume(ctx context.Context, in Input) (Result, error) {
	prior, ok := e.sessions.Get(in.UserID)
	if !ok {
		e.logger.Info("no session to resume, starting fresh", "user_id", in.UserID)
		return e.Run(ctx, in)
	}
	e.logger.Info("resuming session", "user_id", in.UserID, "turns", len(prior))
	return e.start(ctx, in, prior)
}

func (e *Engine) start(ctx context.Context, in Input, prior []llms.MessageContent) (Result, error) {
	parseStart := time.Now()
	parsed, err := e.intent.Parse(ctx, in.UserRequest)
	e.collector.RecordTiming(metrics.OpIntentParse, time.Since(parseStart))
	if err != nil {
		return Result{}, fmt.Errorf("parsing search intent: %w", err)
	}
	e.logger.Info("parsed criteria",
		"location", parsed.Location,
		"listing_type", parsed.ListingType,
		"past_days", parsed.PastDays)

	// Only a fresh run needs a location up front. A follow-up like
	// "what about under 500k" inherits it from the saved conversation.
	if parsed.Location == "" && prior == nil {
		return Result{Summary: NoLocationMessage}, nil
	}

	return e.runLoop(ctx, parsed, in.UserID, prior)
}

func (e *Engine) runLoop(ctx context.Context, parsed criteria.SearchCriteria, userID string, prior []llms.MessageContent) (Result, error) {
	state := &RunState{Criteria: parsed, UserID: userID}
	tools := ToolSchemas()

	history := make([]llms.MessageContent, 0, len(prior)+2)
	history = append(history, prior...)
	history = append(history, llms.TextParts(llms.ChatMessageTypeHuman, criteriaPrompt(parsed)))

	var finalSummary string

loop:
	for turn := 0; turn < e.maxTurns; turn++ {
		// The system prompt is prepended per call, never stored, so
		// saved sessions stay free of it.
		withSystem := make([]llms.MessageContent, 0, len(history)+1)
		withSystem = append(withSystem, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
		withSystem = append(withSystem, history...)

		decideStart := time.Now()
		decision, err := e.planner.Decide(ctx, withSystem, tools)
		if err != nil {
			e.sessions.Replace(userID, history)
			return Result{}, fmt.Errorf("planner turn %d: %w", turn, err)
		}
		e.collector.RecordLLMUsage(metrics.OpPlannerDecide, time.Since(decideStart),
			decision.InputTokens, decision.OutputTokens)

		history = append(history, decision.AssistantTurn())

		switch decision.Kind {
		case planner.KindFinalAnswer:
			finalSummary = decision.Text
			break loop

		case planner.KindToolCalls:
			results := llms.MessageContent{Role: llms.ChatMessageTypeTool}
			for _, call := range decision.Calls {
				e.logger.Info("planner tool call", "tool", call.Name)
				outcome := e.executor.Execute(ctx, call, state)
				results.Parts = append(results.Parts, llms.ToolCallResponse{
					ToolCallID: call.ID,
					Name:       call.Name,
					Content:    outcome,
				})
			}
			history = append(history, results)

		default:
			e.logger.Warn("unexpected planner reply", "stop_reason", decision.StopReason)
			break loop
		}
	}

	e.sessions.Replace(userID, history)

	if finalSummary == "" {
		finalSummary = fallbackSummary(state, parsed.Location)
	}

	return Result{
		SheetURL:   state.SheetURL,
		Summary:    finalSummary,
		NumResults: state.NumResults,
		SessionID:  userID,
	}, nil
}

// fallbackSummary covers runs where the planner never produced a final
// text: turn cap exhausted or an anomalous reply.
func fallbackSummary(state *RunState, location string) string {
	switch {
	case state.SheetURL != "" && state.NumResults > 0:
		return fmt.Sprintf("Found %d listings in %s. Google Sheet: %s",
			state.NumResults, location, state.SheetURL)
	case state.LastError != "":
		return fmt.Sprintf("Found %d listings in %s, but sheet creation failed. %s",
			state.NumResults, location, state.LastError)
	default:
		return fmt.Sprintf("No listings found in %s matching your criteria.", location)
	}
}
