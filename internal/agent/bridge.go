// Package agent bridges the message transport to the search workflow:
// it resolves user identity, dispatches request types, and guarantees
// exactly one reply per request.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dakshaarvind-fetch/RealEstate/internal/transport"
	"github.com/dakshaarvind-fetch/RealEstate/internal/workflow"
)

// emptyChatPrompt nudges chat clients that sent no usable text.
const emptyChatPrompt = "Please send a search query, e.g. '3 bed house for sale in Austin TX under $400k'"

// authCommands are the queries that short-circuit into an auth status
// reply instead of running a search.
var authCommands = map[string]struct{}{
	"/google-auth":   {},
	"google auth":    {},
	"connect google": {},
}

// Workflow is the search engine the bridge drives.
type Workflow interface {
	Run(ctx context.Context, in workflow.Input) (workflow.Result, error)
	Resume(ctx context.Context, in workflow.Input) (workflow.Result, error)
}

// AuthReporter reports a user's Google authorization state.
type AuthReporter interface {
	AuthStatus(ctx context.Context, userID string) (string, error)
}

// Bridge consumes envelopes from a transport and answers them through
// the workflow.
type Bridge struct {
	engine    Workflow
	auth      AuthReporter
	transport transport.Transport
	logger    *slog.Logger
}

// NewBridge wires the bridge's collaborators.
func NewBridge(engine Workflow, auth AuthReporter, t transport.Transport, logger *slog.Logger) *Bridge {
	return &Bridge{
		engine:    engine,
		auth:      auth,
		transport: t,
		logger:    logger,
	}
}

// Serve consumes envelopes until ctx is cancelled or the transport's
// stream closes. Each envelope is handled in its own goroutine so one
// slow run never blocks other users.
func (b *Bridge) Serve(ctx context.Context) error {
	envelopes, err := b.transport.Receive(ctx)
	if err != nil {
		return fmt.Errorf("starting transport: %w", err)
	}
	b.logger.Info("bridge serving")

	for env := range envelopes {
		go b.handle(ctx, env)
	}
	return ctx.Err()
}

func (b *Bridge) handle(ctx context.Context, env transport.Envelope) {
	b.logger.Info("envelope received", "id", env.ID, "type", env.Type, "sender", env.Sender)

	switch env.Type {
	case transport.TypeSearchRequest:
		b.handleSearch(ctx, env)
	case transport.TypeFollowUpRequest:
		b.handleFollowUp(ctx, env)
	case transport.TypeChatMessage:
		b.handleChat(ctx, env)
	case transport.TypeChatAck:
		// Peers acknowledging our chat replies. Nothing to do.
	default:
		b.logger.Warn("unknown envelope type", "type", env.Type)
	}

	if err := b.transport.Ack(ctx, env); err != nil {
		b.logger.Warn("ack failed", "envelope", env.ID, "error", err)
	}
}

func (b *Bridge) handleSearch(ctx context.Context, env transport.Envelope) {
	var req transport.SearchRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		b.logger.Warn("malformed SearchRequest", "error", err)
		b.reply(ctx, env.Sender, transport.SearchResponse{Error: "malformed request payload"})
		return
	}
	userID := resolveUserID(req.UserID, env.Sender)

	if IsAuthCommand(req.Query) {
		b.replyAuthStatus(ctx, env.Sender, userID)
		return
	}

	result, err := b.runSafely(ctx, b.engine.Run, workflow.Input{UserRequest: req.Query, UserID: userID})
	if err != nil {
		b.logger.Error("search run failed", "user_id", userID, "error", err)
		b.reply(ctx, env.Sender, transport.SearchResponse{Error: err.Error(), SessionID: userID})
		return
	}

	b.reply(ctx, env.Sender, searchResponse(result, userID))
}

func (b *Bridge) handleFollowUp(ctx context.Context, env transport.Envelope) {
	var req transport.FollowUpRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		b.logger.Warn("malformed FollowUpRequest", "error", err)
		b.reply(ctx, env.Sender, transport.SearchResponse{Error: "malformed request payload"})
		return
	}
	userID := resolveUserID(req.UserID, env.Sender)

	result, err := b.runSafely(ctx, b.engine.Resume, workflow.Input{UserRequest: req.Query, UserID: userID})
	if err != nil {
		b.logger.Error("follow-up run failed", "user_id", userID, "error", err)
		b.reply(ctx, env.Sender, transport.SearchResponse{Error: err.Error(), SessionID: userID})
		return
	}

	b.reply(ctx, env.Sender, searchResponse(result, userID))
}

func (b *Bridge) handleChat(ctx context.Context, env transport.Envelope) {
	var msg transport.ChatMessage
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		b.logger.Warn("malformed ChatMessage", "error", err)
		return
	}

	// Acknowledge before doing any work so the peer knows we have the
	// message even when the run takes a while.
	b.send(ctx, env.Sender, transport.TypeChatAck, transport.ChatAck{AcknowledgedMsgID: msg.MsgID})

	query := strings.TrimSpace(msg.Text)
	if query == "" {
		b.sendChat(ctx, env.Sender, emptyChatPrompt)
		return
	}

	if IsAuthCommand(query) {
		status, err := b.auth.AuthStatus(ctx, env.Sender)
		if err != nil {
			b.sendChat(ctx, env.Sender, fmt.Sprintf("Sorry, something went wrong: %v", err))
			return
		}
		b.sendChat(ctx, env.Sender, status)
		return
	}

	// Chat clients carry no explicit user id; the sender address keys
	// the session.
	result, err := b.runSafely(ctx, b.engine.Run, workflow.Input{UserRequest: query, UserID: env.Sender})
	if err != nil {
		b.logger.Error("chat run failed", "sender", env.Sender, "error", err)
		b.sendChat(ctx, env.Sender, fmt.Sprintf("Sorry, something went wrong: %v", err))
		return
	}

	var reply string
	switch {
	case result.SheetURL != "":
		reply = fmt.Sprintf("%s\n\nResults sheet: %s", result.Summary, result.SheetURL)
	case result.Summary != "":
		reply = result.Summary
	default:
		reply = "No results found."
	}
	b.sendChat(ctx, env.Sender, reply)
}

func (b *Bridge) replyAuthStatus(ctx context.Context, sender, userID string) {
	status, err := b.auth.AuthStatus(ctx, userID)
	if err != nil {
		b.reply(ctx, sender, transport.SearchResponse{Error: err.Error(), SessionID: userID})
		return
	}

	response := transport.SearchResponse{Summary: status, SessionID: userID}
	// Pending instructions double as the error field so structured
	// clients surface them; an already-connected status is not an
	// error.
	if !strings.HasPrefix(status, "Google is already connected") {
		response.Error = status
	}
	b.reply(ctx, sender, response)
}

// runSafely converts a panicking run into an ordinary error so the
// sender still gets its one reply.
func (b *Bridge) runSafely(ctx context.Context, run func(context.Context, workflow.Input) (workflow.Result, error), in workflow.Input) (result workflow.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workflow panic: %v", r)
		}
	}()
	return run(ctx, in)
}

func (b *Bridge) reply(ctx context.Context, to string, response transport.SearchResponse) {
	if err := b.transport.Send(ctx, to, transport.TypeSearchResponse, response); err != nil {
		b.logger.Error("sending response failed", "to", to, "error", err)
	}
}

func (b *Bridge) sendChat(ctx context.Context, to, text string) {
	b.send(ctx, to, transport.TypeChatMessage, transport.ChatMessage{
		MsgID: uuid.NewString(),
		Text:  text,
	})
}

func (b *Bridge) send(ctx context.Context, to, msgType string, payload any) {
	if err := b.transport.Send(ctx, to, msgType, payload); err != nil {
		b.logger.Error("send failed", "to", to, "type", msgType, "error", err)
	}
}

func searchResponse(result workflow.Result, userID string) transport.SearchResponse {
	sessionID := result.SessionID
	if sessionID == "" {
		sessionID = userID
	}

	response := transport.SearchResponse{
		SheetURL:   result.SheetURL,
		Summary:    result.Summary,
		NumResults: result.NumResults,
		SessionID:  sessionID,
	}
	// Authorization-required runs finish without a sheet; the summary
	// carries the instructions, mirrored into the error field so
	// structured callers notice.
	if result.SheetURL == "" && strings.Contains(result.Summary, "Google authorization required") {
		response.Error = result.Summary
	}
	return response
}

func resolveUserID(explicit, sender string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return v
	}
	return sender
}

// IsAuthCommand reports whether query is one of the aliases that asks
// for Google authorization status instead of a search.
func IsAuthCommand(query string) bool {
	_, ok := authCommands[strings.ToLower(strings.TrimSpace(query))]
	return ok
}
