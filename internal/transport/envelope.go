// Package transport carries requests and replies between this agent
// and its peers. Implementations expose an asynchronous at-least-once
// channel: envelopes are redelivered until acknowledged, so handlers
// must tolerate seeing the same message twice.
package transport

import (
	"context"
	"encoding/json"
)

// Message type names on the wire.
const (
	TypeSearchRequest   = "SearchRequest"
	TypeFollowUpRequest = "FollowUpRequest"
	TypeSearchResponse  = "SearchResponse"
	TypeChatMessage     = "ChatMessage"
	TypeChatAck         = "ChatAcknowledgement"
)

// Envelope is one received message plus the metadata needed to reply
// to and acknowledge it.
type Envelope struct {
	ID      string          `json:"id"`
	Sender  string          `json:"sender"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SearchRequest starts a fresh search. UserID is optional; the bridge
// falls back to the sender address.
type SearchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id,omitempty"`
}

// FollowUpRequest continues a prior search session.
type FollowUpRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id,omitempty"`
}

// SearchResponse is the single reply every search or follow-up yields.
type SearchResponse struct {
	SheetURL   string `json:"sheet_url,omitempty"`
	Summary    string `json:"summary,omitempty"`
	NumResults int    `json:"num_results,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ChatMessage is a free-text message from a chat-protocol client.
type ChatMessage struct {
	MsgID string `json:"msg_id"`
	Text  string `json:"text"`
}

// ChatAck confirms receipt of a chat message before the substantive
// reply is sent.
type ChatAck struct {
	AcknowledgedMsgID string `json:"acknowledged_msg_id"`
}

// Transport is an asynchronous request/response channel to peers.
type Transport interface {
	// Receive starts delivery and returns the envelope stream. The
	// channel closes when ctx is cancelled or delivery fails
	// permanently.
	Receive(ctx context.Context) (<-chan Envelope, error)

	// Send delivers a typed payload to a peer.
	Send(ctx context.Context, to, msgType string, payload any) error

	// Ack marks an envelope as processed so it is not redelivered.
	Ack(ctx context.Context, env Envelope) error
}
