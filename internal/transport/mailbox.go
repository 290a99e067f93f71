package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// AuthStrategy sets the Authorization header on mailbox requests.
// The relay has changed its required scheme before, so the strategy is
// pluggable instead of baked into the client.
type AuthStrategy interface {
	Authorize(req *http.Request) error
}

// BearerAuth authenticates with a static API key.
type BearerAuth struct {
	Token string
}

func (a BearerAuth) Authorize(req *http.Request) error {
	if a.Token == "" {
		return fmt.Errorf("bearer auth: empty token")
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
	return nil
}

// AgentAttestationAuth authenticates with a per-request signed
// attestation, the relay's legacy scheme.
type AgentAttestationAuth struct {
	// Sign produces a fresh attestation string for one request.
	Sign func() (string, error)
}

func (a AgentAttestationAuth) Authorize(req *http.Request) error {
	if a.Sign == nil {
		return fmt.Errorf("attestation auth: no signer configured")
	}
	attestation, err := a.Sign()
	if err != nil {
		return fmt.Errorf("attestation auth: %w", err)
	}
	req.Header.Set("Authorization", "Agent "+attestation)
	return nil
}

// MailboxClient talks to a store-and-forward relay: peers deposit
// envelopes into this agent's mailbox, the client polls them down and
// deletes each one once the bridge has processed it.
type MailboxClient struct {
	api          string // relay base URL, e.g. https://relay.example/v1/agents
	address      string // this agent's address on the relay
	auth         AuthStrategy
	httpClient   *http.Client
	pollInterval time.Duration
	streaming    bool
	logger       *slog.Logger

	missingMailboxWarned bool
}

// MailboxOptions configures a MailboxClient.
type MailboxOptions struct {
	API          string
	Address      string
	Auth         AuthStrategy
	PollInterval time.Duration
	// Streaming subscribes over a websocket instead of HTTP polling.
	Streaming bool
}

// NewMailboxClient builds a client for one agent address.
func NewMailboxClient(opts MailboxOptions, logger *slog.Logger) *MailboxClient {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &MailboxClient{
		api:          strings.TrimRight(opts.API, "/"),
		address:      opts.Address,
		auth:         opts.Auth,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: interval,
		streaming:    opts.Streaming,
		logger:       logger,
	}
}

// Receive starts mailbox delivery. Polling failures are logged and
// retried on the next interval; the channel closes only on ctx
// cancellation.
func (m *MailboxClient) Receive(ctx context.Context) (<-chan Envelope, error) {
	if m.address == "" {
		return nil, fmt.Errorf("mailbox: agent address not configured")
	}

	out := make(chan Envelope)
	if m.streaming {
		go m.streamLoop(ctx, out)
	} else {
		go m.pollLoop(ctx, out)
	}
	return out, nil
}

func (m *MailboxClient) pollLoop(ctx context.Context, out chan<- Envelope) {
	defer close(out)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		envelopes, err := m.fetchMailbox(ctx)
		if err != nil {
			m.logger.Warn("mailbox poll failed", "error", err)
		}
		for _, env := range envelopes {
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *MailboxClient) fetchMailbox(ctx context.Context) ([]Envelope, error) {
	url := fmt.Sprintf("%s/%s/mailbox", m.api, m.address)
	resp, err := m.doRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var envelopes []Envelope
		if err := json.NewDecoder(resp.Body).Decode(&envelopes); err != nil {
			return nil, fmt.Errorf("decoding mailbox contents: %w", err)
		}
		return envelopes, nil

	case resp.StatusCode == http.StatusNotFound:
		// Not registered yet. Warn once, keep polling: registration
		// can happen while we run.
		if !m.missingMailboxWarned {
			m.logger.Warn("agent mailbox not found, register the agent with the relay first",
				"address", m.address)
			m.missingMailboxWarned = true
		}
		return nil, nil

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("mailbox fetch returned %d: %s", resp.StatusCode, body)
	}
}

// streamLoop subscribes over a websocket, reconnecting with the poll
// interval as backoff when the connection drops.
func (m *MailboxClient) streamLoop(ctx context.Context, out chan<- Envelope) {
	defer close(out)

	for {
		if err := m.streamOnce(ctx, out); err != nil && ctx.Err() == nil {
			m.logger.Warn("mailbox stream dropped, reconnecting", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.pollInterval):
		}
	}
}

func (m *MailboxClient) streamOnce(ctx context.Context, out chan<- Envelope) error {
	url := fmt.Sprintf("%s/%s/mailbox/stream", wsBase(m.api), m.address)

	header := http.Header{}
	if m.auth != nil {
		// Websocket dial takes headers, not a request, so authorize a
		// throwaway request and copy the result over.
		req, err := http.NewRequest(http.MethodGet, m.api, nil)
		if err != nil {
			return err
		}
		if err := m.auth.Authorize(req); err != nil {
			return err
		}
		header = req.Header
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("dialing mailbox stream: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading mailbox stream: %w", err)
		}
		select {
		case out <- env:
		case <-ctx.Done():
			return nil
		}
	}
}

func wsBase(api string) string {
	switch {
	case strings.HasPrefix(api, "https://"):
		return "wss://" + strings.TrimPrefix(api, "https://")
	case strings.HasPrefix(api, "http://"):
		return "ws://" + strings.TrimPrefix(api, "http://")
	default:
		return api
	}
}

// Send deposits a typed payload into the recipient's mailbox.
func (m *MailboxClient) Send(ctx context.Context, to, msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", msgType, err)
	}
	outbound := Envelope{
		Sender:  m.address,
		Type:    msgType,
		Payload: raw,
	}
	body, err := json.Marshal(outbound)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}

	url := fmt.Sprintf("%s/%s/mailbox", m.api, to)
	resp, err := m.doRequest(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sending %s to %s returned %d: %s", msgType, to, resp.StatusCode, text)
	}
	return nil
}

// Ack deletes a processed envelope so the relay stops redelivering it.
func (m *MailboxClient) Ack(ctx context.Context, env Envelope) error {
	url := fmt.Sprintf("%s/%s/mailbox/%s", m.api, m.address, env.ID)
	resp, err := m.doRequest(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("deleting envelope %s returned %d: %s", env.ID, resp.StatusCode, text)
	}
	return nil
}

func (m *MailboxClient) doRequest(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if m.auth != nil {
		if err := m.auth.Authorize(req); err != nil {
			return nil, err
		}
	}
	return m.httpClient.Do(req)
}
