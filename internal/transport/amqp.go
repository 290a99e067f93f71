package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPTransport serves requests from a broker queue. Replies go to the
// queue the requester names in reply_to, so every consumer runs its
// own reply queue.
type AMQPTransport struct {
	url     string
	queue   string
	logger  *slog.Logger
	conn    *amqp.Connection
	channel *amqp.Channel

	mu      sync.Mutex
	pending map[string]amqp.Delivery // unacked deliveries by envelope id
}

// NewAMQPTransport prepares a transport for the given broker URL and
// request queue. The connection opens lazily in Receive.
func NewAMQPTransport(url, queue string, logger *slog.Logger) *AMQPTransport {
	return &AMQPTransport{
		url:     url,
		queue:   queue,
		logger:  logger,
		pending: make(map[string]amqp.Delivery),
	}
}

// Receive connects to the broker and consumes the request queue with
// manual acknowledgement. Unacked envelopes are redelivered by the
// broker after the channel closes.
func (t *AMQPTransport) Receive(ctx context.Context) (<-chan Envelope, error) {
	conn, err := amqp.Dial(t.url)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	t.conn = conn
	t.channel = channel

	if _, err := channel.QueueDeclare(t.queue, true, false, false, false, nil); err != nil {
		t.Close()
		return nil, fmt.Errorf("declaring queue %s: %w", t.queue, err)
	}

	deliveries, err := channel.Consume(t.queue, "", false, false, false, false, nil)
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("consuming queue %s: %w", t.queue, err)
	}

	out := make(chan Envelope)
	go func() {
		defer close(out)
		defer t.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					t.logger.Warn("broker delivery channel closed")
					return
				}
				env, err := t.envelopeFrom(d)
				if err != nil {
					t.logger.Warn("discarding malformed delivery", "error", err)
					// Reject without requeue: the message will never
					// become parseable.
					if nackErr := d.Nack(false, false); nackErr != nil {
						t.logger.Warn("nack failed", "error", nackErr)
					}
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (t *AMQPTransport) envelopeFrom(d amqp.Delivery) (Envelope, error) {
	if d.Type == "" {
		return Envelope{}, fmt.Errorf("delivery missing type")
	}
	if d.ReplyTo == "" {
		return Envelope{}, fmt.Errorf("delivery missing reply_to")
	}

	id := d.MessageId
	if id == "" {
		id = uuid.NewString()
	}
	env := Envelope{
		ID:      id,
		Sender:  d.ReplyTo,
		Type:    d.Type,
		Payload: d.Body,
	}

	t.mu.Lock()
	t.pending[id] = d
	t.mu.Unlock()
	return env, nil
}

// Send publishes a typed payload to the recipient's reply queue.
func (t *AMQPTransport) Send(ctx context.Context, to, msgType string, payload any) error {
	if t.channel == nil {
		return fmt.Errorf("transport not connected")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", msgType, err)
	}
	return t.channel.PublishWithContext(ctx, "", to, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   uuid.NewString(),
		Type:        msgType,
		Body:        body,
	})
}

// Ack acknowledges the broker delivery behind an envelope. Acking an
// unknown or already-acked envelope is a no-op.
func (t *AMQPTransport) Ack(_ context.Context, env Envelope) error {
	t.mu.Lock()
	d, ok := t.pending[env.ID]
	if ok {
		delete(t.pending, env.ID)
	}
	t.mu.Unlock()

	if !ok {
		return nil
	}
	return d.Ack(false)
}

// Close tears down the broker connection.
func (t *AMQPTransport) Close() {
	if t.channel != nil {
		t.channel.Close()
		t.channel = nil
	}
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}
