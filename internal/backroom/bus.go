// ABOUTME: In-process message bus for agent-to-agent communication outside user interaction.
// ABOUTME: Point-to-point at-most-once delivery with per-message status tracking.

package backroom

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageType classifies a backroom message.
type MessageType string

const (
	TypeRequest      MessageType = "request"
	TypeResponse     MessageType = "response"
	TypeNotification MessageType = "notification"
	TypeError        MessageType = "error"
)

// Status tracks a message through delivery.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Message is one agent-to-agent message. Appended to the bus log on Send and
// mutated only by the single delivery attempt that created it.
type Message struct {
	ID          string
	ExecutionID string
	From        string
	To          string
	Type        MessageType
	Content     any
	Status      Status
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Handler processes an inbound message for a registered agent. A returned
// error marks the message failed; it is never propagated to the sender.
type Handler func(ctx context.Context, msg *Message) error

// Bus is a local, in-process delivery primitive — not a durable queue. There
// is no redelivery and no ordering guarantee beyond insertion order of the
// per-bus log. Registrations and messages are lost on process restart.
type Bus struct {
	mu       sync.RWMutex
	log      []*Message
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewBus creates a message bus. Pass nil logger for the default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[string]Handler),
		logger:   logger.With("component", "backroom"),
	}
}

// RegisterAgent associates an agent name with an inbound handler.
// Re-registering the same name silently replaces the previous handler.
func (b *Bus) RegisterAgent(name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = handler
}

// Send constructs a message, appends it to the log, and synchronously attempts
// delivery. Delivery failures (no handler, handler error) are recorded on the
// message status and never returned to the sender.
func (b *Bus) Send(ctx context.Context, executionID, from, to string, msgType MessageType, content any) *Message {
	msg := &Message{
		ID:          "msg_" + uuid.New().String(),
		ExecutionID: executionID,
		From:        from,
		To:          to,
		Type:        msgType,
		Content:     content,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}

	b.mu.Lock()
	b.log = append(b.log, msg)
	handler, ok := b.handlers[to]
	b.mu.Unlock()

	b.deliver(ctx, msg, handler, ok)
	return msg
}

// deliver runs the single delivery attempt for a message.
func (b *Bus) deliver(ctx context.Context, msg *Message, handler Handler, registered bool) {
	if !registered {
		msg.Status = StatusFailed
		b.logger.Error("no handler registered for agent",
			"to", msg.To,
			"message_id", msg.ID,
		)
		return
	}

	msg.Status = StatusDelivered
	if err := handler(ctx, msg); err != nil {
		msg.Status = StatusFailed
		b.logger.Error("message delivery failed",
			"to", msg.To,
			"message_id", msg.ID,
			"error", err,
		)
		return
	}

	now := time.Now()
	msg.Status = StatusProcessed
	msg.ProcessedAt = &now
}

// ExecutionMessages returns all messages tagged with the execution ID, in
// insertion order.
func (b *Bus) ExecutionMessages(executionID string) []*Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*Message
	for _, msg := range b.log {
		if msg.ExecutionID == executionID {
			out = append(out, msg)
		}
	}
	return out
}

// PendingFor returns messages addressed to the agent that are still pending.
// Under synchronous delivery this set is normally empty except transiently.
func (b *Bus) PendingFor(agent string) []*Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*Message
	for _, msg := range b.log {
		if msg.To == agent && msg.Status == StatusPending {
			out = append(out, msg)
		}
	}
	return out
}

// ClearProcessed purges processed messages from the log. Failed and pending
// messages are retained.
func (b *Bus) ClearProcessed() {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.log[:0]
	for _, msg := range b.log {
		if msg.Status != StatusProcessed {
			kept = append(kept, msg)
		}
	}
	b.log = kept
}
