// Package bus provides the async message bus between chat channels and the
// turn runner.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// InboundMessage represents a message from a channel to the agent.
type InboundMessage struct {
	Channel   string         `json:"channel"`
	SenderID  string         `json:"sender_id"`
	ChatID    string         `json:"chat_id"`
	TraceID   string         `json:"trace_id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// SessionKey identifies the conversation the message belongs to.
func (m *InboundMessage) SessionKey() string {
	return SessionKey(m.Channel, m.ChatID)
}

// SessionKey joins a channel name and chat id into a conversation key.
func SessionKey(channel, chatID string) string {
	return channel + ":" + chatID
}

// OutboundMessage represents a message from the agent to a channel.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	TraceID string `json:"trace_id"`
	TurnID  string `json:"turn_id,omitempty"`
	Content string `json:"content"`

	// PartsSent is how many parts of a split reply already reached the chat.
	PartsSent int `json:"parts_sent,omitempty"`
}

// PartialDeliveryError reports a split reply that stopped after Sent of
// Total parts.
type PartialDeliveryError struct {
	Sent  int
	Total int
	Err   error
}

func (e *PartialDeliveryError) Error() string {
	return fmt.Sprintf("delivered %d/%d parts: %v", e.Sent, e.Total, e.Err)
}

func (e *PartialDeliveryError) Unwrap() error { return e.Err }

// Handler delivers an outbound message and reports whether it arrived.
type Handler func(ctx context.Context, msg *OutboundMessage) error

// DeliveryReporter is told the outcome of every dispatched outbound message.
type DeliveryReporter func(msg *OutboundMessage, err error)

// MessageBus decouples channels from the agent core.
type MessageBus struct {
	inbound  chan *InboundMessage
	outbound chan *OutboundMessage
	subs     map[string][]Handler
	reporter DeliveryReporter
	mu       sync.RWMutex
}

// NewMessageBus creates a new message bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan *InboundMessage, 100),
		outbound: make(chan *OutboundMessage, 100),
		subs:     make(map[string][]Handler),
	}
}

// PublishInbound sends a message from a channel to the agent.
func (b *MessageBus) PublishInbound(msg *InboundMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	b.inbound <- msg
}

// ConsumeInbound blocks until a message is available or context is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (*InboundMessage, error) {
	select {
	case msg := <-b.inbound:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PublishOutbound sends a message from the agent to channels.
func (b *MessageBus) PublishOutbound(msg *OutboundMessage) {
	b.outbound <- msg
}

// Subscribe registers a handler for outbound messages to a specific channel.
func (b *MessageBus) Subscribe(channel string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[channel] = append(b.subs[channel], handler)
}

// OnDelivery installs the delivery outcome reporter.
func (b *MessageBus) OnDelivery(r DeliveryReporter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reporter = r
}

// DispatchOutbound runs the outbound message dispatcher.
// This should be run as a goroutine.
func (b *MessageBus) DispatchOutbound(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-b.outbound:
			b.mu.RLock()
			handlers := b.subs[msg.Channel]
			reporter := b.reporter
			b.mu.RUnlock()

			if len(handlers) == 0 {
				slog.Warn("No subscriber for outbound message", "channel", msg.Channel, "chat_id", msg.ChatID)
				continue
			}
			var sendErr error
			for _, h := range handlers {
				if err := h(ctx, msg); err != nil {
					slog.Error("Outbound delivery failed", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
					sendErr = err
				}
			}
			if reporter != nil {
				reporter(msg, sendErr)
			}
		}
	}
}

// InboundSize returns the number of pending inbound messages.
func (b *MessageBus) InboundSize() int {
	return len(b.inbound)
}

// OutboundSize returns the number of pending outbound messages.
func (b *MessageBus) OutboundSize() int {
	return len(b.outbound)
}
