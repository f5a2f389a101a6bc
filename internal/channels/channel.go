// Package channels connects chat platforms to the message bus.
package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/miniclaw/miniclaw/internal/bus"
)

// Channel defines the interface for chat platforms (Telegram, Slack, WhatsApp).
type Channel interface {
	// Name returns the channel name (e.g. "telegram").
	Name() string
	// Start starts the channel listener.
	Start(ctx context.Context) error
	// Stop stops the channel listener.
	Stop() error
	// Send sends a message to a specific chat.
	Send(ctx context.Context, msg *bus.OutboundMessage) error
}

// BaseChannel provides common functionality for channels.
type BaseChannel struct {
	Bus       *bus.MessageBus
	AllowFrom []string
	// Pause separates the parts of a split reply.
	Pause time.Duration
}

// IsAllowed reports whether sender may talk to the agent. An empty allowlist
// admits everyone.
func (b *BaseChannel) IsAllowed(sender string) bool {
	if len(b.AllowFrom) == 0 {
		return true
	}
	sender = strings.TrimSpace(sender)
	for _, allowed := range b.AllowFrom {
		allowed = strings.TrimPrefix(strings.TrimSpace(allowed), "@")
		if allowed != "" && strings.EqualFold(allowed, strings.TrimPrefix(sender, "@")) {
			return true
		}
	}
	return false
}

// Manager starts channels and routes outbound messages to them.
type Manager struct {
	bus      *bus.MessageBus
	channels []Channel
}

// NewManager creates a channel manager bound to a bus.
func NewManager(b *bus.MessageBus) *Manager {
	return &Manager{bus: b}
}

// Register adds a channel and subscribes it to its outbound messages.
func (m *Manager) Register(ch Channel) {
	m.channels = append(m.channels, ch)
	m.bus.Subscribe(ch.Name(), ch.Send)
}

// Channels returns the registered channel names.
func (m *Manager) Channels() []string {
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// StartAll starts every registered channel. It stops the ones already
// started if one fails.
func (m *Manager) StartAll(ctx context.Context) error {
	for i, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			for _, started := range m.channels[:i] {
				_ = started.Stop()
			}
			return fmt.Errorf("start %s channel: %w", ch.Name(), err)
		}
		slog.Info("Channel started", "channel", ch.Name())
	}
	return nil
}

// StopAll stops every registered channel.
func (m *Manager) StopAll() {
	for _, ch := range m.channels {
		if err := ch.Stop(); err != nil {
			slog.Warn("Channel stop failed", "channel", ch.Name(), "error", err)
		}
	}
}
