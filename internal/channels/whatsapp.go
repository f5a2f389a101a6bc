package channels

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/miniclaw/miniclaw/internal/bus"
	"github.com/miniclaw/miniclaw/internal/config"
	"github.com/skip2/go-qrcode"

	_ "modernc.org/sqlite"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// WhatsAppChannel implements a native WhatsApp client.
type WhatsAppChannel struct {
	BaseChannel
	client    *whatsmeow.Client
	config    config.WhatsAppConfig
	container *sqlstore.Container
	sendFn    func(ctx context.Context, jid types.JID, text string) error
}

// NewWhatsAppChannel creates a new WhatsApp channel.
func NewWhatsAppChannel(cfg config.WhatsAppConfig, pause time.Duration, messageBus *bus.MessageBus) *WhatsAppChannel {
	return &WhatsAppChannel{
		BaseChannel: BaseChannel{Bus: messageBus, AllowFrom: cfg.AllowFrom, Pause: pause},
		config:      cfg,
	}
}

func (c *WhatsAppChannel) Name() string { return "whatsapp" }

func (c *WhatsAppChannel) Start(ctx context.Context) error {
	dbLog := waLog.Stdout("Database", "WARN", true)
	clientLog := waLog.Stdout("Client", "WARN", true)

	if err := os.MkdirAll(filepath.Dir(c.config.StorePath), 0755); err != nil {
		return fmt.Errorf("create whatsapp store dir: %w", err)
	}
	container, err := sqlstore.New(ctx, "sqlite", "file:"+c.config.StorePath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbLog)
	if err != nil {
		return fmt.Errorf("failed to init whatsapp db: %w", err)
	}
	c.container = container

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get device: %w", err)
	}

	c.client = whatsmeow.NewClient(deviceStore, clientLog)
	c.client.AddEventHandler(c.eventHandler)

	if c.client.Store.ID == nil {
		qrChan, _ := c.client.GetQRChannel(context.Background())
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		go c.awaitPairing(qrChan)
		return nil
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	slog.Info("WhatsApp connected", "jid", c.client.Store.ID.String())
	return nil
}

// awaitPairing writes each login QR code to the configured PNG path.
func (c *WhatsAppChannel) awaitPairing(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		if evt.Event == "code" {
			if err := qrcode.WriteFile(evt.Code, qrcode.Medium, 512, c.config.QRPath); err != nil {
				slog.Error("Failed to write WhatsApp QR code", "path", c.config.QRPath, "error", err)
				continue
			}
			slog.Info("WhatsApp login QR code saved; scan it with your phone", "path", c.config.QRPath)
		} else {
			slog.Info("WhatsApp login event", "event", evt.Event)
		}
	}
}

func (c *WhatsAppChannel) Stop() error {
	if c.client != nil {
		c.client.Disconnect()
	}
	if c.container != nil {
		return c.container.Close()
	}
	return nil
}

func (c *WhatsAppChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	jid, err := types.ParseJID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("invalid JID: %w", err)
	}
	send := c.sendFn
	if send == nil {
		if c.client == nil {
			return fmt.Errorf("whatsapp: client not initialized")
		}
		send = c.sendText
	}
	return SendChunked(ctx, msg.Content, WhatsAppMaxLength, msg.PartsSent, c.Pause, func(ctx context.Context, part string) error {
		return send(ctx, jid, part)
	})
}

func (c *WhatsAppChannel) sendText(ctx context.Context, jid types.JID, text string) error {
	_, err := c.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	return err
}

func (c *WhatsAppChannel) eventHandler(evt any) {
	switch v := evt.(type) {
	case *events.Message:
		c.handleMessage(v)
	case *events.Connected:
		slog.Info("WhatsApp session connected")
	case *events.LoggedOut:
		slog.Warn("WhatsApp session logged out; delete the store to pair again", "store", c.config.StorePath)
	}
}

func (c *WhatsAppChannel) handleMessage(v *events.Message) {
	if v.Info.IsFromMe {
		return
	}
	content := strings.TrimSpace(messageText(v.Message))
	if content == "" {
		return
	}
	sender := v.Info.Sender.User
	if !c.IsAllowed(sender) {
		slog.Warn("WhatsApp sender not allowed", "sender", sender)
		return
	}
	c.Bus.PublishInbound(&bus.InboundMessage{
		Channel:   c.Name(),
		SenderID:  sender,
		ChatID:    v.Info.Chat.String(),
		TraceID:   "wa:" + string(v.Info.ID),
		Content:   content,
		Timestamp: v.Info.Timestamp,
	})
}

// messageText extracts the plain text of a message; media is ignored.
func messageText(m *waE2E.Message) string {
	if m == nil {
		return ""
	}
	if text := m.GetConversation(); text != "" {
		return text
	}
	return m.GetExtendedTextMessage().GetText()
}
