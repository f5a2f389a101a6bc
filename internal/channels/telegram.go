package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/miniclaw/miniclaw/internal/bus"
	"github.com/miniclaw/miniclaw/internal/config"
)

// telegramAPI is the part of *tgbotapi.BotAPI the channel uses.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// TelegramChannel receives messages through long polling.
type TelegramChannel struct {
	BaseChannel
	config config.TelegramConfig
	api    telegramAPI
}

// NewTelegramChannel creates a Telegram channel.
func NewTelegramChannel(cfg config.TelegramConfig, pause time.Duration, messageBus *bus.MessageBus) *TelegramChannel {
	return &TelegramChannel{
		BaseChannel: BaseChannel{Bus: messageBus, AllowFrom: cfg.AllowFrom, Pause: pause},
		config:      cfg,
	}
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Start(ctx context.Context) error {
	if c.api == nil {
		bot, err := tgbotapi.NewBotAPI(c.config.Token)
		if err != nil {
			return fmt.Errorf("telegram login: %w", err)
		}
		slog.Info("Telegram authorized", "bot", bot.Self.UserName)
		c.api = bot
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := c.api.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				c.handleUpdate(update)
			}
		}
	}()
	return nil
}

func (c *TelegramChannel) Stop() error {
	if c.api != nil {
		c.api.StopReceivingUpdates()
	}
	return nil
}

func (c *TelegramChannel) handleUpdate(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || strings.TrimSpace(msg.Text) == "" {
		return
	}
	sender := strconv.FormatInt(msg.Chat.ID, 10)
	if msg.From != nil {
		sender = strconv.FormatInt(msg.From.ID, 10)
		if !c.IsAllowed(sender) && !c.IsAllowed(msg.From.UserName) {
			slog.Warn("Telegram sender not allowed", "sender", sender, "username", msg.From.UserName)
			return
		}
	}

	chatID := msg.Chat.ID
	if !msg.IsCommand() {
		if _, err := c.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
			slog.Debug("Telegram typing indicator failed", "error", err)
		}
	}

	c.Bus.PublishInbound(&bus.InboundMessage{
		Channel:  c.Name(),
		SenderID: sender,
		ChatID:   strconv.FormatInt(chatID, 10),
		Content:  msg.Text,
		Metadata: map[string]any{"message_id": msg.MessageID},
	})
}

func (c *TelegramChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if c.api == nil {
		return fmt.Errorf("telegram: not started")
	}
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", msg.ChatID, err)
	}
	return SendChunked(ctx, msg.Content, TelegramMaxLength, msg.PartsSent, c.Pause, func(ctx context.Context, part string) error {
		_, err := c.api.Send(tgbotapi.NewMessage(chatID, part))
		return err
	})
}
