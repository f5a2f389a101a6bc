package channels

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/miniclaw/miniclaw/internal/bus"
	"github.com/miniclaw/miniclaw/internal/config"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// slackPoster is the part of *slack.Client the channel sends with.
type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+>`)

// SlackChannel receives direct messages and app mentions over Socket Mode.
type SlackChannel struct {
	BaseChannel
	config    config.SlackConfig
	api       slackPoster
	client    *slack.Client
	botUserID string
	cancel    context.CancelFunc
}

// NewSlackChannel creates a Slack channel.
func NewSlackChannel(cfg config.SlackConfig, pause time.Duration, messageBus *bus.MessageBus) *SlackChannel {
	return &SlackChannel{
		BaseChannel: BaseChannel{Bus: messageBus, AllowFrom: cfg.AllowFrom, Pause: pause},
		config:      cfg,
	}
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Start(ctx context.Context) error {
	c.client = slack.New(c.config.BotToken, slack.OptionAppLevelToken(c.config.AppToken))
	c.api = c.client

	auth, err := c.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	c.botUserID = auth.UserID
	slog.Info("Slack authorized", "team", auth.Team, "bot_user", auth.UserID)

	ctx, c.cancel = context.WithCancel(ctx)
	socket := socketmode.New(c.client)
	go c.runSocketMode(ctx, socket)
	go func() {
		if err := socket.RunContext(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Slack socket mode stopped", "error", err)
		}
	}()
	return nil
}

func (c *SlackChannel) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *SlackChannel) runSocketMode(ctx context.Context, socket *socketmode.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-socket.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeConnected:
				slog.Info("Slack socket mode connected")
			case socketmode.EventTypeEventsAPI:
				if evt.Request != nil {
					socket.Ack(*evt.Request)
				}
				ev, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				c.handleEvent(ev)
			}
		}
	}
}

func (c *SlackChannel) handleEvent(ev slackevents.EventsAPIEvent) {
	if ev.Type != slackevents.CallbackEvent {
		return
	}
	switch in := ev.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		// Channel messages arrive as app_mention; only direct messages count here.
		if in == nil || in.ChannelType != "im" || in.BotID != "" || in.SubType != "" || in.User == c.botUserID {
			return
		}
		c.publish(in.User, in.Channel, in.Text)
	case *slackevents.AppMentionEvent:
		if in == nil || in.BotID != "" || in.User == c.botUserID {
			return
		}
		c.publish(in.User, in.Channel, in.Text)
	}
}

func (c *SlackChannel) publish(user, channelID, text string) {
	text = strings.TrimSpace(mentionPattern.ReplaceAllString(text, ""))
	if text == "" {
		return
	}
	if !c.IsAllowed(user) {
		slog.Warn("Slack sender not allowed", "sender", user)
		return
	}
	c.Bus.PublishInbound(&bus.InboundMessage{
		Channel:  c.Name(),
		SenderID: user,
		ChatID:   channelID,
		Content:  text,
	})
}

func (c *SlackChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if c.api == nil {
		return fmt.Errorf("slack: not started")
	}
	return SendChunked(ctx, msg.Content, SlackMaxLength, msg.PartsSent, c.Pause, func(ctx context.Context, part string) error {
		_, _, err := c.api.PostMessageContext(ctx, msg.ChatID, slack.MsgOptionText(part, false))
		return err
	})
}
