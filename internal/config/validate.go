package config

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports a setting that prevents a component from being
// built. It is fatal at construction time.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
	}
	return "configuration error: " + e.Message
}

// Validate checks the settings shared by every command. Channel and trace
// settings are only checked for enabled components.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, msg string) {
		errs = append(errs, &ConfigurationError{Field: field, Message: msg})
	}

	if strings.TrimSpace(c.Model.Name) == "" {
		add("model.name", "must not be empty")
	}
	if c.Model.MaxIterations < 1 {
		add("model.maxIterations", "must be at least 1")
	}
	if c.Tools.ShellTimeout <= 0 {
		add("tools.shellTimeout", "must be positive")
	}
	if strings.TrimSpace(c.Paths.Workspace) == "" {
		add("paths.workspace", "must not be empty")
	}
	if strings.TrimSpace(c.Paths.Sessions) == "" {
		add("paths.sessions", "must not be empty")
	}

	if tg := c.Channels.Telegram; tg.Enabled && strings.TrimSpace(tg.Token) == "" {
		add("channels.telegram.token", "required when telegram is enabled (TELEGRAM_TOKEN)")
	}
	if sl := c.Channels.Slack; sl.Enabled {
		if !strings.HasPrefix(sl.BotToken, "xoxb-") {
			add("channels.slack.botToken", "must be a bot token (xoxb-...)")
		}
		if !strings.HasPrefix(sl.AppToken, "xapp-") {
			add("channels.slack.appToken", "must be an app-level token (xapp-...)")
		}
	}
	if wa := c.Channels.WhatsApp; wa.Enabled && strings.TrimSpace(wa.StorePath) == "" {
		add("channels.whatsapp.storePath", "required when whatsapp is enabled")
	}

	if tr := c.Trace; tr.Enabled {
		if len(tr.Brokers) == 0 {
			add("trace.brokers", "at least one broker is required when trace export is enabled")
		}
		if strings.TrimSpace(tr.Topic) == "" {
			add("trace.topic", "must not be empty when trace export is enabled")
		}
		switch strings.ToUpper(tr.SecurityProtocol) {
		case "", "PLAINTEXT", "SSL":
		case "SASL_PLAINTEXT", "SASL_SSL":
			if strings.TrimSpace(tr.SASLMechanism) == "" {
				add("trace.saslMechanism", "required for SASL security protocols")
			}
		default:
			add("trace.securityProtocol", "must be PLAINTEXT, SSL, SASL_PLAINTEXT or SASL_SSL")
		}
	}

	return errors.Join(errs...)
}
