// Package notifiers holds the built-in notification transports. Each
// implements monitor.Dispatcher; the core hands them events and never
// retries on its own.
package notifiers

import (
	"fmt"
	"log/slog"
	"strings"

	"propwatch-backend/services/monitor"
)

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
	NotifyEmail  string `json:"notify_email"`
}

type Config struct {
	DiscordWebhookURL string     `json:"discord_webhook_url"`
	WebhookURL        string     `json:"webhook_url"`
	Smtp              SmtpConfig `json:"smtp"`
}

// FromConfig builds every configured transport. Unconfigured ones
// are skipped, not errors; a monitor with zero dispatchers still
// records history.
func FromConfig(config Config) []monitor.Dispatcher {
	var dispatchers []monitor.Dispatcher

	if config.DiscordWebhookURL != "" {
		dispatchers = append(dispatchers, NewDiscord(config.DiscordWebhookURL))
	} else {
		slog.Info("discord notifier not configured, skipping")
	}

	if config.WebhookURL != "" {
		dispatchers = append(dispatchers, NewWebhook(config.WebhookURL))
	} else {
		slog.Info("webhook notifier not configured, skipping")
	}

	if config.Smtp.Server != "" && config.Smtp.NotifyEmail != "" {
		dispatchers = append(dispatchers, NewEmail(config.Smtp))
	} else {
		slog.Info("email notifier not configured, skipping")
	}

	return dispatchers
}

func formatPrice(price *int64) string {
	if price == nil {
		return "N/A"
	}
	digits := fmt.Sprintf("%d", *price)
	var b strings.Builder
	b.WriteByte('$')
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return b.String()
}

func formatRecord(event monitor.Event) string {
	r := event.Record
	lines := []string{
		fmt.Sprintf("%s [%s]", r.Address, event.Kind),
		fmt.Sprintf("Price: %s", formatPrice(r.Price)),
		fmt.Sprintf("Type: %s", r.Type),
		fmt.Sprintf("Date: %s", r.Date.Format("2006-01-02")),
		fmt.Sprintf("County: %s", r.County),
	}
	if r.ZipCode != "" {
		lines = append(lines, fmt.Sprintf("Zip: %s", r.ZipCode))
	}
	if r.SourceURL != "" {
		lines = append(lines, fmt.Sprintf("URL: %s", r.SourceURL))
	}
	return strings.Join(lines, "\n")
}
