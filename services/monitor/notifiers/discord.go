package notifiers

import (
	"context"
	"fmt"
	"time"

	"propwatch-backend/lib/telemetry"
	"propwatch-backend/services/monitor"

	"github.com/go-resty/resty/v2"
)

const (
	colorGreen  = 0x00FF00
	colorOrange = 0xFF6600
	colorGray   = 0x999999
)

type Discord struct {
	webhookURL string
	http       *resty.Client
}

func NewDiscord(webhookURL string) *Discord {
	client := resty.New()
	client.SetTimeout(time.Second * 15)
	telemetry.InstrumentResty(client, "notifiers/discord/http")

	return &Discord{
		webhookURL: webhookURL,
		http:       client,
	}
}

func (d *Discord) Name() string {
	return "discord"
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title  string         `json:"title"`
	URL    string         `json:"url,omitempty"`
	Color  int            `json:"color"`
	Fields []discordField `json:"fields"`
}

func (d *Discord) Dispatch(ctx context.Context, event monitor.Event) error {
	record := event.Record

	color := colorGray
	switch {
	case event.Kind == monitor.ClassificationRemoved:
		color = colorGray
	case record.Type == monitor.RecordTypeSale:
		color = colorGreen
	default:
		color = colorOrange
	}

	embed := discordEmbed{
		Title: fmt.Sprintf("%s: %s", event.Kind, record.Address),
		URL:   record.SourceURL,
		Color: color,
		Fields: []discordField{
			{Name: "Price", Value: formatPrice(record.Price), Inline: true},
			{Name: "Type", Value: string(record.Type), Inline: true},
			{Name: "County", Value: string(record.County), Inline: true},
			{Name: "Date", Value: record.Date.Format("2006-01-02"), Inline: true},
		},
	}

	res, err := d.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"embeds": []discordEmbed{embed},
		}).
		Post(d.webhookURL)
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("discord webhook returned %s", res.Status())
	}
	return nil
}
