package notifiers

import (
	"context"
	"fmt"
	"time"

	"propwatch-backend/lib/telemetry"
	"propwatch-backend/services/monitor"

	"github.com/go-resty/resty/v2"
)

// Webhook posts the raw event JSON to an arbitrary endpoint.
type Webhook struct {
	url  string
	http *resty.Client
}

func NewWebhook(url string) *Webhook {
	client := resty.New()
	client.SetTimeout(time.Second * 15)
	telemetry.InstrumentResty(client, "notifiers/webhook/http")

	return &Webhook{
		url:  url,
		http: client,
	}
}

func (w *Webhook) Name() string {
	return "webhook"
}

func (w *Webhook) Dispatch(ctx context.Context, event monitor.Event) error {
	res, err := w.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(event).
		Post(w.url)
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("webhook returned %s", res.Status())
	}
	return nil
}
