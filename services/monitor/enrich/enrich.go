// Package enrich implements the optional pre-dispatch enrichment
// hook: it captures the source page of an event to disk so notifiers
// can attach it. Enrichment failure never blocks dispatch.
package enrich

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"propwatch-backend/lib/telemetry"
	"propwatch-backend/services/monitor"

	"github.com/go-resty/resty/v2"
)

type PageSnapshot struct {
	dir  string
	http *resty.Client
}

func NewPageSnapshot(dir string) (*PageSnapshot, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetTimeout(time.Second * 20)
	telemetry.InstrumentResty(client, "enrich/pagesnapshot/http")

	return &PageSnapshot{
		dir:  dir,
		http: client,
	}, nil
}

func (p *PageSnapshot) Enrich(ctx context.Context, event *monitor.Event) error {
	if event.Record.SourceURL == "" {
		return nil
	}

	res, err := p.http.R().
		SetContext(ctx).
		Get(event.Record.SourceURL)
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("source page returned %s", res.Status())
	}

	name := fmt.Sprintf(
		"%s_%s_%s.html",
		event.Record.County,
		sanitizeKey(event.Record.RecordID),
		event.Timestamp.Format("20060102_150405"),
	)
	path := filepath.Join(p.dir, name)
	err = os.WriteFile(path, res.Body(), 0o644)
	if err != nil {
		return err
	}

	event.AttachmentPath = path
	return nil
}

func sanitizeKey(key string) string {
	if len(key) > 12 {
		key = key[:12]
	}
	out := make([]rune, 0, len(key))
	for _, c := range key {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
