// Package sandiego pulls San Diego County recorder data from the
// county's JSON records endpoint.
package sandiego

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"propwatch-backend/lib/sources"
	"propwatch-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://arcc.sdcounty.ca.gov"

func init() {
	sources.Register("san_diego", func(config sources.Config) (sources.Source, error) {
		return NewSource(config), nil
	})
}

type Source struct {
	http *resty.Client
}

func NewSource(config sources.Config) *Source {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(config.Timeout(time.Second * 30))
	client.SetHeader("accept", "application/json")

	telemetry.InstrumentResty(client, "sources/sandiego/http")

	return &Source{http: client}
}

func (s *Source) Name() string {
	return "san_diego"
}

func (s *Source) Fetch(ctx context.Context, since time.Time) ([]sources.RawRecord, error) {
	req := s.http.R().SetContext(ctx)
	if !since.IsZero() {
		req.SetQueryParam("recorded_after", since.Format("2006-01-02"))
	}

	res, err := req.Get("/api/records/recent")
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("records endpoint returned %s", res.Status())
	}

	var payload struct {
		Records []map[string]any `json:"records"`
	}
	err = json.Unmarshal(res.Body(), &payload)
	if err != nil {
		return nil, fmt.Errorf("decode records response: %w", err)
	}

	records := make([]sources.RawRecord, 0, len(payload.Records))
	for _, raw := range payload.Records {
		fields := make(map[string]string, len(raw))
		for key, value := range raw {
			fields[key] = stringify(value)
		}
		records = append(records, sources.RawRecord{
			Fields: fields,
			URL:    fields["detail_url"],
		})
	}
	return records, nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// json numbers; keep integers clean
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, _ := json.Marshal(v)
		return string(encoded)
	}
}
