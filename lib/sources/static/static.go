// Package static serves records out of a JSON fixture file. It backs
// tests and dry runs where hitting a county site is unwanted.
package static

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"propwatch-backend/lib/sources"
)

func init() {
	sources.Register("static", func(config sources.Config) (sources.Source, error) {
		if config.FixtureFile == "" {
			return nil, fmt.Errorf("static source requires a fixture_file")
		}
		return &Source{path: config.FixtureFile}, nil
	})
}

type Source struct {
	path    string
	records []sources.RawRecord
}

// FromRecords builds an in-memory source, handy in tests.
func FromRecords(records []sources.RawRecord) *Source {
	return &Source{records: records}
}

type fixtureRecord struct {
	Fields map[string]string `json:"fields"`
	URL    string            `json:"url"`
}

func (s *Source) Name() string {
	return "static"
}

func (s *Source) Fetch(ctx context.Context, since time.Time) ([]sources.RawRecord, error) {
	if s.path == "" {
		return s.records, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var fixtures []fixtureRecord
	err = json.Unmarshal(data, &fixtures)
	if err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", s.path, err)
	}

	records := make([]sources.RawRecord, len(fixtures))
	for i, f := range fixtures {
		records[i] = sources.RawRecord{Fields: f.Fields, URL: f.URL}
	}
	return records, nil
}
