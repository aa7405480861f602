package sources

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// RawRecord is one extracted record before normalization: a bag of
// source-native fields plus the page it came from.
type RawRecord struct {
	Fields map[string]string
	URL    string
}

// Source is a per-county extractor. Implementations live in the
// subpackages here and register themselves by name; the core only
// ever sees this interface.
type Source interface {
	Name() string
	// since is advisory: adapters that support incremental queries
	// may skip records older than it, the rest ignore it.
	Fetch(ctx context.Context, since time.Time) ([]RawRecord, error)
}

// Config carries the knobs shared by adapters. Unused fields are
// ignored by adapters that don't need them.
type Config struct {
	BaseURL string `json:"base_url"`
	// seconds; zero means the adapter default
	TimeoutSeconds int `json:"timeout_seconds"`
	// static adapter only
	FixtureFile string `json:"fixture_file"`
}

func (c Config) Timeout(fallback time.Duration) time.Duration {
	if c.TimeoutSeconds <= 0 {
		return fallback
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type Factory func(config Config) (Source, error)

var registry = map[string]Factory{}

func Register(name string, factory Factory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("source %q registered twice", name))
	}
	registry[name] = factory
}

func New(name string, config Config) (Source, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown source %q (available: %v)", name, Names())
	}
	return factory(config)
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
