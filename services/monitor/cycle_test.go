package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"propwatch-backend/lib/sources"
	"propwatch-backend/lib/sources/static"
	"propwatch-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

type brokenSource struct{}

func (brokenSource) Name() string { return "broken" }

func (brokenSource) Fetch(ctx context.Context, since time.Time) ([]sources.RawRecord, error) {
	return nil, errors.New("county site unreachable")
}

// stalledSource stands in for a county site that hangs until the
// deadline kills the request.
type stalledSource struct{}

func (stalledSource) Name() string { return "stalled" }

func (stalledSource) Fetch(ctx context.Context, since time.Time) ([]sources.RawRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func rawSale(folio, address, price, date string) sources.RawRecord {
	return sources.RawRecord{
		Fields: map[string]string{
			"folio":     folio,
			"address":   address,
			"price":     price,
			"sale_date": date,
		},
		URL: "https://records.example.gov/" + folio,
	}
}

func TestRunCycle(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:monitor")
	defer cleanup()

	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	dispatcher := &fakeDispatcher{name: "fake"}

	runner := Runner{
		Store: store,
		Counties: []CountyPipeline{
			{
				County: "county_a",
				Source: static.FromRecords([]sources.RawRecord{
					rawSale("A-1", "1 First St, Miami FL 33139", "$350,000", "2024-02-28"),
					rawSale("A-2", "2 Second St, Miami FL 33139", "", "2024-02-28"),
					// unusable date, dropped without failing the county
					rawSale("A-3", "3 Third St, Miami FL 33139", "$100", "soon"),
				}),
				Mapping: testMapping,
			},
			{
				County:  "county_b",
				Source:  brokenSource{},
				Mapping: testMapping,
			},
		},
		Dispatchers: []Dispatcher{dispatcher},
		Now:         func() time.Time { return now },
	}

	summary := runner.RunCycle(ctx)
	require.Len(t, summary.Counties, 2)
	require.Equal(t, now, summary.StartedAt)

	a := summary.Counties[0]
	require.Equal(t, County("county_a"), a.County)
	require.Equal(t, 2, a.New)
	require.Equal(t, 1, a.Dropped)
	require.Equal(t, 2, a.Notified)
	require.Equal(t, "", a.Err)

	// the broken county reports its error without affecting county_a
	b := summary.Counties[1]
	require.Equal(t, County("county_b"), b.County)
	require.NotEqual(t, "", b.Err)
	require.Equal(t, 0, b.New)

	require.Len(t, dispatcher.events, 2)
	// adapters report the page a record came from
	require.Equal(t, "https://records.example.gov/A-1", dispatcher.events[0].Record.SourceURL)
}

func TestRunCycleSteadyState(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:monitor")
	defer cleanup()

	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	dispatcher := &fakeDispatcher{name: "fake"}

	runner := Runner{
		Store: store,
		Counties: []CountyPipeline{
			{
				County: "county_a",
				Source: static.FromRecords([]sources.RawRecord{
					rawSale("A-1", "1 First St, Miami FL 33139", "$350,000", "2024-02-28"),
				}),
				Mapping: testMapping,
			},
		},
		Dispatchers: []Dispatcher{dispatcher},
		Now:         func() time.Time { return now },
	}

	first := runner.RunCycle(ctx)
	require.Equal(t, 1, first.Counties[0].New)
	require.Equal(t, 1, first.Counties[0].Notified)

	// an identical second cycle notifies nothing
	second := runner.RunCycle(ctx)
	require.Equal(t, 0, second.Counties[0].New)
	require.Equal(t, 1, second.Counties[0].Unchanged)
	require.Equal(t, 0, second.Counties[0].Notified)
	require.Len(t, dispatcher.events, 1)
}

func TestRunCycleFilters(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:monitor")
	defer cleanup()

	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	dispatcher := &fakeDispatcher{name: "fake"}

	runner := Runner{
		Store: store,
		Counties: []CountyPipeline{
			{
				County: "county_a",
				Source: static.FromRecords([]sources.RawRecord{
					rawSale("A-1", "1 First St, Miami FL 33139", "$350,000", "2024-02-28"),
					rawSale("A-2", "2 Second St, Miami FL 33139", "$90,000", "2024-02-28"),
				}),
				Mapping: testMapping,
			},
		},
		Filter:      FilterConfig{MinPrice: ptr(int64(200000))},
		Dispatchers: []Dispatcher{dispatcher},
		Now:         func() time.Time { return now },
	}

	summary := runner.RunCycle(ctx)
	require.Equal(t, 2, summary.Counties[0].New)
	require.Equal(t, 1, summary.Counties[0].Notified)
	require.Len(t, dispatcher.events, 1)

	// the filtered-out record was still stored; it will not resurface
	// as New if the filter later relaxes
	entry, err := store.Get(ctx, "county_a", "A-2")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Nil(t, entry.LastNotified)
}

func TestRunCycleCountyTimeout(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:monitor")
	defer cleanup()

	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	runner := Runner{
		Store: store,
		Counties: []CountyPipeline{
			{
				County: "county_a",
				Source: static.FromRecords([]sources.RawRecord{
					rawSale("A-1", "1 First St, Miami FL 33139", "$350,000", "2024-02-28"),
				}),
				Mapping: testMapping,
			},
			{
				County:  "county_slow",
				Source:  stalledSource{},
				Mapping: testMapping,
			},
		},
		CountyTimeout: time.Millisecond * 50,
		Now:           func() time.Time { return now },
	}

	summary := runner.RunCycle(ctx)
	require.Len(t, summary.Counties, 2)

	a := summary.Counties[0]
	require.Equal(t, County("county_a"), a.County)
	require.Equal(t, 1, a.New)
	require.Equal(t, "", a.Err)

	slow := summary.Counties[1]
	require.Equal(t, County("county_slow"), slow.County)
	require.NotEqual(t, "", slow.Err)
	require.Equal(t, 0, slow.New)

	// the timed-out county committed nothing
	active, err := store.ListActive(ctx, "county_slow")
	require.NoError(t, err)
	require.Len(t, active, 0)
}

func TestRunCycleCancellationAtCountyBoundary(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:monitor")
	defer cleanup()

	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := Runner{
		Store: store,
		Counties: []CountyPipeline{
			{
				County: "county_a",
				Source: static.FromRecords([]sources.RawRecord{
					rawSale("A-1", "1 First St, Miami FL 33139", "$350,000", "2024-02-28"),
				}),
				Mapping: testMapping,
			},
		},
	}

	summary := runner.RunCycle(ctx)
	require.Len(t, summary.Counties, 1)
	require.NotEqual(t, "", summary.Counties[0].Err)

	entry, err := store.Get(context.Background(), "county_a", "A-1")
	require.NoError(t, err)
	require.Nil(t, entry)
}
