package monitor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"propwatch-backend/lib/sources"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/monitor")

const defaultCountyTimeout = time.Minute * 5

// CountyPipeline binds one county's source adapter to its field
// mapping. Everything county-specific enters the core through here.
type CountyPipeline struct {
	County  County
	Source  sources.Source
	Mapping Mapping
}

type Runner struct {
	Store       HistoryStore
	Counties    []CountyPipeline
	Filter      FilterConfig
	Dispatchers []Dispatcher
	Enricher    Enricher
	// bounds one county's fetch+diff+emit; zero means the default.
	CountyTimeout time.Duration
	// passed to source adapters as the since-cursor; the daemon sets
	// it to the previous cycle's start.
	Since time.Time
	// overridable clock for tests
	Now func() time.Time
}

// RunCycle executes one poll cycle. Counties run in parallel and are
// isolated: a failed or timed-out county reports its error in the
// summary without affecting the others.
func (r Runner) RunCycle(ctx context.Context) CycleSummary {
	ctx, span := tracer.Start(ctx, "RunCycle")
	defer span.End()

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	summary := CycleSummary{
		StartedAt: now().UTC(),
		Counties:  make([]CountySummary, len(r.Counties)),
	}

	var wg sync.WaitGroup
	for i, pipeline := range r.Counties {
		// cancellation takes effect at county boundaries, never
		// mid-record
		if ctx.Err() != nil {
			summary.Counties[i] = CountySummary{
				County: pipeline.County,
				Err:    ctx.Err().Error(),
			}
			continue
		}

		wg.Add(1)
		go func(i int, pipeline CountyPipeline) {
			defer wg.Done()
			summary.Counties[i] = r.runCounty(ctx, pipeline, now().UTC())
		}(i, pipeline)
	}
	wg.Wait()

	sort.Slice(summary.Counties, func(i, j int) bool {
		return summary.Counties[i].County < summary.Counties[j].County
	})
	summary.FinishedAt = now().UTC()

	span.SetAttributes(attribute.Int("counties", len(summary.Counties)))
	return summary
}

func (r Runner) runCounty(ctx context.Context, pipeline CountyPipeline, now time.Time) CountySummary {
	ctx, span := tracer.Start(ctx, "runCounty")
	defer span.End()
	span.SetAttributes(attribute.String("county", string(pipeline.County)))

	timeout := r.CountyTimeout
	if timeout == 0 {
		timeout = defaultCountyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	summary := CountySummary{County: pipeline.County}

	raws, err := pipeline.Source.Fetch(ctx, r.Since)
	if err != nil {
		adapterErr := &AdapterError{County: pipeline.County, Err: err}
		span.RecordError(adapterErr)
		span.SetStatus(codes.Error, "fetch failed")
		summary.Err = adapterErr.Error()
		return summary
	}

	observations := make([]Fingerprint, 0, len(raws))
	for _, raw := range raws {
		record, err := Normalize(pipeline.County, pipeline.Mapping, raw.Fields)
		if err != nil {
			slog.WarnContext(ctx, "record dropped",
				"county", pipeline.County, "err", err)
			summary.Dropped++
			continue
		}
		if record.SourceURL == "" {
			// adapters report the page they extracted from even when
			// the source schema has no url column
			record.SourceURL = raw.URL
		}
		observations = append(observations, Resolve(record))
	}

	classified, err := Diff(ctx, r.Store, pipeline.County, observations, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "diff failed")
		summary.Err = err.Error()
		return summary
	}

	for _, c := range classified {
		switch c.Classification {
		case ClassificationNew:
			summary.New++
		case ClassificationUpdated:
			summary.Updated++
		case ClassificationUnchanged:
			summary.Unchanged++
		case ClassificationRemoved:
			summary.Removed++
		}
	}

	eligible := Filter(classified, r.Filter)
	events, dispatchErrs := Emit(ctx, r.Store, pipeline.County, eligible, r.Dispatchers, r.Enricher, now)
	summary.Notified = len(events)
	summary.DispatchFailures = len(dispatchErrs)

	slog.InfoContext(ctx, "county cycle finished",
		"county", pipeline.County,
		"new", summary.New,
		"updated", summary.Updated,
		"unchanged", summary.Unchanged,
		"removed", summary.Removed,
		"dropped", summary.Dropped,
		"notified", summary.Notified,
	)
	return summary
}
