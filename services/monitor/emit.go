package monitor

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Emit turns filter-eligible classifications into ordered
// notification events and hands them to the dispatchers.
//
// last_notified is recorded before dispatch: if a dispatcher fails
// afterwards the next cycle classifies the record Unchanged and it is
// not re-sent. Notification here is at-most-once, never duplicated.
func Emit(ctx context.Context, store HistoryStore, county County, eligible []ClassifiedRecord, dispatchers []Dispatcher, enricher Enricher, now time.Time) ([]Event, []error) {
	ctx, span := tracer.Start(ctx, "Emit")
	defer span.End()
	span.SetAttributes(
		attribute.String("county", string(county)),
		attribute.Int("eligible", len(eligible)),
	)

	var events []Event
	var dispatchErrs []error

	for _, c := range eligible {
		event := Event{
			Kind:      c.Classification,
			Record:    c.Record,
			Timestamp: now,
		}

		err := store.MarkNotified(ctx, string(county), c.Key, now)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to mark notified")
			dispatchErrs = append(dispatchErrs, &StoreError{County: county, Op: "mark notified", Err: err})
			continue
		}

		if enricher != nil {
			err := enricher.Enrich(ctx, &event)
			if err != nil {
				// enrichment is best-effort, the event still goes out
				slog.WarnContext(ctx, "event enrichment failed",
					"county", county, "key", c.Key, "err", err)
			}
		}

		for _, dispatcher := range dispatchers {
			err := dispatcher.Dispatch(ctx, event)
			if err != nil {
				slog.ErrorContext(ctx, "dispatch failed",
					"dispatcher", dispatcher.Name(), "county", county, "key", c.Key, "err", err)
				dispatchErrs = append(dispatchErrs, &DispatchError{Dispatcher: dispatcher.Name(), Err: err})
			}
		}

		events = append(events, event)
	}

	return events, dispatchErrs
}
