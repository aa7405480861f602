package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"propwatch-backend/lib/historystore"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Diff classifies one county's observations against the history
// store and commits the resulting state in a single transaction, so
// a cancelled or failed county changes nothing.
//
// Classification order is deterministic: present records ascending by
// key, then removals ascending by key. Running the same input against
// the same starting state twice yields the same sequence.
func Diff(ctx context.Context, store HistoryStore, county County, observations []Fingerprint, now time.Time) ([]ClassifiedRecord, error) {
	ctx, span := tracer.Start(ctx, "Diff")
	defer span.End()
	span.SetAttributes(
		attribute.String("county", string(county)),
		attribute.Int("observations", len(observations)),
	)

	observations = dedupeObservations(county, observations)

	classified := make([]ClassifiedRecord, 0, len(observations))
	seen := make(map[string]bool, len(observations))

	for _, obs := range observations {
		seen[obs.Key] = true

		entry, err := store.Get(ctx, string(county), obs.Key)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "history lookup failed")
			return nil, &StoreError{County: county, Op: "get", Err: err}
		}

		switch {
		case entry == nil:
			classified = append(classified, ClassifiedRecord{
				Classification: ClassificationNew,
				Key:            obs.Key,
				Derived:        obs.Derived,
				Record:         obs.Record,
			})
		case entry.ContentHash != obs.ContentHash:
			classified = append(classified, ClassifiedRecord{
				Classification: ClassificationUpdated,
				Key:            obs.Key,
				Derived:        obs.Derived,
				Record:         obs.Record,
				PreviousHash:   entry.ContentHash,
			})
		default:
			classified = append(classified, ClassifiedRecord{
				Classification: ClassificationUnchanged,
				Key:            obs.Key,
				Derived:        obs.Derived,
				Record:         obs.Record,
			})
		}
	}

	removed, err := removedThisCycle(ctx, store, county, seen)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "removal scan failed")
		return nil, err
	}

	classified, removed, rekeys := rematchDrifted(classified, removed)
	classified = append(classified, removed...)

	err = commitCycle(ctx, store, county, classified, rekeys, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return nil, err
	}

	return classified, nil
}

// re-scraped duplicates within one dump are a repeat observation of
// the same record; the first wins.
func dedupeObservations(county County, observations []Fingerprint) []Fingerprint {
	sort.SliceStable(observations, func(i, j int) bool {
		return observations[i].Key < observations[j].Key
	})

	deduped := observations[:0]
	var lastKey string
	for _, obs := range observations {
		if obs.Key == lastKey {
			slog.Debug("dropping re-scraped duplicate", "county", county, "key", obs.Key)
			continue
		}
		deduped = append(deduped, obs)
		lastKey = obs.Key
	}
	return deduped
}

func removedThisCycle(ctx context.Context, store HistoryStore, county County, seen map[string]bool) ([]ClassifiedRecord, error) {
	active, err := store.ListActive(ctx, string(county))
	if err != nil {
		return nil, &StoreError{County: county, Op: "list", Err: err}
	}

	var removed []ClassifiedRecord
	for _, entry := range active {
		if seen[entry.Key] {
			continue
		}
		removed = append(removed, ClassifiedRecord{
			Classification: ClassificationRemoved,
			Key:            entry.Key,
			Derived:        entry.Derived,
			Record:         snapshotRecord(county, entry),
			PreviousHash:   entry.ContentHash,
		})
	}
	return removed, nil
}

// snapshotRecord restores the last-known normalized record so
// removal events carry real fields through the filter engine.
func snapshotRecord(county County, entry historystore.Entry) PropertyRecord {
	var record PropertyRecord
	if len(entry.RecordJSON) > 0 {
		err := json.Unmarshal(entry.RecordJSON, &record)
		if err == nil {
			return record
		}
		slog.Warn("unreadable record snapshot", "county", county, "key", entry.Key, "err", err)
	}
	return PropertyRecord{
		County:   county,
		RecordID: entry.Key,
		Type:     RecordType(entry.RecordType),
	}
}

func commitCycle(ctx context.Context, store HistoryStore, county County, classified []ClassifiedRecord, rekeys []rekey, now time.Time) error {
	err := store.WithTx(ctx, func(tx historystore.Tx) error {
		for _, rk := range rekeys {
			err := tx.Rekey(ctx, string(county), rk.oldKey, rk.newKey)
			if err != nil {
				return err
			}
		}

		for _, c := range classified {
			var err error
			switch c.Classification {
			case ClassificationNew:
				recordJSON, marshalErr := json.Marshal(c.Record)
				if marshalErr != nil {
					return marshalErr
				}
				err = tx.Insert(ctx, historystore.Entry{
					County:      string(county),
					Key:         c.Key,
					ContentHash: Resolve(c.Record).ContentHash,
					RecordType:  string(c.Record.Type),
					Derived:     c.Derived,
					RecordJSON:  recordJSON,
					FirstSeen:   now,
					LastSeen:    now,
				})
			case ClassificationUpdated:
				recordJSON, marshalErr := json.Marshal(c.Record)
				if marshalErr != nil {
					return marshalErr
				}
				err = tx.UpdateContent(
					ctx, string(county), c.Key,
					Resolve(c.Record).ContentHash, string(c.Record.Type),
					recordJSON, now,
				)
			case ClassificationUnchanged:
				err = tx.Touch(ctx, string(county), c.Key, now)
			case ClassificationRemoved:
				err = tx.MarkRemoved(ctx, string(county), c.Key)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &StoreError{County: county, Op: "commit", Err: err}
	}
	return nil
}
